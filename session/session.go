package session

import (
	"maps"
	"strconv"
	"time"
)

type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseAnswering
	PhaseRevealed
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseAnswering:
		return "answering"
	case PhaseRevealed:
		return "revealed"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type Player struct {
	UserID    string          `json:"userId"`
	Username  string          `json:"username"`
	Score     int             `json:"score"`
	Answered  map[string]bool `json:"answered"`
	Connected bool            `json:"connected"`
	LastSeen  time.Time       `json:"lastSeen"`

	// Process-local handle of the live transport; never persisted.
	ConnectionID string `json:"-"`
}

// Session is the durable document of one game. Host is empty when nobody
// holds host authority.
type Session struct {
	ID                   string
	QuizID               string
	InviteCode           string
	Players              []*Player
	Host                 string
	CurrentQuestionIndex int
	IsStarted            bool
	IsActive             bool
	QuestionStartAt      time.Time
	RevealedAt           *time.Time
	SkipVotes            map[string]bool
	StartedAt            *time.Time
	EndedAt              *time.Time
	CreatedAt            time.Time
}

func (s *Session) Phase() Phase {
	switch {
	case !s.IsStarted:
		return PhaseWaiting
	case !s.IsActive:
		return PhaseEnded
	case s.RevealedAt != nil:
		return PhaseRevealed
	default:
		return PhaseAnswering
	}
}

func answeredKey(questionIndex int) string {
	return strconv.Itoa(questionIndex)
}

func (s *Session) Player(userID string) *Player {
	for _, p := range s.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// UpsertOnJoin appends a new player or revives a returning one.
func (s *Session) UpsertOnJoin(userID, username, connectionID string, now time.Time) *Player {
	if p := s.Player(userID); p != nil {
		p.Connected = true
		p.LastSeen = now
		p.ConnectionID = connectionID
		if username != "" {
			p.Username = username
		}
		return p
	}

	p := &Player{
		UserID:       userID,
		Username:     username,
		Answered:     map[string]bool{},
		Connected:    true,
		LastSeen:     now,
		ConnectionID: connectionID,
	}
	s.Players = append(s.Players, p)
	return p
}

func (s *Session) MarkDisconnected(userID string, now time.Time) bool {
	p := s.Player(userID)
	if p == nil {
		return false
	}
	p.Connected = false
	p.LastSeen = now
	p.ConnectionID = ""
	return true
}

func (s *Session) HasAnswered(userID string, questionIndex int) bool {
	p := s.Player(userID)
	if p == nil {
		return false
	}
	return p.Answered[answeredKey(questionIndex)]
}

func (s *Session) RecordAnswered(userID string, questionIndex int) {
	p := s.Player(userID)
	if p == nil {
		return
	}
	if p.Answered == nil {
		p.Answered = map[string]bool{}
	}
	p.Answered[answeredKey(questionIndex)] = true
}

// FirstConnected returns the earliest joined player that is still connected.
func (s *Session) FirstConnected() *Player {
	for _, p := range s.Players {
		if p.Connected {
			return p
		}
	}
	return nil
}

func (s *Session) ConnectedCount() int {
	count := 0
	for _, p := range s.Players {
		if p.Connected {
			count++
		}
	}
	return count
}

// MigrateHost hands host authority to the first connected player when the
// current host is gone. It reports whether the host changed.
func (s *Session) MigrateHost() bool {
	if host := s.Player(s.Host); host != nil && host.Connected {
		return false
	}
	previous := s.Host
	s.Host = ""
	if p := s.FirstConnected(); p != nil {
		s.Host = p.UserID
	}
	return previous != s.Host
}

func (s *Session) IsHost(userID string) bool {
	return userID != "" && s.Host == userID
}

func (s *Session) AddSkipVote(userID string) bool {
	if s.SkipVotes == nil {
		s.SkipVotes = map[string]bool{}
	}
	if s.SkipVotes[userID] {
		return false
	}
	s.SkipVotes[userID] = true
	return true
}

// SkipThresholdReached reports whether at least half of the roster voted.
func (s *Session) SkipThresholdReached() bool {
	total := len(s.Players)
	return total > 0 && 2*len(s.SkipVotes) >= total
}

func (s *Session) Clone() *Session {
	c := *s
	c.Players = make([]*Player, len(s.Players))
	for i, p := range s.Players {
		cp := *p
		cp.Answered = maps.Clone(p.Answered)
		if cp.Answered == nil {
			cp.Answered = map[string]bool{}
		}
		c.Players[i] = &cp
	}
	c.SkipVotes = maps.Clone(s.SkipVotes)
	if c.SkipVotes == nil {
		c.SkipVotes = map[string]bool{}
	}
	c.RevealedAt = cloneTime(s.RevealedAt)
	c.StartedAt = cloneTime(s.StartedAt)
	c.EndedAt = cloneTime(s.EndedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
