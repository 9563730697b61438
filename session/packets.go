package session

import (
	"encoding/json"
	"quizlive/domain"
	"time"
)

const (
	PacketJoin          = "join"
	PacketStart         = "start"
	PacketSubmitCorrect = "submitCorrect"
	PacketVoteSkip      = "voteSkip"
	PacketForceSkip     = "forceSkip"
	PacketNextQuestion  = "nextQuestion"
)

const (
	PacketJoined         = "joined"
	PacketWaitingRoom    = "waiting-room"
	PacketGameStarted    = "game-started"
	PacketScoreboard     = "scoreboard"
	PacketAnswerReveal   = "answerReveal"
	PacketSkipVoteUpdate = "skipVoteUpdate"
	PacketNext           = "next"
	PacketEnd            = "end"
	PacketHostUpdated    = "host-updated"
	PacketPlayerCorrect  = "player-correct"
	PacketPlayerLeft     = "player-left"
	PacketRejected       = "rejected"
)

// ClientPacket is an inbound frame. Identity fields a client may send are
// ignored; the acting user is the one bound to the connection.
type ClientPacket struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ServerPacket struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type RosterEntry struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Connected bool   `json:"connected"`
}

type ScoreEntry struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

type WaitingRoomData struct {
	Host      string        `json:"host"`
	Players   []RosterEntry `json:"players"`
	IsStarted bool          `json:"isStarted"`
}

type GameStartedData struct {
	Quiz            domain.Quiz `json:"quiz"`
	Host            string      `json:"host"`
	QuestionStartAt int64       `json:"questionStartAt"`
}

type ScoreboardData struct {
	Players []ScoreEntry `json:"players"`
}

type AnswerRevealData struct {
	Answers    []string `json:"answers"`
	Index      int      `json:"index"`
	RevealedAt int64    `json:"revealedAt"`
}

type SkipVoteUpdateData struct {
	Votes int `json:"votes"`
	Total int `json:"total"`
}

type NextData struct {
	Index           int   `json:"index"`
	QuestionStartAt int64 `json:"questionStartAt"`
	TotalPlayers    int   `json:"totalPlayers"`
}

type HostUpdatedData struct {
	Host string `json:"host"`
}

type UsernameData struct {
	Username string `json:"username"`
}

type RejectedData struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// JoinedData lets a reconnecting client resume without waiting for the next
// broadcast.
type JoinedData struct {
	SessionID            string       `json:"sessionId"`
	UserID               string       `json:"userId"`
	Host                 string       `json:"host"`
	Phase                string       `json:"phase"`
	CurrentQuestionIndex int          `json:"currentQuestionIndex"`
	QuestionStartAt      int64        `json:"questionStartAt,omitempty"`
	RevealedAt           int64        `json:"revealedAt,omitempty"`
	SkipVotes            int          `json:"skipVotes"`
	Players              []ScoreEntry `json:"players"`
	Quiz                 *domain.Quiz `json:"quiz,omitempty"`
}

func encode(packetType string, data any) []byte {
	raw, err := json.Marshal(ServerPacket{Type: packetType, Data: data})
	if err != nil {
		return nil
	}
	return raw
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func roster(s *Session) []RosterEntry {
	entries := make([]RosterEntry, 0, len(s.Players))
	for _, p := range s.Players {
		entries = append(entries, RosterEntry{UserID: p.UserID, Username: p.Username, Connected: p.Connected})
	}
	return entries
}

func scoreboard(s *Session) []ScoreEntry {
	entries := make([]ScoreEntry, 0, len(s.Players))
	for _, p := range s.Players {
		entries = append(entries, ScoreEntry{UserID: p.UserID, Username: p.Username, Score: p.Score, Connected: p.Connected})
	}
	return entries
}

func MakePacketWaitingRoom(s *Session) []byte {
	return encode(PacketWaitingRoom, WaitingRoomData{Host: s.Host, Players: roster(s), IsStarted: s.IsStarted})
}

func MakePacketGameStarted(quiz domain.Quiz, host string, questionStartAt time.Time) []byte {
	return encode(PacketGameStarted, GameStartedData{Quiz: quiz, Host: host, QuestionStartAt: millis(questionStartAt)})
}

func MakePacketScoreboard(s *Session) []byte {
	return encode(PacketScoreboard, ScoreboardData{Players: scoreboard(s)})
}

func MakePacketAnswerReveal(answers []string, index int, revealedAt time.Time) []byte {
	if answers == nil {
		answers = []string{}
	}
	return encode(PacketAnswerReveal, AnswerRevealData{Answers: answers, Index: index, RevealedAt: millis(revealedAt)})
}

func MakePacketSkipVoteUpdate(votes, total int) []byte {
	return encode(PacketSkipVoteUpdate, SkipVoteUpdateData{Votes: votes, Total: total})
}

func MakePacketNext(index int, questionStartAt time.Time, totalPlayers int) []byte {
	return encode(PacketNext, NextData{Index: index, QuestionStartAt: millis(questionStartAt), TotalPlayers: totalPlayers})
}

func MakePacketEnd() []byte {
	return encode(PacketEnd, struct{}{})
}

func MakePacketHostUpdated(host string) []byte {
	return encode(PacketHostUpdated, HostUpdatedData{Host: host})
}

func MakePacketPlayerCorrect(username string) []byte {
	return encode(PacketPlayerCorrect, UsernameData{Username: username})
}

func MakePacketPlayerLeft(username string) []byte {
	return encode(PacketPlayerLeft, UsernameData{Username: username})
}

func MakePacketRejected(action string, reason error) []byte {
	return encode(PacketRejected, RejectedData{Action: action, Reason: reason.Error()})
}

func MakePacketJoined(s *Session, userID string, quiz *domain.Quiz) []byte {
	data := JoinedData{
		SessionID:            s.ID,
		UserID:               userID,
		Host:                 s.Host,
		Phase:                s.Phase().String(),
		CurrentQuestionIndex: s.CurrentQuestionIndex,
		QuestionStartAt:      millis(s.QuestionStartAt),
		SkipVotes:            len(s.SkipVotes),
		Players:              scoreboard(s),
	}
	if s.RevealedAt != nil {
		data.RevealedAt = millis(*s.RevealedAt)
	}
	if s.IsStarted {
		data.Quiz = quiz
	}
	return encode(PacketJoined, data)
}
