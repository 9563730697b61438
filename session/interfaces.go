package session

import (
	"context"
	"quizlive/domain"
	"time"
)

type WebsocketConnection interface {
	Close(reason string)
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
}

type SessionStore interface {
	LoadSession(ctx context.Context, id string) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
}

type SessionCreator interface {
	CreateSession(ctx context.Context, quizID, inviteCode string) (string, error)
	GetSessionIdByInviteCode(ctx context.Context, inviteCode string) (string, error)
}

type QuizStore interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	IncrementPlayCount(ctx context.Context, quizID string) error
}

type UserGetter interface {
	GetUserById(ctx context.Context, id string) (domain.User, error)
}

type ActivityKind string

const (
	ActivityJoin    ActivityKind = "join"
	ActivityLeave   ActivityKind = "leave"
	ActivityCorrect ActivityKind = "correct"
)

type ActivityEntry struct {
	SessionID string
	Kind      ActivityKind
	UserID    string
	Username  string
	At        time.Time
}

type ActivityLog interface {
	AppendActivity(ctx context.Context, entry ActivityEntry) error
}
