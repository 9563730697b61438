package session

import "errors"

var (
	ErrNotHost           = errors.New("not-host")
	ErrInvalidTransition = errors.New("invalid-transition")
	ErrPlayerNotFound    = errors.New("player-not-found")
	ErrAlreadyAnswered   = errors.New("already-answered")
	ErrEmptyQuiz         = errors.New("empty-quiz")
	ErrQuizUnavailable   = errors.New("quiz-unavailable")
	ErrSessionBusy       = errors.New("session-busy")
	ErrActorStopped      = errors.New("actor-stopped")
)

var ErrSendBufferFull = errors.New("send-buffer-full")
