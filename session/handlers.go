package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"quizlive/domain"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	attachTimeout        = 5 * time.Second
	inviteCodeAttempts   = 5
	TimerSecretHeader    = "X-Timer-Secret"
	errUnauthenticated   = "unauthenticated"
	errInvalidFormat     = "invalid-request-format"
	errUnknown           = "unknown-error"
	errServerTimeout     = "server-timeout"
	errInvalidQuestionNo = "invalid-question-index"
)

type sessionRouter interface {
	packetRouter
	Attach(ctx context.Context, sessionID string, client *Client) error
	ExpireQuestion(ctx context.Context, sessionID string, questionIndex int) error
}

type SessionHandler struct {
	router      sessionRouter
	sessions    SessionCreator
	quizzes     QuizStore
	users       UserGetter
	codes       InviteCodeGenerator
	timerSecret string
	upgrader    websocket.Upgrader
	log         zerolog.Logger
}

func NewSessionHandler(router sessionRouter, sessions SessionCreator, quizzes QuizStore, users UserGetter, codes InviteCodeGenerator, timerSecret string, allowedOrigins []string, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		router:      router,
		sessions:    sessions,
		quizzes:     quizzes,
		users:       users,
		codes:       codes,
		timerSecret: timerSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		log: logger,
	}
}

func (h *SessionHandler) abortWithError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrSessionNotFound):
		ctx.String(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		ctx.String(http.StatusUnauthorized, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		ctx.String(http.StatusGatewayTimeout, errServerTimeout)
	case errors.Is(err, context.Canceled):
		ctx.Status(499)
	default:
		h.log.Error().Err(err).Str("path", ctx.FullPath()).Msg("unexpected error")
		ctx.String(http.StatusInternalServerError, errUnknown)
	}
	ctx.Abort()
}

func (h *SessionHandler) CreateSessionHandler(ctx *gin.Context) {
	if ctx.GetString("id") == "" {
		ctx.String(http.StatusUnauthorized, errUnauthenticated)
		ctx.Abort()
		return
	}

	var body struct {
		QuizID string `json:"quizId"`
	}
	if err := ctx.ShouldBindJSON(&body); err != nil || body.QuizID == "" {
		ctx.String(http.StatusBadRequest, errInvalidFormat)
		ctx.Abort()
		return
	}

	reqCtx := ctx.Request.Context()

	if _, err := h.quizzes.GetQuiz(reqCtx, body.QuizID); err != nil {
		h.abortWithError(ctx, err)
		return
	}

	for range inviteCodeAttempts {
		code := h.codes.Generate()
		id, err := h.sessions.CreateSession(reqCtx, body.QuizID, code)
		if errors.Is(err, domain.ErrDuplicateInviteCode) {
			continue
		}
		if err != nil {
			h.abortWithError(ctx, err)
			return
		}
		ctx.JSON(http.StatusCreated, gin.H{"id": id, "inviteCode": code})
		return
	}

	h.log.Error().Str("quiz", body.QuizID).Msg("ran out of invite code attempts")
	ctx.String(http.StatusInternalServerError, errUnknown)
	ctx.Abort()
}

func (h *SessionHandler) ResolveInviteHandler(ctx *gin.Context) {
	id, err := h.sessions.GetSessionIdByInviteCode(ctx.Request.Context(), ctx.Param("code"))
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *SessionHandler) JoinSessionHandler(ctx *gin.Context) {
	userId := ctx.GetString("id")
	if userId == "" {
		ctx.String(http.StatusUnauthorized, errUnauthenticated)
		ctx.Abort()
		return
	}

	user, err := h.users.GetUserById(ctx.Request.Context(), userId)
	if err != nil {
		h.abortWithError(ctx, err)
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.log.Debug().Err(err).Str("user", userId).Msg("websocket upgrade failed")
		return
	}

	sessionID := ctx.Param("id")
	client := NewClient(user.Id, user.Username, sessionID, NewWebsocketConnection(conn))
	go client.WritePump()

	attachCtx, cancel := context.WithTimeout(context.Background(), attachTimeout)
	defer cancel()

	if err := h.router.Attach(attachCtx, sessionID, client); err != nil {
		h.log.Debug().Err(err).Str("session", sessionID).Str("user", userId).Msg("join rejected")
		client.Close(err.Error())
		return
	}

	go client.ReadPump(h.router)
}

// ExpireQuestionHandler is called by the external question timer.
func (h *SessionHandler) ExpireQuestionHandler(ctx *gin.Context) {
	secret := ctx.GetHeader(TimerSecretHeader)
	if h.timerSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(h.timerSecret)) != 1 {
		ctx.String(http.StatusUnauthorized, errUnauthenticated)
		ctx.Abort()
		return
	}

	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil || index < 0 {
		ctx.String(http.StatusBadRequest, errInvalidQuestionNo)
		ctx.Abort()
		return
	}

	if err := h.router.ExpireQuestion(ctx.Request.Context(), ctx.Param("id"), index); err != nil {
		h.abortWithError(ctx, err)
		return
	}
	ctx.Status(http.StatusAccepted)
}
