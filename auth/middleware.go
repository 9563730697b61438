package auth

import (
	"errors"
	"net/http"
	"quizlive/domain"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

var (
	ErrMissingTokenStr = "missing-token"
	ErrExpiredTokenStr = "expired-token"
	ErrInvalidTokenStr = "invalid-token"
	ErrUnknownStr      = "unknown-error"
)

type TokenVerifier interface {
	Verify(token string) (string, error)
}

type authMiddleware struct {
	verifier TokenVerifier
	log      zerolog.Logger
}

func NewAuthMiddleware(verifier TokenVerifier, logger zerolog.Logger) *authMiddleware {
	return &authMiddleware{verifier: verifier, log: logger}
}

func tokenFromRequest(ctx *gin.Context) string {
	if header := ctx.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	token, err := ctx.Cookie("token")
	if err != nil {
		return ""
	}
	return token
}

// RequireAuthMiddleware sets the verified user id under "id". Forged tokens
// are answered after trollTime.
func (am *authMiddleware) RequireAuthMiddleware(trollTime time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := tokenFromRequest(ctx)
		if token == "" {
			ctx.String(http.StatusUnauthorized, ErrMissingTokenStr)
			ctx.Abort()
			return
		}

		id, err := am.verifier.Verify(token)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidSigningAlg), errors.Is(err, domain.ErrInvalidTokenSignature), errors.Is(err, domain.ErrCorruptedToken):
				am.log.Warn().Err(err).Str("ip", ctx.ClientIP()).Str("user_agent", ctx.Request.UserAgent()).Msg("forged or corrupted token")
				time.Sleep(trollTime)
				ctx.String(http.StatusUnauthorized, ErrInvalidTokenStr)
			case errors.Is(err, domain.ErrExpiredToken):
				ctx.String(http.StatusUnauthorized, ErrExpiredTokenStr)
			default:
				am.log.Error().Err(err).Msg("token verification failed")
				ctx.String(http.StatusInternalServerError, ErrUnknownStr)
			}
			ctx.Abort()
			return
		}

		ctx.Set("id", id)
		ctx.Next()
	}
}
