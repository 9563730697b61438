package main

import (
	"context"
	"net/http"
	"quizlive/session"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const healthTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

// CreateServer builds the engine. /health reports unhealthy when db stops
// answering. Routes added by internalRoutes are reached server to server and
// skip the origin check.
func CreateServer(allowedOrigins []string, db pinger, internalRoutes func(*gin.RouterGroup)) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})
	r.GET("/health", func(ctx *gin.Context) {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), healthTimeout)
		defer cancel()
		if err := db.Ping(pingCtx); err != nil {
			ctx.String(http.StatusServiceUnavailable, "unhealthy")
			return
		}
		ctx.String(http.StatusOK, "healthy")
	})

	if internalRoutes != nil {
		internalRoutes(r.Group("/internal"))
	}

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

func RegisterSessionRoutes(r *gin.Engine, handler *session.SessionHandler, requireAuth gin.HandlerFunc) {
	sessions := r.Group("/sessions")
	sessions.Use(requireAuth)

	sessions.POST("", handler.CreateSessionHandler)
	sessions.GET("/invite/:code", handler.ResolveInviteHandler)
	sessions.GET("/:id/ws", handler.JoinSessionHandler)
}

func RegisterTimerRoutes(handler *session.SessionHandler) func(*gin.RouterGroup) {
	return func(internal *gin.RouterGroup) {
		internal.POST("/sessions/:id/questions/:index/expire", handler.ExpireQuestionHandler)
	}
}
