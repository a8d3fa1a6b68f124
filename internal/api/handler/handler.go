package handler

import (
	"context"
	"net/http"
	"time"

	"campusconnect/backend/internal/auth"
	"campusconnect/backend/internal/chathub"
	"campusconnect/backend/internal/models"
	"campusconnect/backend/internal/presence"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "identity"

// UserLookup reads persisted profiles for users that are not online.
type UserLookup interface {
	FindUserByID(ctx context.Context, userID string) (*models.User, error)
}

// Handler holds what the HTTP routes need.
type Handler struct {
	Hub        *chathub.ManagerService
	Auth       auth.Authenticator
	Registry   *presence.Registry
	Users      UserLookup
	SendBuffer int
	Logger     *zap.Logger
}

func NewHandler(hub *chathub.ManagerService, authenticator auth.Authenticator, users UserLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Hub:        hub,
		Auth:       authenticator,
		Registry:   hub.Registry,
		Users:      users,
		SendBuffer: chathub.DefaultSendBuffer,
		Logger:     logger,
	}
}

// NewRouter builds the gin engine with every route.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.Logger))

	r.GET("/health", h.Health)
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api", h.RequireAuth())
	{
		api.GET("/presence/online", h.OnlineUsers)
		api.GET("/presence/:userID", h.UserPresence)
		api.POST("/presence/heartbeat", h.Heartbeat)
		api.GET("/matchmaking/stats", h.MatchmakingStats)
	}
	return r
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("http request",
			zap.String("remote", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.Hub.ClientCount(),
	})
}
