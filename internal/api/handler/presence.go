package handler

import (
	"errors"
	"net/http"
	"time"

	"campusconnect/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type presenceResponse struct {
	UserID   string     `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// OnlineUsers lists everyone the registry considers online.
func (h *Handler) OnlineUsers(c *gin.Context) {
	ids := h.Registry.OnlineUserIDs()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(ids),
		"userIds": ids,
	})
}

// UserPresence answers from memory for online users and from the user
// table otherwise.
func (h *Handler) UserPresence(c *gin.Context) {
	userID := c.Param("userID")

	if at, ok := h.Registry.LastSeen(userID); ok {
		c.JSON(http.StatusOK, presenceResponse{UserID: userID, Online: true, LastSeen: &at})
		return
	}

	if h.Users == nil {
		c.JSON(http.StatusOK, presenceResponse{UserID: userID})
		return
	}
	user, err := h.Users.FindUserByID(c.Request.Context(), userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.Logger.Error("failed to load user presence", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
		return
	}

	resp := presenceResponse{UserID: userID}
	if !user.LastSeen.IsZero() {
		resp.LastSeen = &user.LastSeen
	}
	c.JSON(http.StatusOK, resp)
}

// Heartbeat keeps the caller online. RequireAuth already touched the
// registry; this reports the result.
func (h *Handler) Heartbeat(c *gin.Context) {
	identity := currentIdentity(c)
	at, ok := h.Registry.LastSeen(identity.UserID)
	if !ok {
		at = h.Registry.Touch(identity.UserID)
	}
	c.JSON(http.StatusOK, presenceResponse{UserID: identity.UserID, Online: true, LastSeen: &at})
}

func (h *Handler) MatchmakingStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Hub.Stats())
}
