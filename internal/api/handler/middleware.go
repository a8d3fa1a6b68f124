package handler

import (
	"errors"
	"net/http"

	"campusconnect/backend/internal/auth"
	"campusconnect/backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequireAuth rejects requests without a valid bearer token. Every
// authenticated request counts as activity for the presence registry.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := h.authenticate(c)
		if !ok {
			return
		}
		h.Registry.Touch(identity.UserID)
		c.Set(identityKey, identity)
		c.Next()
	}
}

// authenticate writes the error response itself when it returns false.
func (h *Handler) authenticate(c *gin.Context) (models.Identity, bool) {
	identity, err := h.Auth.Authenticate(c.Request.Context(), auth.ExtractToken(c.Request))
	if errors.Is(err, auth.ErrUnauthenticated) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return models.Identity{}, false
	}
	if err != nil {
		h.Logger.Error("authentication failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Authentication unavailable"})
		return models.Identity{}, false
	}
	return identity, true
}

func currentIdentity(c *gin.Context) models.Identity {
	v, _ := c.Get(identityKey)
	identity, _ := v.(models.Identity)
	return identity
}
