package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mediaplatform/db"
)

// GetUserEntitlement shows an entitlement record to an admin.
func (h *Handler) GetUserEntitlement(c *gin.Context) {
	user, err := h.Users.Find(c.Request.Context(), db.Lookup{Kind: db.ByUserID, Value: c.Param("id")})
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":        user,
		"entitlement": user.Entitlement(),
	})
}

// GetSubscriptionStats counts records per status and role.
func (h *Handler) GetSubscriptionStats(c *gin.Context) {
	stats, err := h.Users.Stats(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to compute subscription stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
