package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mediaplatform/middleware"
	"mediaplatform/services"
)

func (h *Handler) CreateCheckout(c *gin.Context) {
	if !h.Features.BillingEnabled || h.Checkout == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Billing not enabled"})
		return
	}

	userID := c.GetString(middleware.ContextUserID)
	sessionID, err := h.Checkout.CreateSession(c.Request.Context(), userID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"sessionId": sessionID})
	case errors.Is(err, services.ErrLookupMiss):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, services.ErrUpstreamUnavailable):
		log.Warn().Err(err).Str("user_id", userID).Msg("stripe unavailable for checkout")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment provider unavailable, try again later"})
	default:
		log.Error().Err(err).Str("user_id", userID).Msg("failed to create checkout session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create checkout session"})
	}
}
