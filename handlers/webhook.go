package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	maxWebhookBody  = 1 << 20
	signatureHeader = "Stripe-Signature"
)

// StripeWebhook verifies and reconciles one provider event. Anything the
// provider should not retry is answered 200; store and upstream failures get
// 500 so the event is redelivered.
func (h *Handler) StripeWebhook(c *gin.Context) {
	if h.Verifier == nil || h.Reconciler == nil {
		log.Error().Msg("stripe webhook received but webhook secret is not configured")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook not configured"})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	ev, err := h.Verifier.Verify(payload, c.GetHeader(signatureHeader))
	if err != nil {
		log.Warn().Err(err).Msg("rejected stripe webhook")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook signature verification failed"})
		return
	}

	outcome, err := h.Reconciler.Reconcile(c.Request.Context(), ev)
	if err != nil {
		log.Error().Err(err).Str("event_id", ev.ID).Str("event_type", ev.Type).Msg("webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		return
	}

	log.Debug().Str("event_id", ev.ID).Str("outcome", string(outcome)).Msg("webhook acknowledged")
	c.JSON(http.StatusOK, gin.H{"received": true})
}
