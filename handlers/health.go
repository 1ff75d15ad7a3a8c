package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "UP", http.StatusOK
	if err := h.Users.Ping(ctx); err != nil {
		status, code = "DOWN", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"database":  status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
