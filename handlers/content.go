package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mediaplatform/middleware"
)

// ProContent is the entry point for paid members. Routes mount it behind
// RequireRole(pro, admin), so the role here is the stored one.
func (h *Handler) ProContent(c *gin.Context) {
	role, _ := c.Get(middleware.ContextUserRole)
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome, pro member",
		"userId":  c.GetString(middleware.ContextUserID),
		"role":    role,
	})
}
