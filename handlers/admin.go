package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mediaplatform/db"
	"mediaplatform/middleware"
	"mediaplatform/models"
)

type UserListQuery struct {
	Role   string `form:"role"`
	Status string `form:"status"`
	Limit  int    `form:"limit,default=100" binding:"min=1,max=500"`
	Offset int    `form:"offset" binding:"min=0"`
}

// ListUsers shows entitlement records to an admin, newest first. There is
// deliberately no endpoint that edits a role directly.
func (h *Handler) ListUsers(c *gin.Context) {
	var q UserListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role := models.Role(q.Role)
	if role != "" && !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown role"})
		return
	}
	status := models.SubscriptionStatus(q.Status)
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown subscription status"})
		return
	}

	adminID := c.GetString(middleware.ContextUserID)
	log.Info().Str("admin_user_id", adminID).Str("role", q.Role).Str("status", q.Status).Msg("admin listing users")

	users, err := h.Users.List(c.Request.Context(), db.UserFilter{Role: role, Status: status, Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		log.Error().Err(err).Str("admin_user_id", adminID).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

type LogListQuery struct {
	Page   int    `form:"page,default=1" binding:"min=1"`
	Limit  int    `form:"limit,default=25" binding:"min=1,max=100"`
	Level  string `form:"level"`
	UserID string `form:"userId"`
	Sort   string `form:"sort,default=-timestamp"`
}

// ListLogs pages through the audit trail.
func (h *Handler) ListLogs(c *gin.Context) {
	if h.Logs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	var q LogListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	level := models.LogLevel(q.Level)
	if level != "" && !level.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown log level"})
		return
	}

	entries, total, err := h.Logs.Query(c.Request.Context(), db.LogFilter{
		Level:  level,
		UserID: q.UserID,
		Sort:   q.Sort,
		Page:   q.Page,
		Limit:  q.Limit,
	})
	if err != nil {
		log.Error().Err(err).Str("admin_user_id", c.GetString(middleware.ContextUserID)).Msg("failed to fetch logs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": entries,
		"pagination": gin.H{
			"currentPage": q.Page,
			"totalPages":  (total + q.Limit - 1) / q.Limit,
			"totalLogs":   total,
			"limit":       q.Limit,
		},
	})
}
