package models

import (
	"time"
)

type Role string

const (
	RoleFree  Role = "free"
	RolePro   Role = "pro"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleFree || r == RolePro || r == RoleAdmin
}

type SubscriptionStatus string

const (
	StatusFree       SubscriptionStatus = "free"
	StatusPro        SubscriptionStatus = "pro"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusIncomplete SubscriptionStatus = "incomplete"
)

// AllStatuses lists every subscription status in display order.
var AllStatuses = []SubscriptionStatus{StatusFree, StatusPro, StatusPastDue, StatusCanceled, StatusIncomplete}

func (s SubscriptionStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// LogLevel mirrors zerolog level names for persisted audit rows.
type LogLevel string

const (
	LevelError LogLevel = "error"
	LevelWarn  LogLevel = "warn"
	LevelInfo  LogLevel = "info"
	LevelDebug LogLevel = "debug"
)

func (l LogLevel) Valid() bool {
	switch l {
	case LevelError, LevelWarn, LevelInfo, LevelDebug:
		return true
	}
	return false
}

// LogEntry is one row of the durable audit trail.
type LogEntry struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Message    string                 `json:"message"`
	UserID     string                 `json:"user_id,omitempty"`
	ErrorStack string                 `json:"error_stack,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// EmailJob is the payload of an on-demand send-email job.
type EmailJob struct {
	To      string `json:"to"`
	ToName  string `json:"to_name,omitempty"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// SubscriptionStats is the admin overview of entitlement records.
type SubscriptionStats struct {
	TotalUsers int                        `json:"total_users"`
	ByStatus   map[SubscriptionStatus]int `json:"by_status"`
	ByRole     map[Role]int               `json:"by_role"`
	ProShare   float64                    `json:"pro_share"`
}
