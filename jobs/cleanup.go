package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"mediaplatform/metrics"
	"mediaplatform/models"
)

const JobCleanupOldLogs = "cleanup-old-logs"

type LogPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type AuditSink interface {
	Record(entry models.LogEntry)
}

// LogCleanup removes audit rows past the retention window.
type LogCleanup struct {
	store         LogPruner
	audit         AuditSink
	metrics       *metrics.Billing
	retentionDays int
	timeout       time.Duration
	now           func() time.Time
}

func NewLogCleanup(store LogPruner, audit AuditSink, m *metrics.Billing, retentionDays int, timeout time.Duration) *LogCleanup {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &LogCleanup{
		store:         store,
		audit:         audit,
		metrics:       m,
		retentionDays: retentionDays,
		timeout:       timeout,
		now:           time.Now,
	}
}

// Run deletes entries older than the retention window and returns the count.
func (c *LogCleanup) Run(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cutoff := c.now().UTC().AddDate(0, 0, -c.retentionDays)
	logger := log.With().Str("job", JobCleanupOldLogs).Time("cutoff", cutoff).Logger()
	logger.Info().Msg("job started")

	deleted, err := c.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		c.metrics.RecordJobRun(JobCleanupOldLogs, "failed")
		return 0, fmt.Errorf("delete logs before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	logger.Info().Int64("deleted", deleted).Msg("job completed")
	c.metrics.RecordJobRun(JobCleanupOldLogs, "completed")
	if deleted > 0 && c.audit != nil {
		c.audit.Record(models.LogEntry{
			Level:   models.LevelInfo,
			Message: fmt.Sprintf("Cleaned up %d old log entries", deleted),
			Meta:    map[string]interface{}{"retention_days": c.retentionDays, "deleted": deleted},
		})
	}
	return deleted, nil
}
