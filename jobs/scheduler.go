package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler runs the recurring maintenance jobs.
type Scheduler struct {
	cron    *cron.Cron
	cleanup *LogCleanup
}

func NewScheduler(cleanup *LogCleanup) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cronLogger{})))
	return &Scheduler{cron: c, cleanup: cleanup}
}

// Start registers the jobs on their schedules and starts the scheduler.
func (s *Scheduler) Start(cleanupSchedule string) error {
	if _, err := s.cron.AddFunc(cleanupSchedule, s.runCleanup); err != nil {
		return fmt.Errorf("schedule %s %q: %w", JobCleanupOldLogs, cleanupSchedule, err)
	}
	log.Info().Str("job", JobCleanupOldLogs).Str("schedule", cleanupSchedule).Msg("scheduled job")

	s.cron.Start()
	return nil
}

func (s *Scheduler) runCleanup() {
	_, _ = s.cleanup.Run(context.Background())
}

// Stop prevents new runs; the returned context is done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
