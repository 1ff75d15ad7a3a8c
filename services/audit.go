package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mediaplatform/models"
)

// AuditSink accepts audit entries without making the caller wait.
type AuditSink interface {
	Record(entry models.LogEntry)
}

type LogWriter interface {
	Insert(ctx context.Context, entry models.LogEntry) error
}

// Audit persists entries in the background. Write failures are logged and dropped.
type Audit struct {
	writer  LogWriter
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAudit(writer LogWriter, timeout time.Duration) *Audit {
	return &Audit{writer: writer, timeout: timeout}
}

func (a *Audit) Record(entry models.LogEntry) {
	if a == nil || a.writer == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.writer.Insert(ctx, entry); err != nil {
			log.Error().Err(err).Str("message", entry.Message).Msg("failed to save audit entry")
		}
	}()
}

// Wait blocks until in-flight writes finish.
func (a *Audit) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}

type nopAudit struct{}

func (nopAudit) Record(models.LogEntry) {}
