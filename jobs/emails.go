package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mediaplatform/metrics"
	"mediaplatform/models"
)

const JobSendEmail = "send-email"

var (
	ErrQueueFull   = errors.New("email queue is full")
	ErrQueueClosed = errors.New("email queue is closed")
)

type Mailer interface {
	Send(ctx context.Context, job models.EmailJob) error
}

// EmailQueue delivers transactional email on a fixed pool of workers.
// Enqueue never blocks; jobs that do not fit in the buffer are rejected.
type EmailQueue struct {
	mailer      Mailer
	metrics     *metrics.Billing
	sendTimeout time.Duration
	workers     int

	mu     sync.RWMutex
	closed bool
	jobs   chan models.EmailJob
	wg     sync.WaitGroup
}

func NewEmailQueue(mailer Mailer, m *metrics.Billing, workers, buffer int, sendTimeout time.Duration) *EmailQueue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 100
	}
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &EmailQueue{
		mailer:      mailer,
		metrics:     m,
		sendTimeout: sendTimeout,
		workers:     workers,
		jobs:        make(chan models.EmailJob, buffer),
	}
}

// Start launches the workers. They exit once Stop drains the queue.
func (q *EmailQueue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	log.Info().Int("workers", q.workers).Msg("email workers started")
}

func (q *EmailQueue) Enqueue(job models.EmailJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		q.metrics.RecordJobRun(JobSendEmail, "dropped")
		return ErrQueueFull
	}
}

// Stop rejects new jobs and waits for queued ones to be sent or for ctx to end.
func (q *EmailQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *EmailQueue) work(id int) {
	defer q.wg.Done()
	for job := range q.jobs {
		q.send(id, job)
	}
}

func (q *EmailQueue) send(worker int, job models.EmailJob) {
	logger := log.With().Str("job", JobSendEmail).Int("worker", worker).Str("to", job.To).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("job panicked")
			q.metrics.RecordJobRun(JobSendEmail, "failed")
		}
	}()

	logger.Debug().Str("subject", job.Subject).Msg("job started")
	ctx, cancel := context.WithTimeout(context.Background(), q.sendTimeout)
	defer cancel()

	if err := q.mailer.Send(ctx, job); err != nil {
		logger.Error().Err(err).Msg("job failed")
		q.metrics.RecordJobRun(JobSendEmail, "failed")
		return
	}
	logger.Info().Msg("job completed")
	q.metrics.RecordJobRun(JobSendEmail, "completed")
}
