package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// OpsNotifier surfaces inconsistencies that need a human, such as orphaned
// billing customers or events for unknown records.
type OpsNotifier interface {
	Notify(message string)
}

type SlackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier returns nil when webhookURL is empty; a nil notifier is a no-op.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	if webhookURL == "" {
		return nil
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify posts in the background and never blocks the caller.
func (s *SlackNotifier) Notify(message string) {
	if s == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("slack notify panic recovered")
			}
		}()
		if err := s.send(context.Background(), message); err != nil {
			log.Warn().Err(err).Msg("slack notify failed")
		}
	}()
}

func (s *SlackNotifier) send(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("Billing reconciliation\n\n%s", message),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack API error: status %d", resp.StatusCode)
	}
	return nil
}
