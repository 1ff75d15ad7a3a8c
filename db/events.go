package db

import (
	"context"
	"database/sql"
	"errors"
)

// EventLedger remembers which provider events reached a terminal outcome.
type EventLedger struct {
	conn *sql.DB
}

func NewEventLedger(conn *sql.DB) *EventLedger {
	return &EventLedger{conn: conn}
}

// Seen reports whether eventID was already recorded.
func (l *EventLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := l.conn.QueryRowContext(ctx, `SELECT 1 FROM webhook_events WHERE event_id = $1`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record stores the outcome of eventID. A second record of the same id is ignored.
func (l *EventLedger) Record(ctx context.Context, eventID, eventType, outcome string) error {
	_, err := l.conn.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, outcome)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, outcome)
	return err
}
