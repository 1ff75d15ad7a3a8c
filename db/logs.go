package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediaplatform/models"
)

// LogStore persists the audit trail.
type LogStore struct {
	conn *sql.DB
}

func NewLogStore(conn *sql.DB) *LogStore {
	return &LogStore{conn: conn}
}

func (s *LogStore) Insert(ctx context.Context, e models.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var meta sql.NullString
	if len(e.Meta) > 0 {
		raw, err := json.Marshal(e.Meta)
		if err != nil {
			return err
		}
		meta = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO logs (id, timestamp, level, message, user_id, error_stack, meta)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
	`, e.ID, e.Timestamp, e.Level, e.Message, e.UserID, e.ErrorStack, meta)
	return err
}

// DeleteOlderThan removes entries stamped before cutoff and returns how many went.
func (s *LogStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LogFilter selects one page of audit entries. Sort names a field, prefixed
// with "-" for descending; unknown fields fall back to newest first.
type LogFilter struct {
	Level  models.LogLevel
	UserID string
	Sort   string
	Page   int
	Limit  int
}

const (
	defaultLogLimit = 25
	maxLogLimit     = 100
)

var logSortColumns = map[string]string{
	"timestamp": "timestamp",
	"level":     "level",
	"userId":    "user_id",
}

func logOrder(sort string) string {
	dir := "ASC"
	field := sort
	if strings.HasPrefix(sort, "-") {
		dir = "DESC"
		field = sort[1:]
	}
	col, ok := logSortColumns[field]
	if !ok {
		return "timestamp DESC"
	}
	return col + " " + dir
}

// Query returns the entries on the requested page and the total matching count.
func (s *LogStore) Query(ctx context.Context, f LogFilter) ([]models.LogEntry, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultLogLimit
	}
	if f.Limit > maxLogLimit {
		f.Limit = maxLogLimit
	}

	const where = `WHERE ($1 = '' OR level = $1) AND ($2 = '' OR user_id = $2)`

	var total int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs `+where, string(f.Level), f.UserID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, timestamp, level, message, COALESCE(user_id, ''), COALESCE(error_stack, ''), meta
		FROM logs
		%s
		ORDER BY %s
		LIMIT $3 OFFSET $4
	`, where, logOrder(f.Sort)), string(f.Level), f.UserID, f.Limit, (f.Page-1)*f.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]models.LogEntry, 0, f.Limit)
	for rows.Next() {
		var (
			e    models.LogEntry
			meta sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.Message, &e.UserID, &e.ErrorStack, &meta); err != nil {
			return nil, 0, err
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Meta); err != nil {
				return nil, 0, fmt.Errorf("decode meta of log %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
