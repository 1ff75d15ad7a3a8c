package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"mediaplatform/models"
)

// LookupKind selects which unique key an entitlement lookup uses.
type LookupKind int

const (
	ByUserID LookupKind = iota
	BySubscriptionRef
	ByCustomerRef
)

func (k LookupKind) String() string {
	switch k {
	case ByUserID:
		return "user_id"
	case BySubscriptionRef:
		return "subscription_ref"
	case ByCustomerRef:
		return "customer_ref"
	default:
		return fmt.Sprintf("lookup(%d)", int(k))
	}
}

func (k LookupKind) column() (string, error) {
	switch k {
	case ByUserID:
		return "id", nil
	case BySubscriptionRef:
		return "active_subscription_ref", nil
	case ByCustomerRef:
		return "billing_customer_ref", nil
	}
	return "", fmt.Errorf("unknown lookup kind %d", int(k))
}

// Lookup is a single keyed request against the entitlement table.
type Lookup struct {
	Kind  LookupKind
	Value string
}

func (l Lookup) String() string {
	return l.Kind.String() + "=" + l.Value
}

const userColumns = `id, email, password_hash, COALESCE(first_name, ''), COALESCE(last_name, ''),
	role, billing_customer_ref, active_subscription_ref, subscription_status, version, created_at, updated_at`

type EntitlementStore struct {
	conn *sql.DB
}

func NewEntitlementStore(conn *sql.DB) *EntitlementStore {
	return &EntitlementStore{conn: conn}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u            models.User
		customerRef  sql.NullString
		subscription sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &customerRef, &subscription, &u.SubscriptionStatus, &u.Version,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if customerRef.Valid {
		u.BillingCustomerRef = &customerRef.String
	}
	if subscription.Valid {
		u.ActiveSubscriptionRef = &subscription.String
	}
	return &u, nil
}

// CreateUser inserts a fresh free/free record and fills in the generated fields.
func (s *EntitlementStore) CreateUser(ctx context.Context, u *models.User) error {
	err := s.conn.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, first_name, last_name, role, subscription_status)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
		RETURNING id, version, created_at, updated_at
	`, u.Email, u.PasswordHash, u.FirstName, u.LastName, models.RoleFree, models.StatusFree,
	).Scan(&u.ID, &u.Version, &u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return err
	}
	u.Role = models.RoleFree
	u.SubscriptionStatus = models.StatusFree
	return nil
}

func (s *EntitlementStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// UserFilter narrows an admin listing. Empty fields do not filter.
type UserFilter struct {
	Role   models.Role
	Status models.SubscriptionStatus
	Limit  int
	Offset int
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// List returns users newest first. Password hashes are never included.
func (s *EntitlementStore) List(ctx context.Context, f UserFilter) ([]models.User, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE ($1 = '' OR role = $1) AND ($2 = '' OR subscription_status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, string(f.Role), string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = ""
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Find resolves a single lookup. Refs are unique so at most one row matches.
func (s *EntitlementStore) Find(ctx context.Context, l Lookup) (*models.User, error) {
	if l.Value == "" {
		return nil, ErrNotFound
	}
	if l.Kind == ByUserID {
		if _, err := uuid.Parse(l.Value); err != nil {
			return nil, ErrNotFound
		}
	}
	col, err := l.Kind.column()
	if err != nil {
		return nil, err
	}
	row := s.conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+col+` = $1`, l.Value)
	return scanUser(row)
}

// UpdateEntitlement writes next only if the row is still at version and
// returns the new version.
func (s *EntitlementStore) UpdateEntitlement(ctx context.Context, id string, version int64, next models.Entitlement) (int64, error) {
	var newVersion int64
	err := s.conn.QueryRowContext(ctx, `
		UPDATE users
		SET role = $3,
			subscription_status = $4,
			billing_customer_ref = $5,
			active_subscription_ref = $6,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version
	`, id, version, next.Role, next.SubscriptionStatus,
		nullable(next.BillingCustomerRef), nullable(next.ActiveSubscriptionRef),
	).Scan(&newVersion)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, ErrVersionConflict
	case isUniqueViolation(err):
		return 0, ErrDuplicateRef
	case err != nil:
		return 0, err
	}
	return newVersion, nil
}

// SetBillingCustomerRef links ref to the user only while the stored value is
// still observed (nil meaning unset). A different stored value yields
// ErrVersionConflict.
func (s *EntitlementStore) SetBillingCustomerRef(ctx context.Context, id string, observed *string, ref string) error {
	res, err := s.conn.ExecContext(ctx, `
		UPDATE users
		SET billing_customer_ref = $2,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND billing_customer_ref IS NOT DISTINCT FROM $3
	`, id, ref, nullable(observed))
	if isUniqueViolation(err) {
		return ErrDuplicateRef
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Stats counts records by subscription status and role.
func (s *EntitlementStore) Stats(ctx context.Context) (models.SubscriptionStats, error) {
	stats := models.SubscriptionStats{
		ByStatus: make(map[models.SubscriptionStatus]int),
		ByRole:   make(map[models.Role]int),
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT role, subscription_status, COUNT(*)
		FROM users
		GROUP BY role, subscription_status
	`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			role   models.Role
			status models.SubscriptionStatus
			count  int
		)
		if err := rows.Scan(&role, &status, &count); err != nil {
			return stats, err
		}
		stats.ByRole[role] += count
		stats.ByStatus[status] += count
		stats.TotalUsers += count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if stats.TotalUsers > 0 {
		stats.ProShare = float64(stats.ByStatus[models.StatusPro]) / float64(stats.TotalUsers) * 100
	}
	return stats, nil
}

// Ping reports whether the database answers.
func (s *EntitlementStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
