package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaplatform/models"
)

const testUserID = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"

var userColumnNames = []string{
	"id", "email", "password_hash", "first_name", "last_name",
	"role", "billing_customer_ref", "active_subscription_ref", "subscription_status", "version", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*EntitlementStore, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewEntitlementStore(conn), mock
}

func TestFindByCustomerRef(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE billing_customer_ref = $1`)).
		WithArgs("cus_1").
		WillReturnRows(sqlmock.NewRows(userColumnNames).AddRow(
			testUserID, "u1@example.com", "hash", "Ada", "",
			"pro", "cus_1", nil, "pro", int64(4), now, now,
		))

	u, err := store.Find(context.Background(), Lookup{Kind: ByCustomerRef, Value: "cus_1"})
	require.NoError(t, err)
	assert.Equal(t, testUserID, u.ID)
	assert.Equal(t, models.RolePro, u.Role)
	assert.Equal(t, models.StatusPro, u.SubscriptionStatus)
	assert.Equal(t, "cus_1", models.Deref(u.BillingCustomerRef))
	assert.Nil(t, u.ActiveSubscriptionRef)
	assert.Equal(t, int64(4), u.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindNoRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE active_subscription_ref = $1`)).
		WithArgs("sub_missing").
		WillReturnRows(sqlmock.NewRows(userColumnNames))

	_, err := store.Find(context.Background(), Lookup{Kind: BySubscriptionRef, Value: "sub_missing"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSkipsQueryForUnusableKeys(t *testing.T) {
	store, mock := newMockStore(t)

	_, err := store.Find(context.Background(), Lookup{Kind: ByCustomerRef})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Find(context.Background(), Lookup{Kind: ByUserID, Value: "not-a-uuid"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEntitlementIsConditional(t *testing.T) {
	store, mock := newMockStore(t)
	next := models.Entitlement{
		Role:                  models.RolePro,
		SubscriptionStatus:    models.StatusPro,
		BillingCustomerRef:    models.Ref("cus_1"),
		ActiveSubscriptionRef: models.Ref("sub_1"),
	}

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1 AND version = $2`)).
		WithArgs(testUserID, int64(3), models.RolePro, models.StatusPro, "cus_1", "sub_1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(4)))

	version, err := store.UpdateEntitlement(context.Background(), testUserID, 3, next)
	require.NoError(t, err)
	assert.Equal(t, int64(4), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEntitlementVersionConflict(t *testing.T) {
	store, mock := newMockStore(t)
	next := models.Entitlement{Role: models.RoleFree, SubscriptionStatus: models.StatusCanceled}

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users`)).
		WithArgs(testUserID, int64(3), models.RoleFree, models.StatusCanceled, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	_, err := store.UpdateEntitlement(context.Background(), testUserID, 3, next)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEntitlementDuplicateRef(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE users`)).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := store.UpdateEntitlement(context.Background(), testUserID, 1, models.Entitlement{
		Role:                  models.RolePro,
		SubscriptionStatus:    models.StatusPro,
		ActiveSubscriptionRef: models.Ref("sub_taken"),
	})
	assert.ErrorIs(t, err, ErrDuplicateRef)
}

func TestSetBillingCustomerRef(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`billing_customer_ref IS NOT DISTINCT FROM $3`)).
		WithArgs(testUserID, "cus_new", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.SetBillingCustomerRef(context.Background(), testUserID, nil, "cus_new"))

	mock.ExpectExec(regexp.QuoteMeta(`billing_customer_ref IS NOT DISTINCT FROM $3`)).
		WithArgs(testUserID, "cus_newer", "cus_old").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.SetBillingCustomerRef(context.Background(), testUserID, models.Ref("cus_old"), "cus_newer")
	assert.ErrorIs(t, err, ErrVersionConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserEmailTaken(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.CreateUser(context.Background(), &models.User{Email: "taken@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestCreateUserStartsFree(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs("new@example.com", "hash", "Ada", "", models.RoleFree, models.StatusFree).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at", "updated_at"}).
			AddRow(testUserID, int64(1), now, now))

	u := &models.User{Email: "new@example.com", PasswordHash: "hash", FirstName: "Ada"}
	require.NoError(t, store.CreateUser(context.Background(), u))
	assert.Equal(t, testUserID, u.ID)
	assert.Equal(t, models.RoleFree, u.Role)
	assert.Equal(t, models.StatusFree, u.SubscriptionStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`GROUP BY role, subscription_status`)).
		WillReturnRows(sqlmock.NewRows([]string{"role", "subscription_status", "count"}).
			AddRow("free", "free", 5).
			AddRow("pro", "pro", 3).
			AddRow("pro", "past_due", 1).
			AddRow("admin", "pro", 1))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalUsers)
	assert.Equal(t, 4, stats.ByStatus[models.StatusPro])
	assert.Equal(t, 4, stats.ByRole[models.RolePro])
	assert.Equal(t, 1, stats.ByRole[models.RoleAdmin])
	assert.InDelta(t, 40.0, stats.ProShare, 0.001)
}

func TestStatsQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT role`).WillReturnError(errors.New("boom"))

	_, err := store.Stats(context.Background())
	assert.Error(t, err)
}

func TestListNewestFirstWithoutHashes(t *testing.T) {
	store, mock := newMockStore(t)
	newer := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC`)).
		WithArgs("pro", "", 100, 0).
		WillReturnRows(sqlmock.NewRows(userColumnNames).
			AddRow(testUserID, "b@example.com", "hash-b", "", "", "pro", "cus_2", "sub_2", "pro", int64(2), newer, newer).
			AddRow("7c9e6679-7425-40de-944b-e07fc1f90ae7", "a@example.com", "hash-a", "", "", "pro", "cus_1", nil, "past_due", int64(5), older, older))

	users, err := store.List(context.Background(), UserFilter{Role: models.RolePro})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "b@example.com", users[0].Email)
	assert.Equal(t, "a@example.com", users[1].Email)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListClampsPaging(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`LIMIT $3 OFFSET $4`)).
		WithArgs("", "canceled", 500, 0).
		WillReturnRows(sqlmock.NewRows(userColumnNames))

	users, err := store.List(context.Background(), UserFilter{Status: models.StatusCanceled, Limit: 10000, Offset: -3})
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.NotNil(t, users)
	assert.NoError(t, mock.ExpectationsWereMet())
}
