package db

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLedger(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	ledger := NewEventLedger(conn)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM webhook_events WHERE event_id = $1`)).
		WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	seen, err := ledger.Seen(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (event_id) DO NOTHING`)).
		WithArgs("evt_1", "invoice.paid", "applied").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, ledger.Record(context.Background(), "evt_1", "invoice.paid", "applied"))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM webhook_events`)).
		WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	seen, err = ledger.Seen(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	assert.NoError(t, mock.ExpectationsWereMet())
}
