package storage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yieldledger/yieldledger/internal/testutil"
	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap/zaptest"
)

func sampleEvent() *types.Event {
	return &types.Event{
		ID:          "evt-1",
		Kind:        types.EventPositionOpened,
		At:          time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PositionID:  0,
		TermID:      2,
		Actor:       testutil.Addr(0x01),
		BaseAmount:  big.NewInt(10000),
		BonusAmount: big.NewInt(30000),
	}
}

func TestPostgresRecordEvent(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStorageFromDB(db, zaptest.NewLogger(t))
	ev := sampleEvent()

	mock.ExpectExec("INSERT INTO ledger_events").
		WithArgs(
			ev.ID,
			string(ev.Kind),
			ev.At,
			ev.PositionID,
			ev.TermID,
			ev.BidID,
			ev.Actor.Hex(),
			ev.Counterparty.Hex(),
			"10000",
			"30000",
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.RecordEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordEvent_NilAmounts(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStorageFromDB(db, zaptest.NewLogger(t))
	ev := sampleEvent()
	ev.BaseAmount = nil
	ev.BonusAmount = nil

	mock.ExpectExec("INSERT INTO ledger_events").
		WithArgs(
			ev.ID, string(ev.Kind), ev.At, ev.PositionID, ev.TermID, ev.BidID,
			ev.Actor.Hex(), ev.Counterparty.Hex(), "0", "0",
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.RecordEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecentEvents(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresStorageFromDB(db, zaptest.NewLogger(t))
	ev := sampleEvent()

	rows := sqlmock.NewRows([]string{
		"id", "kind", "occurred_at", "position_id", "term_id", "bid_id",
		"actor", "counterparty", "base_amount", "bonus_amount",
	}).AddRow(ev.ID, string(ev.Kind), ev.At, ev.PositionID, ev.TermID, ev.BidID,
		ev.Actor.Hex(), ev.Counterparty.Hex(), "10000", "30000")

	mock.ExpectQuery("SELECT (.+) FROM ledger_events").
		WithArgs(10).
		WillReturnRows(rows)

	events, err := s.RecentEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.Equal(t, types.EventPositionOpened, events[0].Kind)
	assert.Equal(t, int64(10000), events[0].BaseAmount.Int64())
	assert.Equal(t, ev.Actor, events[0].Actor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsoleStorage_RingBuffer(t *testing.T) {
	t.Parallel()

	s := NewConsoleStorage(zaptest.NewLogger(t), 2)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		ev := sampleEvent()
		ev.ID = id
		require.NoError(t, s.RecordEvent(ctx, ev))
	}

	events, err := s.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2, "oldest event evicted")
	assert.Equal(t, "c", events[0].ID)
	assert.Equal(t, "b", events[1].ID)

	limited, err := s.RecentEvents(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)

	assert.NoError(t, s.Close())
}
