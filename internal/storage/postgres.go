package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"
	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap"
)

// PostgresStorage stores events in a ledger_events table.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStorage opens and pings a Postgres connection.
func NewPostgresStorage(connStr string, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("postgres-storage-connected")

	return &PostgresStorage{db: db, logger: logger}, nil
}

// NewPostgresStorageFromDB wraps an existing connection. Used in tests.
func NewPostgresStorageFromDB(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger}
}

// RecordEvent inserts the event. Amount columns are numeric strings so
// arbitrary-precision values survive the round trip.
func (s *PostgresStorage) RecordEvent(ctx context.Context, ev *types.Event) error {
	query := `
		INSERT INTO ledger_events (
			id, kind, occurred_at, position_id, term_id, bid_id,
			actor, counterparty, base_amount, bonus_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID,
		string(ev.Kind),
		ev.At,
		ev.PositionID,
		ev.TermID,
		ev.BidID,
		ev.Actor.Hex(),
		ev.Counterparty.Hex(),
		amountString(ev.BaseAmount),
		amountString(ev.BonusAmount),
	)
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}

	return nil
}

// RecentEvents returns up to limit events, newest first.
func (s *PostgresStorage) RecentEvents(ctx context.Context, limit int) ([]*types.Event, error) {
	query := `
		SELECT id, kind, occurred_at, position_id, term_id, bid_id,
			actor, counterparty, base_amount, bonus_amount
		FROM ledger_events
		ORDER BY occurred_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger events: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}

	return events, nil
}

// Close closes the database connection.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func scanEvent(rows *sql.Rows) (*types.Event, error) {
	var (
		ev           types.Event
		kind         string
		actor        string
		counterparty string
		baseAmount   string
		bonusAmount  string
	)

	err := rows.Scan(&ev.ID, &kind, &ev.At, &ev.PositionID, &ev.TermID, &ev.BidID,
		&actor, &counterparty, &baseAmount, &bonusAmount)
	if err != nil {
		return nil, fmt.Errorf("scan ledger event: %w", err)
	}

	ev.Kind = types.EventKind(kind)
	ev.Actor = common.HexToAddress(actor)
	ev.Counterparty = common.HexToAddress(counterparty)
	ev.BaseAmount, err = parseAmount(baseAmount)
	if err != nil {
		return nil, err
	}
	ev.BonusAmount, err = parseAmount(bonusAmount)
	if err != nil {
		return nil, err
	}

	return &ev, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q", s)
	}
	return v, nil
}
