package storage

import (
	"context"
	"sync"

	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap"
)

// ConsoleStorage logs events instead of persisting them and keeps a small
// in-memory ring for the recent-events API. Used when no database is
// configured.
type ConsoleStorage struct {
	mu     sync.Mutex
	logger *zap.Logger
	recent []*types.Event
	cap    int
}

// NewConsoleStorage creates a console storage retaining the last keep events.
func NewConsoleStorage(logger *zap.Logger, keep int) *ConsoleStorage {
	if keep <= 0 {
		keep = 256
	}
	return &ConsoleStorage{logger: logger, cap: keep}
}

// RecordEvent logs the event and retains it in memory.
func (s *ConsoleStorage) RecordEvent(_ context.Context, ev *types.Event) error {
	s.logger.Info("ledger-event",
		zap.String("event-id", ev.ID),
		zap.String("kind", string(ev.Kind)),
		zap.Int64("position-id", ev.PositionID),
		zap.String("actor", ev.Actor.Hex()))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append(s.recent, ev)
	if len(s.recent) > s.cap {
		s.recent = s.recent[len(s.recent)-s.cap:]
	}
	return nil
}

// RecentEvents returns up to limit retained events, newest first.
func (s *ConsoleStorage) RecentEvents(_ context.Context, limit int) ([]*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.recent)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*types.Event, 0, n)
	for i := len(s.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

// Close is a no-op.
func (s *ConsoleStorage) Close() error {
	return nil
}
