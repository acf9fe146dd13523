// Package storage persists ledger events for external indexers and audit.
package storage

import (
	"context"

	"github.com/yieldledger/yieldledger/pkg/types"
)

// Storage is the event persistence backend.
type Storage interface {
	// RecordEvent durably stores one ledger event.
	RecordEvent(ctx context.Context, ev *types.Event) error

	// RecentEvents returns up to limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]*types.Event, error)

	// Close releases backend resources.
	Close() error
}
