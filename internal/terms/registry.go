// Package terms holds the catalog of fixed-term deposit offers. The registry
// is append-only: terms are closed, never deleted, so historical positions
// can always resolve the term they were opened against.
package terms

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap"
)

// Registry owns all term records and is the only component allowed to
// mutate term capacity.
type Registry struct {
	mu     sync.RWMutex
	logger *zap.Logger
	terms  []*types.Term
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{logger: logger}
}

// Add appends a new open term with zero accepted capacity and returns it.
// Rate and ratio values are caller-trusted basis points; only a zero
// duration is rejected.
func (r *Registry) Add(duration time.Duration, baseRate, bonusRatio, bonusBonusRatio uint64, capacity *big.Int) (*types.Term, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("term duration must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	term := &types.Term{
		ID:              int64(len(r.terms)),
		Duration:        duration,
		BaseRate:        baseRate,
		BonusRatio:      bonusRatio,
		BonusBonusRatio: bonusBonusRatio,
		Capacity:        new(big.Int).Set(capacity),
		Accepted:        new(big.Int),
		Open:            true,
	}
	r.terms = append(r.terms, term)

	r.logger.Info("term-added",
		zap.Int64("term-id", term.ID),
		zap.Duration("duration", duration),
		zap.Uint64("base-rate-bps", baseRate),
		zap.Uint64("bonus-ratio-bps", bonusRatio),
		zap.String("capacity", capacity.String()))

	TermsAddedTotal.Inc()

	return term.Clone(), nil
}

// Get returns a copy of the term.
func (r *Registry) Get(id int64) (*types.Term, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	term, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return term.Clone(), nil
}

// List returns copies of all terms in creation order.
func (r *Registry) List() []*types.Term {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Term, len(r.terms))
	for i, term := range r.terms {
		out[i] = term.Clone()
	}
	return out
}

// Close marks the term closed. Idempotent.
func (r *Registry) Close(id int64) error {
	return r.setOpen(id, false)
}

// Open marks the term open. Idempotent.
func (r *Registry) Open(id int64) error {
	return r.setOpen(id, true)
}

func (r *Registry) setOpen(id int64, open bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	term, err := r.lookup(id)
	if err != nil {
		return err
	}
	term.Open = open

	r.logger.Info("term-open-flag-set",
		zap.Int64("term-id", id),
		zap.Bool("open", open))

	return nil
}

// Update replaces the term's offer parameters. The accepted running total is
// never touched; a capacity below the already-accepted amount is rejected.
func (r *Registry) Update(id int64, duration time.Duration, baseRate, bonusRatio, bonusBonusRatio uint64, capacity *big.Int, open bool) error {
	if duration <= 0 {
		return fmt.Errorf("term duration must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	term, err := r.lookup(id)
	if err != nil {
		return err
	}
	if capacity.Cmp(term.Accepted) < 0 {
		return fmt.Errorf("capacity %s below accepted %s: %w", capacity, term.Accepted, types.ErrCapacityExceeded)
	}

	term.Duration = duration
	term.BaseRate = baseRate
	term.BonusRatio = bonusRatio
	term.BonusBonusRatio = bonusBonusRatio
	term.Capacity = new(big.Int).Set(capacity)
	term.Open = open

	r.logger.Info("term-updated", zap.Int64("term-id", id))

	return nil
}

// Reserve atomically claims amount of the term's remaining capacity. It is
// the only capacity-mutating entry point; the ledger must call it before a
// position is considered created. When the reservation fills the term
// exactly, the term auto-closes and autoClosed reports it so a rollback can
// restore the flag.
func (r *Registry) Reserve(id int64, amount *big.Int) (autoClosed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	term, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	if !term.Open {
		return false, types.ErrTermClosed
	}

	next := new(big.Int).Add(term.Accepted, amount)
	if next.Cmp(term.Capacity) > 0 {
		CapacityRejectionsTotal.Inc()
		return false, types.ErrCapacityExceeded
	}

	term.Accepted = next
	if term.Accepted.Cmp(term.Capacity) == 0 {
		term.Open = false
		autoClosed = true
		r.logger.Info("term-filled", zap.Int64("term-id", id))
	}

	return autoClosed, nil
}

// Release undoes a reservation on the rollback path of a failed open. The
// reopen flag must be the autoClosed result of the matching Reserve call so
// an admin-closed term is not accidentally reopened.
func (r *Registry) Release(id int64, amount *big.Int, reopen bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	term, err := r.lookup(id)
	if err != nil {
		return
	}

	term.Accepted.Sub(term.Accepted, amount)
	if term.Accepted.Sign() < 0 {
		term.Accepted.SetInt64(0)
	}
	if reopen {
		term.Open = true
	}
}

// Import appends a migrated term as-is, preserving its accepted total and
// open flag. Returns the assigned identifier.
func (r *Registry) Import(term *types.Term) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := term.Clone()
	cp.ID = int64(len(r.terms))
	r.terms = append(r.terms, cp)
	return cp.ID
}

// Len returns the number of terms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.terms)
}

func (r *Registry) lookup(id int64) (*types.Term, error) {
	if id < 0 || id >= int64(len(r.terms)) {
		return nil, fmt.Errorf("term %d: %w", id, types.ErrNotFound)
	}
	return r.terms[id], nil
}
