package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is the lifecycle state of a position.
type Status uint8

// Position lifecycle states. The numeric values match the legacy ledger so
// migrated records keep their meaning.
const (
	StatusOpen Status = iota
	StatusClosed
	StatusForSale
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusForSale:
		return "for_sale"
	default:
		return "unknown"
	}
}

// Tier is the bonus-stake bracket assigned at open time.
type Tier uint8

const (
	Tier0 Tier = iota
	Tier1
	Tier2
)

// Term is a fixed-term deposit offer positions are opened against.
// Terms are append-only: closed terms are retained for audit and for
// historical positions that still reference them.
type Term struct {
	ID              int64         `json:"id"`
	Duration        time.Duration `json:"duration"`
	BaseRate        uint64        `json:"base_rate_bps"`
	BonusRatio      uint64        `json:"bonus_ratio_bps"`
	BonusBonusRatio uint64        `json:"bonus_bonus_ratio_bps"`
	Capacity        *big.Int      `json:"capacity"`
	Accepted        *big.Int      `json:"accepted"`
	Open            bool          `json:"open"`
}

// Clone returns a deep copy so callers never alias registry-owned state.
func (t *Term) Clone() *Term {
	cp := *t
	cp.Capacity = new(big.Int).Set(t.Capacity)
	cp.Accepted = new(big.Int).Set(t.Accepted)
	return &cp
}

// Position is an individual locked deposit with its own accrual and status.
type Position struct {
	ID            int64          `json:"id"`
	Owner         common.Address `json:"owner"`
	TermID        int64          `json:"term_id"`
	Asset         common.Address `json:"asset"`
	StartTime     time.Time      `json:"start_time"`
	Principal     *big.Int       `json:"principal"`
	BaseYieldPaid *big.Int       `json:"base_yield_paid"`
	BonusAmount   *big.Int       `json:"bonus_amount"`
	BonusPaid     *big.Int       `json:"bonus_paid"`
	Tier          Tier           `json:"tier"`
	Status        Status         `json:"status"`
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	cp := *p
	cp.Principal = new(big.Int).Set(p.Principal)
	cp.BaseYieldPaid = new(big.Int).Set(p.BaseYieldPaid)
	cp.BonusAmount = new(big.Int).Set(p.BonusAmount)
	cp.BonusPaid = new(big.Int).Set(p.BonusPaid)
	return &cp
}

// Bid is a pending offer of bonus asset to acquire a listed position.
// No escrow is taken at bid time; funds move only on acceptance.
type Bid struct {
	ID         int64          `json:"id"`
	Bidder     common.Address `json:"bidder"`
	PositionID int64          `json:"position_id"`
	Amount     *big.Int       `json:"amount"`
	Accepted   bool           `json:"accepted"`
}

// Clone returns a deep copy of the bid.
func (b *Bid) Clone() *Bid {
	cp := *b
	cp.Amount = new(big.Int).Set(b.Amount)
	return &cp
}

// EventKind identifies an observability fact raised on state change.
type EventKind string

const (
	EventPositionOpened       EventKind = "position_opened"
	EventPositionRedeemed     EventKind = "position_redeemed"
	EventPositionClosed       EventKind = "position_closed"
	EventPositionListed       EventKind = "position_listed"
	EventPositionDelisted     EventKind = "position_delisted"
	EventBidMade              EventKind = "bid_made"
	EventOwnershipTransferred EventKind = "ownership_transferred"
)

// Event is a fact emitted after a state change commits. Events are consumed
// by external indexers via storage and the websocket stream.
type Event struct {
	ID           string         `json:"id"`
	Kind         EventKind      `json:"kind"`
	At           time.Time      `json:"at"`
	PositionID   int64          `json:"position_id"`
	TermID       int64          `json:"term_id,omitempty"`
	BidID        int64          `json:"bid_id,omitempty"`
	Actor        common.Address `json:"actor"`
	Counterparty common.Address `json:"counterparty,omitempty"`
	BaseAmount   *big.Int       `json:"base_amount,omitempty"`
	BonusAmount  *big.Int       `json:"bonus_amount,omitempty"`
}
