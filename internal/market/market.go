// Package market runs the secondary marketplace for listed positions. Bids
// carry no escrow: funds move only when the owner accepts, and every bid on
// a position is discarded the moment the position leaves the market.
package market

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yieldledger/yieldledger/internal/ledger"
	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap"
)

// Market owns all bid records. Positions themselves stay in the ledger; the
// market drives their listing status through the ledger's API.
type Market struct {
	mu     sync.Mutex
	logger *zap.Logger
	ledger *ledger.Ledger
	sink   ledger.Sink
	bids   []*bidRecord
}

// bidRecord wraps a bid with a tombstone. Discarded bids keep their slot so
// identifiers stay stable.
type bidRecord struct {
	bid       *types.Bid
	discarded bool
}

// New creates a market bound to the given ledger.
func New(logger *zap.Logger, l *ledger.Ledger, sink ledger.Sink) *Market {
	return &Market{logger: logger, ledger: l, sink: sink}
}

// List puts the caller's position up for sale.
func (m *Market) List(positionID int64, caller common.Address) error {
	return m.ledger.ListForSale(positionID, caller)
}

// MakeBid records an offer of bonus asset for a listed position. The bidder
// commits nothing yet; settlement happens on acceptance.
func (m *Market) MakeBid(bidder common.Address, positionID int64, amount *big.Int) (*types.Bid, error) {
	if m.ledger.Paused() {
		return nil, types.ErrPaused
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("bid amount must be positive")
	}

	pos, err := m.ledger.Position(positionID)
	if err != nil {
		return nil, err
	}
	if pos.Status != types.StatusForSale {
		return nil, types.ErrNotForSale
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	bid := &types.Bid{
		ID:         int64(len(m.bids)),
		Bidder:     bidder,
		PositionID: positionID,
		Amount:     new(big.Int).Set(amount),
	}
	m.bids = append(m.bids, &bidRecord{bid: bid})

	BidsMadeTotal.Inc()

	m.logger.Info("bid-made",
		zap.Int64("bid-id", bid.ID),
		zap.Int64("position-id", positionID),
		zap.String("bidder", bidder.Hex()),
		zap.String("amount", amount.String()))

	m.sink.Emit(&types.Event{
		Kind:        types.EventBidMade,
		PositionID:  positionID,
		BidID:       bid.ID,
		Actor:       bidder,
		BonusAmount: new(big.Int).Set(amount),
	})

	return bid.Clone(), nil
}

// AcceptBid settles the chosen bid through the ledger and discards every
// bid on the position, the accepted one included. Only the position owner
// may accept, and only the bid's exact amount settles. Returns the accepted
// bid and the fee taken.
func (m *Market) AcceptBid(ctx context.Context, bidID int64, caller common.Address) (*types.Bid, *big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(bidID)
	if err != nil {
		return nil, nil, err
	}
	bid := rec.bid

	fee, err := m.ledger.AcceptTransfer(ctx, bid.PositionID, caller, bid.Bidder, bid.Amount)
	if err != nil {
		return nil, nil, err
	}

	bid.Accepted = true
	discarded := m.discardForPosition(bid.PositionID)

	BidsAcceptedTotal.Inc()

	m.logger.Info("bid-accepted",
		zap.Int64("bid-id", bidID),
		zap.Int64("position-id", bid.PositionID),
		zap.Int("bids-discarded", discarded))

	return bid.Clone(), fee, nil
}

// Remove takes the caller's position off the market and discards its bids.
func (m *Market) Remove(positionID int64, caller common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.ledger.Delist(positionID, caller)
	if err != nil {
		return err
	}

	discarded := m.discardForPosition(positionID)

	m.logger.Info("position-removed-from-market",
		zap.Int64("position-id", positionID),
		zap.Int("bids-discarded", discarded))

	return nil
}

// Bid returns the bid if it is still active.
func (m *Market) Bid(id int64) (*types.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	return rec.bid.Clone(), nil
}

// BidsForPosition returns the active bids on a position in bid order.
func (m *Market) BidsForPosition(positionID int64) []*types.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*types.Bid
	for _, rec := range m.bids {
		if rec.discarded || rec.bid.PositionID != positionID {
			continue
		}
		out = append(out, rec.bid.Clone())
	}
	return out
}

// Bids returns all active bids in bid order.
func (m *Market) Bids() []*types.Bid {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*types.Bid
	for _, rec := range m.bids {
		if rec.discarded {
			continue
		}
		out = append(out, rec.bid.Clone())
	}
	return out
}

// ImportBid appends a migrated bid and returns its identifier. Bids already
// accepted in the legacy ledger import as discarded records.
func (m *Market) ImportBid(bid *types.Bid) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := bid.Clone()
	cp.ID = int64(len(m.bids))
	m.bids = append(m.bids, &bidRecord{bid: cp, discarded: cp.Accepted})
	return cp.ID
}

// discardForPosition tombstones every active bid on the position and
// returns how many were discarded. Caller holds the mutex.
func (m *Market) discardForPosition(positionID int64) int {
	n := 0
	for _, rec := range m.bids {
		if rec.discarded || rec.bid.PositionID != positionID {
			continue
		}
		rec.discarded = true
		n++
	}
	return n
}

func (m *Market) lookup(id int64) (*bidRecord, error) {
	if id < 0 || id >= int64(len(m.bids)) || m.bids[id].discarded {
		return nil, fmt.Errorf("bid %d: %w", id, types.ErrNotFound)
	}
	return m.bids[id], nil
}
