// Package migration imports a legacy ledger export. Records are imported
// in input order so legacy array indexes map one-to-one onto the new
// sequential identifiers; cross-references are shifted by whatever each
// registry already holds.
package migration

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yieldledger/yieldledger/internal/ledger"
	"github.com/yieldledger/yieldledger/internal/market"
	"github.com/yieldledger/yieldledger/internal/terms"
	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap"
)

// defaultBonusBonusRatio is applied to legacy terms, which predate the
// bonus-on-bonus rate and implicitly paid the offered stake back in full.
const defaultBonusBonusRatio = 10000

// LegacyTerm is a term row from the legacy export. Amounts are decimal
// strings; an absent capacity means the term carried no cap.
type LegacyTerm struct {
	DurationDays uint64 `json:"duration_days"`
	InterestRate uint64 `json:"interest_rate"`
	AltaRatio    uint64 `json:"alta_ratio"`
	Capacity     string `json:"capacity,omitempty"`
	Accepted     string `json:"accepted,omitempty"`
	Open         bool   `json:"open"`
}

// LegacyPosition is a deposit contract row from the legacy export.
type LegacyPosition struct {
	Owner         string `json:"owner"`
	Term          int64  `json:"term"`
	Asset         string `json:"asset"`
	StartTime     int64  `json:"start_time"`
	Principal     string `json:"principal"`
	BaseYieldPaid string `json:"base_yield_paid,omitempty"`
	BonusAmount   string `json:"bonus_amount,omitempty"`
	BonusPaid     string `json:"bonus_paid,omitempty"`
	Tier          uint8  `json:"tier"`
	Status        uint8  `json:"status"`
}

// LegacyBid is a marketplace bid row from the legacy export.
type LegacyBid struct {
	Bidder   string `json:"bidder"`
	Position int64  `json:"position"`
	Amount   string `json:"amount"`
	Accepted bool   `json:"accepted"`
}

// Export is the full legacy snapshot.
type Export struct {
	Terms     []LegacyTerm     `json:"terms"`
	Positions []LegacyPosition `json:"positions"`
	Bids      []LegacyBid      `json:"bids"`
}

// Report summarizes an import run.
type Report struct {
	Terms     int
	Positions int
	Bids      int
}

// Adapter imports legacy records into the live registries.
type Adapter struct {
	logger *zap.Logger
	terms  *terms.Registry
	ledger *ledger.Ledger
	market *market.Market
}

// NewAdapter creates a migration adapter.
func NewAdapter(logger *zap.Logger, t *terms.Registry, l *ledger.Ledger, m *market.Market) *Adapter {
	return &Adapter{logger: logger, terms: t, ledger: l, market: m}
}

// Migrate imports the export in term, position, bid order. There is no
// idempotency guard: running the same export twice duplicates records.
func (a *Adapter) Migrate(export *Export) (*Report, error) {
	termOffset := int64(a.terms.Len())
	posOffset := int64(len(a.ledger.Positions()))

	for i, lt := range export.Terms {
		term, err := mapTerm(&lt)
		if err != nil {
			return nil, fmt.Errorf("term %d: %w", i, err)
		}
		a.terms.Import(term)
	}

	for i, lp := range export.Positions {
		pos, err := mapPosition(&lp)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		if lp.Term < 0 || int(lp.Term) >= len(export.Terms) {
			return nil, fmt.Errorf("position %d: term index %d out of range", i, lp.Term)
		}
		pos.TermID = lp.Term + termOffset
		a.ledger.ImportPosition(pos)
	}

	for i, lb := range export.Bids {
		bid, err := mapBid(&lb)
		if err != nil {
			return nil, fmt.Errorf("bid %d: %w", i, err)
		}
		if lb.Position < 0 || int(lb.Position) >= len(export.Positions) {
			return nil, fmt.Errorf("bid %d: position index %d out of range", i, lb.Position)
		}
		bid.PositionID = lb.Position + posOffset
		a.market.ImportBid(bid)
	}

	report := &Report{
		Terms:     len(export.Terms),
		Positions: len(export.Positions),
		Bids:      len(export.Bids),
	}

	a.logger.Info("legacy-export-imported",
		zap.Int("terms", report.Terms),
		zap.Int("positions", report.Positions),
		zap.Int("bids", report.Bids))

	return report, nil
}

func mapTerm(lt *LegacyTerm) (*types.Term, error) {
	if lt.DurationDays == 0 {
		return nil, fmt.Errorf("duration must be positive")
	}

	accepted, err := parseAmount(lt.Accepted)
	if err != nil {
		return nil, fmt.Errorf("accepted: %w", err)
	}
	capacity, err := parseAmount(lt.Capacity)
	if err != nil {
		return nil, fmt.Errorf("capacity: %w", err)
	}
	// Legacy terms without a cap import as exactly filled so no new
	// deposits land on them until an operator raises the capacity.
	if capacity.Cmp(accepted) < 0 {
		capacity = new(big.Int).Set(accepted)
	}

	return &types.Term{
		Duration:        time.Duration(lt.DurationDays) * 24 * time.Hour,
		BaseRate:        lt.InterestRate,
		BonusRatio:      lt.AltaRatio,
		BonusBonusRatio: defaultBonusBonusRatio,
		Capacity:        capacity,
		Accepted:        accepted,
		Open:            lt.Open,
	}, nil
}

func mapPosition(lp *LegacyPosition) (*types.Position, error) {
	principal, err := parseAmount(lp.Principal)
	if err != nil {
		return nil, fmt.Errorf("principal: %w", err)
	}
	if principal.Sign() <= 0 {
		return nil, fmt.Errorf("principal must be positive")
	}
	basePaid, err := parseAmount(lp.BaseYieldPaid)
	if err != nil {
		return nil, fmt.Errorf("base yield paid: %w", err)
	}
	bonusAmount, err := parseAmount(lp.BonusAmount)
	if err != nil {
		return nil, fmt.Errorf("bonus amount: %w", err)
	}
	bonusPaid, err := parseAmount(lp.BonusPaid)
	if err != nil {
		return nil, fmt.Errorf("bonus paid: %w", err)
	}
	if lp.Status > uint8(types.StatusForSale) {
		return nil, fmt.Errorf("unknown status %d", lp.Status)
	}
	if lp.Tier > uint8(types.Tier2) {
		return nil, fmt.Errorf("unknown tier %d", lp.Tier)
	}

	return &types.Position{
		Owner:         common.HexToAddress(lp.Owner),
		Asset:         common.HexToAddress(lp.Asset),
		StartTime:     time.Unix(lp.StartTime, 0).UTC(),
		Principal:     principal,
		BaseYieldPaid: basePaid,
		BonusAmount:   bonusAmount,
		BonusPaid:     bonusPaid,
		Tier:          types.Tier(lp.Tier),
		Status:        types.Status(lp.Status),
	}, nil
}

func mapBid(lb *LegacyBid) (*types.Bid, error) {
	amount, err := parseAmount(lb.Amount)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}

	return &types.Bid{
		Bidder:   common.HexToAddress(lb.Bidder),
		Amount:   amount,
		Accepted: lb.Accepted,
	}, nil
}

// parseAmount parses a decimal string, treating absence as zero.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
