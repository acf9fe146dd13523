// Package ledger owns position records and their lifecycle. Every public
// state-changing operation runs as one atomic unit under the ledger mutex:
// validations first, then the full settlement batch through the asset
// mover, and only after the batch succeeds are the staged mutations
// committed. A settlement failure therefore leaves no observable effect.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yieldledger/yieldledger/internal/accrual"
	"github.com/yieldledger/yieldledger/internal/terms"
	"github.com/yieldledger/yieldledger/pkg/assets"
	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap"
)

const bpsDenominator = 10000

// Sink consumes observability facts raised after a state change commits.
type Sink interface {
	Emit(ev *types.Event)
}

// Ledger is the position ledger and accrual bookkeeper.
type Ledger struct {
	mu     sync.Mutex
	logger *zap.Logger
	terms  *terms.Registry
	mover  assets.Mover
	sink   Sink
	clock  func() time.Time

	vault      common.Address
	bonusAsset common.Address

	paused         bool
	feeBps         uint64
	feeSink        common.Address
	acceptedAssets map[common.Address]bool

	positions []*types.Position
}

// Config holds ledger configuration.
type Config struct {
	Logger         *zap.Logger
	Terms          *terms.Registry
	Mover          assets.Mover
	Sink           Sink
	Clock          func() time.Time // defaults to time.Now
	Vault          common.Address   // the ledger's own custody identity
	BonusAsset     common.Address
	FeeBps         uint64
	FeeSink        common.Address
	AcceptedAssets []common.Address
}

// New creates a ledger with the given configuration.
func New(cfg *Config) (*Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Terms == nil {
		return nil, fmt.Errorf("term registry cannot be nil")
	}
	if cfg.Mover == nil {
		return nil, fmt.Errorf("asset mover cannot be nil")
	}
	if cfg.FeeBps > bpsDenominator {
		return nil, fmt.Errorf("transfer fee must be at most %d bps", bpsDenominator)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	accepted := make(map[common.Address]bool, len(cfg.AcceptedAssets))
	for _, asset := range cfg.AcceptedAssets {
		accepted[asset] = true
	}

	return &Ledger{
		logger:         cfg.Logger,
		terms:          cfg.Terms,
		mover:          cfg.Mover,
		sink:           cfg.Sink,
		clock:          clock,
		vault:          cfg.Vault,
		bonusAsset:     cfg.BonusAsset,
		feeBps:         cfg.FeeBps,
		feeSink:        cfg.FeeSink,
		acceptedAssets: accepted,
	}, nil
}

// OpenPosition locks principal against an open term. The capacity
// reservation happens strictly before the position is created; if the
// funding settlement fails, the reservation is released and the operation
// has no effect.
func (l *Ledger) OpenPosition(ctx context.Context, owner common.Address, termID int64, asset common.Address, principal, bonusOffered *big.Int) (*types.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return nil, types.ErrPaused
	}
	if !l.acceptedAssets[asset] {
		return nil, fmt.Errorf("asset %s: %w", asset.Hex(), types.ErrAssetNotAccepted)
	}
	if principal.Sign() <= 0 {
		return nil, fmt.Errorf("principal must be positive")
	}

	term, err := l.terms.Get(termID)
	if err != nil {
		return nil, err
	}
	if !term.Open {
		return nil, types.ErrTermClosed
	}

	tier1, tier2 := accrual.TierThresholds(principal, term)
	tier := accrual.DeriveTier(bonusOffered, tier1, tier2)
	bonusAmount := accrual.BonusAllocation(principal, bonusOffered, term, tier)

	autoClosed, err := l.terms.Reserve(termID, principal)
	if err != nil {
		return nil, err
	}

	transfers := []assets.Transfer{
		{Token: asset, From: owner, To: l.vault, Amount: new(big.Int).Set(principal)},
	}
	if bonusOffered.Sign() > 0 {
		transfers = append(transfers, assets.Transfer{
			Token: l.bonusAsset, From: owner, To: l.vault, Amount: new(big.Int).Set(bonusOffered),
		})
	}

	err = l.mover.Settle(ctx, transfers)
	if err != nil {
		l.terms.Release(termID, principal, autoClosed)
		SettlementFailuresTotal.Inc()
		return nil, fmt.Errorf("fund position: %w: %v", types.ErrTransferFailed, err)
	}

	pos := &types.Position{
		ID:            int64(len(l.positions)),
		Owner:         owner,
		TermID:        termID,
		Asset:         asset,
		StartTime:     l.clock(),
		Principal:     new(big.Int).Set(principal),
		BaseYieldPaid: new(big.Int),
		BonusAmount:   bonusAmount,
		BonusPaid:     new(big.Int),
		Tier:          tier,
		Status:        types.StatusOpen,
	}
	l.positions = append(l.positions, pos)

	PositionsOpenedTotal.Inc()

	l.logger.Info("position-opened",
		zap.Int64("position-id", pos.ID),
		zap.Int64("term-id", termID),
		zap.String("owner", owner.Hex()),
		zap.String("principal", principal.String()),
		zap.Uint8("tier", uint8(tier)))

	l.emit(&types.Event{
		Kind:        types.EventPositionOpened,
		PositionID:  pos.ID,
		TermID:      termID,
		Actor:       owner,
		BaseAmount:  new(big.Int).Set(principal),
		BonusAmount: new(big.Int).Set(bonusAmount),
	})

	return pos.Clone(), nil
}

// Redemption reports what a redeem call paid out.
type Redemption struct {
	BaseYield *big.Int
	Bonus     *big.Int
	Principal *big.Int // non-zero only at maturity
	Closed    bool
}

// Redeem pays the caller all yield vested since the last redemption. At
// maturity it additionally returns the principal and closes the position.
func (l *Ledger) Redeem(ctx context.Context, positionID int64, caller common.Address) (*Redemption, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return nil, types.ErrPaused
	}

	pos, err := l.lookup(positionID)
	if err != nil {
		return nil, err
	}
	if pos.Owner != caller {
		return nil, types.ErrNotOwner
	}
	if pos.Status == types.StatusClosed {
		return nil, types.ErrAlreadyClosed
	}

	term, err := l.terms.Get(pos.TermID)
	if err != nil {
		return nil, err
	}

	now := l.clock()
	owedBase := accrual.OwedBase(pos, term, now)
	owedBonus := accrual.OwedBonus(pos, term, now)
	matured := accrual.Matured(pos, term, now)

	// A listed position cannot be closed out from under its bids. The owner
	// must delist (or accept a bid) before the maturity-closing redemption.
	if matured && pos.Status == types.StatusForSale {
		return nil, fmt.Errorf("position %d is listed: %w", positionID, types.ErrAlreadyListed)
	}

	red := &Redemption{
		BaseYield: owedBase,
		Bonus:     owedBonus,
		Principal: new(big.Int),
		Closed:    matured,
	}

	var transfers []assets.Transfer
	basePayout := new(big.Int).Set(owedBase)
	if matured {
		basePayout.Add(basePayout, pos.Principal)
		red.Principal = new(big.Int).Set(pos.Principal)
	}
	if basePayout.Sign() > 0 {
		transfers = append(transfers, assets.Transfer{
			Token: pos.Asset, From: l.vault, To: caller, Amount: basePayout,
		})
	}
	if owedBonus.Sign() > 0 {
		transfers = append(transfers, assets.Transfer{
			Token: l.bonusAsset, From: l.vault, To: caller, Amount: new(big.Int).Set(owedBonus),
		})
	}

	err = l.mover.Settle(ctx, transfers)
	if err != nil {
		SettlementFailuresTotal.Inc()
		return nil, fmt.Errorf("redeem position %d: %w: %v", positionID, types.ErrTransferFailed, err)
	}

	pos.BaseYieldPaid.Add(pos.BaseYieldPaid, owedBase)
	pos.BonusPaid.Add(pos.BonusPaid, owedBonus)

	RedemptionsTotal.Inc()

	l.emit(&types.Event{
		Kind:        types.EventPositionRedeemed,
		PositionID:  positionID,
		Actor:       caller,
		BaseAmount:  new(big.Int).Set(owedBase),
		BonusAmount: new(big.Int).Set(owedBonus),
	})

	if matured {
		pos.Status = types.StatusClosed
		PositionsClosedTotal.Inc()
		l.emit(&types.Event{
			Kind:       types.EventPositionClosed,
			PositionID: positionID,
			Actor:      caller,
			BaseAmount: new(big.Int).Set(pos.Principal),
		})
	}

	l.logger.Info("position-redeemed",
		zap.Int64("position-id", positionID),
		zap.String("base-yield", owedBase.String()),
		zap.String("bonus", owedBonus.String()),
		zap.Bool("closed", matured))

	return red, nil
}

// ListForSale moves an open position to the marketplace.
func (l *Ledger) ListForSale(positionID int64, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return types.ErrPaused
	}

	pos, err := l.lookup(positionID)
	if err != nil {
		return err
	}
	if pos.Owner != caller {
		return types.ErrNotOwner
	}
	switch pos.Status {
	case types.StatusForSale:
		return types.ErrAlreadyListed
	case types.StatusClosed:
		return types.ErrAlreadyClosed
	}

	pos.Status = types.StatusForSale

	l.emit(&types.Event{
		Kind:       types.EventPositionListed,
		PositionID: positionID,
		Actor:      caller,
	})

	return nil
}

// Delist returns a listed position to the open state.
func (l *Ledger) Delist(positionID int64, caller common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return types.ErrPaused
	}

	pos, err := l.lookup(positionID)
	if err != nil {
		return err
	}
	if pos.Owner != caller {
		return types.ErrNotOwner
	}
	if pos.Status != types.StatusForSale {
		return types.ErrNotForSale
	}

	pos.Status = types.StatusOpen

	l.emit(&types.Event{
		Kind:       types.EventPositionDelisted,
		PositionID: positionID,
		Actor:      caller,
	})

	return nil
}

// AcceptTransfer settles an accepted bid: it pulls the offered bonus amount
// from the buyer, routes the transfer fee to the fee sink, credits the
// remainder to the seller, settles any yield already vested to the seller,
// and reassigns ownership. Position timing is preserved; only the owner
// changes. The whole settlement is one atomic batch.
func (l *Ledger) AcceptTransfer(ctx context.Context, positionID int64, caller, buyer common.Address, amount *big.Int) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paused {
		return nil, types.ErrPaused
	}

	pos, err := l.lookup(positionID)
	if err != nil {
		return nil, err
	}
	if pos.Owner != caller {
		return nil, types.ErrNotOwner
	}
	if pos.Status != types.StatusForSale {
		return nil, types.ErrNotForSale
	}

	term, err := l.terms.Get(pos.TermID)
	if err != nil {
		return nil, err
	}

	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(l.feeBps))
	fee.Quo(fee, big.NewInt(bpsDenominator))
	proceeds := new(big.Int).Sub(amount, fee)

	// Outstanding yield belongs to the seller: settle it before the owner
	// changes so the buyer only acquires go-forward accrual. Principal
	// stays locked for the new owner.
	now := l.clock()
	owedBase := accrual.OwedBase(pos, term, now)
	owedBonus := accrual.OwedBonus(pos, term, now)

	var transfers []assets.Transfer
	if fee.Sign() > 0 {
		transfers = append(transfers, assets.Transfer{
			Token: l.bonusAsset, From: buyer, To: l.feeSink, Amount: fee,
		})
	}
	if proceeds.Sign() > 0 {
		transfers = append(transfers, assets.Transfer{
			Token: l.bonusAsset, From: buyer, To: caller, Amount: proceeds,
		})
	}
	if owedBase.Sign() > 0 {
		transfers = append(transfers, assets.Transfer{
			Token: pos.Asset, From: l.vault, To: caller, Amount: new(big.Int).Set(owedBase),
		})
	}
	if owedBonus.Sign() > 0 {
		transfers = append(transfers, assets.Transfer{
			Token: l.bonusAsset, From: l.vault, To: caller, Amount: new(big.Int).Set(owedBonus),
		})
	}

	err = l.mover.Settle(ctx, transfers)
	if err != nil {
		SettlementFailuresTotal.Inc()
		return nil, fmt.Errorf("accept transfer for position %d: %w: %v", positionID, types.ErrTransferFailed, err)
	}

	pos.BaseYieldPaid.Add(pos.BaseYieldPaid, owedBase)
	pos.BonusPaid.Add(pos.BonusPaid, owedBonus)
	pos.Owner = buyer
	pos.Status = types.StatusOpen

	OwnershipTransfersTotal.Inc()

	l.logger.Info("position-ownership-transferred",
		zap.Int64("position-id", positionID),
		zap.String("from", caller.Hex()),
		zap.String("to", buyer.Hex()),
		zap.String("amount", amount.String()),
		zap.String("fee", fee.String()))

	l.emit(&types.Event{
		Kind:         types.EventOwnershipTransferred,
		PositionID:   positionID,
		Actor:        caller,
		Counterparty: buyer,
		BonusAmount:  new(big.Int).Set(amount),
	})

	return fee, nil
}

// WithdrawResidual sweeps idle vault balance to the given account. This is
// an operational escape hatch outside position accounting and invariant
// protection; it works even while paused.
func (l *Ledger) WithdrawResidual(ctx context.Context, token, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.mover.Settle(ctx, []assets.Transfer{
		{Token: token, From: l.vault, To: to, Amount: new(big.Int).Set(amount)},
	})
	if err != nil {
		return fmt.Errorf("withdraw residual: %w: %v", types.ErrTransferFailed, err)
	}

	l.logger.Warn("residual-withdrawn",
		zap.String("token", token.Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()))

	return nil
}

// Position returns a copy of the position.
func (l *Ledger) Position(id int64) (*types.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, err := l.lookup(id)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

// Positions returns copies of all positions in creation order.
func (l *Ledger) Positions() []*types.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]*types.Position, len(l.positions))
	for i, pos := range l.positions {
		out[i] = pos.Clone()
	}
	return out
}

// ImportPosition appends a migrated position as-is and returns its
// identifier. Used only by the migration adapter.
func (l *Ledger) ImportPosition(pos *types.Position) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := pos.Clone()
	cp.ID = int64(len(l.positions))
	l.positions = append(l.positions, cp)
	return cp.ID
}

// Pause blocks all state-changing operations until Unpause.
func (l *Ledger) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused = true
	l.logger.Warn("ledger-paused")
}

// Unpause lifts the pause gate.
func (l *Ledger) Unpause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused = false
	l.logger.Info("ledger-unpaused")
}

// Paused reports whether the pause gate is set.
func (l *Ledger) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// SetTransferFee updates the marketplace transfer fee.
func (l *Ledger) SetTransferFee(bps uint64) error {
	if bps > bpsDenominator {
		return fmt.Errorf("transfer fee must be at most %d bps", bpsDenominator)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeBps = bps
	return nil
}

// TransferFee returns the current transfer fee in basis points.
func (l *Ledger) TransferFee() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.feeBps
}

// SetFeeAddress updates the fee sink identity.
func (l *Ledger) SetFeeAddress(sink common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeSink = sink
}

// UpdateAsset adds or removes a base asset from the accepted allowlist.
func (l *Ledger) UpdateAsset(asset common.Address, accepted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acceptedAssets[asset] = accepted
}

// AssetAccepted reports whether a base asset is on the allowlist.
func (l *Ledger) AssetAccepted(asset common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acceptedAssets[asset]
}

func (l *Ledger) lookup(id int64) (*types.Position, error) {
	if id < 0 || id >= int64(len(l.positions)) {
		return nil, fmt.Errorf("position %d: %w", id, types.ErrNotFound)
	}
	return l.positions[id], nil
}
