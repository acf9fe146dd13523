// Package accrual implements the pure yield math for fixed-term positions:
// proportional-time vesting clamped at maturity, basis-point scaling, and
// tier derivation from the bonus stake offered at open.
//
// All division is integer floor division. Rounding always favors the ledger;
// the truncation residual is swept into the final redemption at maturity so
// the cumulative payout over a full term is exact.
package accrual

import (
	"math/big"
	"time"

	"github.com/yieldledger/yieldledger/pkg/types"
)

const bpsDenominator = 10000

// applyBps scales amount by a basis-point rate with floor division.
func applyBps(amount *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, big.NewInt(bpsDenominator))
}

// Elapsed returns the position's accrual time at now, clamped to the term
// duration so nothing accrues past maturity.
func Elapsed(p *types.Position, duration time.Duration, now time.Time) time.Duration {
	if now.Before(p.StartTime) {
		return 0
	}
	elapsed := now.Sub(p.StartTime)
	if elapsed > duration {
		return duration
	}
	return elapsed
}

// Matured reports whether the position has reached full term at now.
func Matured(p *types.Position, term *types.Term, now time.Time) bool {
	return Elapsed(p, term.Duration, now) >= term.Duration
}

// MaxBaseYield is the full-term base-asset interest on the principal.
func MaxBaseYield(principal *big.Int, baseRateBps uint64) *big.Int {
	return applyBps(principal, baseRateBps)
}

// vested prorates a full-term amount by elapsed/duration with floor division.
// At elapsed == duration the result is the full amount exactly, which sweeps
// any truncation residual from earlier partial redemptions. The ratio is
// taken at nanosecond granularity so any positive duration divides cleanly.
func vested(total *big.Int, elapsed, duration time.Duration) *big.Int {
	if duration <= 0 || elapsed >= duration {
		return new(big.Int).Set(total)
	}
	out := new(big.Int).Mul(total, big.NewInt(int64(elapsed)))
	return out.Quo(out, big.NewInt(int64(duration)))
}

// OwedBase returns the base yield redeemable at now, net of what has already
// been paid. Never negative.
func OwedBase(p *types.Position, term *types.Term, now time.Time) *big.Int {
	elapsed := Elapsed(p, term.Duration, now)
	owed := vested(MaxBaseYield(p.Principal, term.BaseRate), elapsed, term.Duration)
	owed.Sub(owed, p.BaseYieldPaid)
	if owed.Sign() < 0 {
		return new(big.Int)
	}
	return owed
}

// OwedBonus returns the bonus yield redeemable at now, net of what has
// already been paid. A position with a zero bonus allocation owes exactly
// zero at all times (zero-of-zero, not an error).
func OwedBonus(p *types.Position, term *types.Term, now time.Time) *big.Int {
	if p.BonusAmount.Sign() == 0 {
		return new(big.Int)
	}
	elapsed := Elapsed(p, term.Duration, now)
	owed := vested(p.BonusAmount, elapsed, term.Duration)
	owed.Sub(owed, p.BonusPaid)
	if owed.Sign() < 0 {
		return new(big.Int)
	}
	return owed
}

// TierThresholds derives the two tier boundary amounts for a principal from
// the term's bonus ratios.
func TierThresholds(principal *big.Int, term *types.Term) (tier1, tier2 *big.Int) {
	return applyBps(principal, term.BonusRatio), applyBps(principal, term.BonusBonusRatio)
}

// DeriveTier maps a bonus offer onto the tier brackets. The brackets are
// contiguous: [0, tier1) -> 0, [tier1, tier2) -> 1, [tier2, inf) -> 2.
func DeriveTier(bonusOffered, tier1, tier2 *big.Int) types.Tier {
	if bonusOffered.Cmp(tier2) >= 0 {
		return types.Tier2
	}
	if bonusOffered.Cmp(tier1) >= 0 {
		return types.Tier1
	}
	return types.Tier0
}

// BonusAllocation computes the bonus-asset amount fixed for the position's
// life at open: the term ratio applied to principal, plus the high-tier
// bonus-on-bonus applied to the offered stake when the offer reaches tier 2.
func BonusAllocation(principal, bonusOffered *big.Int, term *types.Term, tier types.Tier) *big.Int {
	alloc := applyBps(principal, term.BonusRatio)
	if tier == types.Tier2 {
		alloc.Add(alloc, applyBps(bonusOffered, term.BonusBonusRatio))
	}
	return alloc
}
