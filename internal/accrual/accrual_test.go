package accrual

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yieldledger/yieldledger/pkg/types"
)

var testStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func testTerm() *types.Term {
	return &types.Term{
		ID:              0,
		Duration:        1095 * 24 * time.Hour,
		BaseRate:        500,   // 5%
		BonusRatio:      30000, // 300%
		BonusBonusRatio: 10000, // 100% bonus-on-bonus at tier 2
		Capacity:        big.NewInt(31_000_000),
		Accepted:        new(big.Int),
		Open:            true,
	}
}

func testPosition(principal, bonusAmount int64) *types.Position {
	return &types.Position{
		StartTime:     testStart,
		Principal:     big.NewInt(principal),
		BaseYieldPaid: new(big.Int),
		BonusAmount:   big.NewInt(bonusAmount),
		BonusPaid:     new(big.Int),
		Status:        types.StatusOpen,
	}
}

func TestElapsed_ClampedAtMaturity(t *testing.T) {
	t.Parallel()

	term := testTerm()
	pos := testPosition(10000, 0)

	assert.Equal(t, time.Duration(0), Elapsed(pos, term.Duration, testStart.Add(-time.Hour)))
	assert.Equal(t, 10*24*time.Hour, Elapsed(pos, term.Duration, testStart.Add(10*24*time.Hour)))
	assert.Equal(t, term.Duration, Elapsed(pos, term.Duration, testStart.Add(term.Duration)))
	assert.Equal(t, term.Duration, Elapsed(pos, term.Duration, testStart.Add(term.Duration+365*24*time.Hour)))
}

func TestOwedBase_TenDayScenario(t *testing.T) {
	t.Parallel()

	// 10,000 units on a 1095-day 5% term: after 10 days the vested base
	// yield is floor(500 * 10/1095) = 4.
	term := testTerm()
	pos := testPosition(10000, 0)

	owed := OwedBase(pos, term, testStart.Add(10*24*time.Hour))
	assert.Equal(t, int64(4), owed.Int64())
}

func TestOwedBase_FullAtMaturity(t *testing.T) {
	t.Parallel()

	term := testTerm()
	pos := testPosition(10000, 0)

	owed := OwedBase(pos, term, testStart.Add(term.Duration))
	assert.Equal(t, int64(500), owed.Int64(), "full 5%% interest at maturity")
}

func TestOwedBase_ResidualSweptAtMaturity(t *testing.T) {
	t.Parallel()

	// Redeem partway, then at maturity: the two payouts must sum to the
	// exact full-term yield despite floor truncation on the partial one.
	term := testTerm()
	pos := testPosition(10000, 0)

	partial := OwedBase(pos, term, testStart.Add(777*24*time.Hour))
	pos.BaseYieldPaid.Add(pos.BaseYieldPaid, partial)

	final := OwedBase(pos, term, testStart.Add(term.Duration))
	total := new(big.Int).Add(partial, final)
	assert.Equal(t, int64(500), total.Int64())
}

func TestOwedBase_SubSecondDuration(t *testing.T) {
	t.Parallel()

	// Terms shorter than a second are valid; vesting must prorate at
	// nanosecond granularity instead of dividing by zero whole seconds.
	term := testTerm()
	term.Duration = 500 * time.Millisecond
	pos := testPosition(10000, 0)

	owed := OwedBase(pos, term, testStart.Add(200*time.Millisecond))
	assert.Equal(t, int64(200), owed.Int64(), "floor of 500 * 200ms / 500ms")

	owed = OwedBase(pos, term, testStart.Add(term.Duration))
	assert.Equal(t, int64(500), owed.Int64())
}

func TestOwedBase_MonotonicCumulative(t *testing.T) {
	t.Parallel()

	term := testTerm()
	pos := testPosition(999983, 0) // prime-ish principal to force truncation

	prev := new(big.Int)
	cumulative := new(big.Int)
	for day := 0; day <= 1095; day += 73 {
		owed := OwedBase(pos, term, testStart.Add(time.Duration(day)*24*time.Hour))
		cumulative.Add(cumulative, owed)
		pos.BaseYieldPaid.Add(pos.BaseYieldPaid, owed)

		require.GreaterOrEqual(t, cumulative.Cmp(prev), 0, "cumulative redeemed must never decrease")
		prev.Set(cumulative)
	}

	assert.Equal(t, MaxBaseYield(pos.Principal, term.BaseRate), cumulative)
}

func TestOwedBase_NoDoublePaymentSameTimestamp(t *testing.T) {
	t.Parallel()

	term := testTerm()
	pos := testPosition(10000, 0)
	now := testStart.Add(100 * 24 * time.Hour)

	first := OwedBase(pos, term, now)
	pos.BaseYieldPaid.Add(pos.BaseYieldPaid, first)

	second := OwedBase(pos, term, now)
	assert.Zero(t, second.Sign(), "second redemption at the same timestamp must owe zero")
}

func TestOwedBonus_ZeroAllocation(t *testing.T) {
	t.Parallel()

	// Zero-of-zero: a position with no bonus allocation owes zero bonus at
	// every point in time, including maturity.
	term := testTerm()
	pos := testPosition(10000, 0)
	pos.BonusAmount = new(big.Int)

	assert.Zero(t, OwedBonus(pos, term, testStart.Add(24*time.Hour)).Sign())
	assert.Zero(t, OwedBonus(pos, term, testStart.Add(term.Duration)).Sign())
}

func TestOwedBonus_LinearVesting(t *testing.T) {
	t.Parallel()

	term := testTerm()
	pos := testPosition(10000, 30000)

	// floor(30000 * 10/1095) = 273
	owed := OwedBonus(pos, term, testStart.Add(10*24*time.Hour))
	assert.Equal(t, int64(273), owed.Int64())

	owed = OwedBonus(pos, term, testStart.Add(term.Duration))
	assert.Equal(t, int64(30000), owed.Int64())
}

func TestMaxBaseYield(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		principal int64
		rate      uint64
		want      int64
	}{
		{"five-percent", 10000, 500, 500},
		{"floor-truncation", 999, 500, 49},
		{"zero-rate", 10000, 0, 0},
		{"zero-principal", 0, 500, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := MaxBaseYield(big.NewInt(tt.principal), tt.rate)
			assert.Equal(t, tt.want, got.Int64())
		})
	}
}

func TestDeriveTier_ContiguousPartition(t *testing.T) {
	t.Parallel()

	term := testTerm()
	principal := big.NewInt(10000)
	tier1, tier2 := TierThresholds(principal, term)

	require.Equal(t, int64(30000), tier1.Int64())
	require.Equal(t, int64(10000), tier2.Int64())

	// BonusBonusRatio below BonusRatio puts tier2 below tier1; use a term
	// where the schedule is ordered for the partition check.
	term.BonusRatio = 1000       // tier1 = 1000
	term.BonusBonusRatio = 10000 // tier2 = 10000
	tier1, tier2 = TierThresholds(principal, term)

	tests := []struct {
		offered int64
		want    types.Tier
	}{
		{0, types.Tier0},
		{1, types.Tier0},
		{999, types.Tier0},
		{1000, types.Tier1},
		{9999, types.Tier1},
		{10000, types.Tier2},
		{1_000_000, types.Tier2},
	}

	for _, tt := range tests {
		got := DeriveTier(big.NewInt(tt.offered), tier1, tier2)
		assert.Equal(t, tt.want, got, "offered=%d", tt.offered)
	}
}

func TestDeriveTier_Deterministic(t *testing.T) {
	t.Parallel()

	term := testTerm()
	tier1, tier2 := TierThresholds(big.NewInt(10000), term)

	offered := big.NewInt(12345)
	first := DeriveTier(offered, tier1, tier2)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, DeriveTier(offered, tier1, tier2))
	}
}

func TestBonusAllocation(t *testing.T) {
	t.Parallel()

	term := testTerm()
	principal := big.NewInt(10000)

	// Tier 0: term ratio only, 300% of principal.
	alloc := BonusAllocation(principal, new(big.Int), term, types.Tier0)
	assert.Equal(t, int64(30000), alloc.Int64())

	// Tier 1: no bonus-on-bonus either.
	alloc = BonusAllocation(principal, big.NewInt(30000), term, types.Tier1)
	assert.Equal(t, int64(30000), alloc.Int64())

	// Tier 2: adds 100% of the offered stake on top.
	alloc = BonusAllocation(principal, big.NewInt(50000), term, types.Tier2)
	assert.Equal(t, int64(80000), alloc.Int64())
}
