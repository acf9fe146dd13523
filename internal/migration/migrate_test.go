package migration

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yieldledger/yieldledger/internal/ledger"
	"github.com/yieldledger/yieldledger/internal/market"
	"github.com/yieldledger/yieldledger/internal/terms"
	"github.com/yieldledger/yieldledger/internal/testutil"
	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	adapter *Adapter
	terms   *terms.Registry
	ledger  *ledger.Ledger
	market  *market.Market
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	registry := terms.New(logger)

	l, err := ledger.New(&ledger.Config{
		Logger: logger,
		Terms:  registry,
		Mover:  &testutil.MockMover{},
		Vault:  testutil.Addr(0xAA),
	})
	require.NoError(t, err)

	m := market.New(logger, l, &testutil.SinkRecorder{})

	return &fixture{
		adapter: NewAdapter(logger, registry, l, m),
		terms:   registry,
		ledger:  l,
		market:  m,
	}
}

func sampleExport() *Export {
	return &Export{
		Terms: []LegacyTerm{
			{DurationDays: 365, InterestRate: 500, AltaRatio: 30000, Capacity: "1000000", Accepted: "25000", Open: true},
			{DurationDays: 1095, InterestRate: 800, AltaRatio: 50000, Open: false},
		},
		Positions: []LegacyPosition{
			{Owner: "0x0000000000000000000000000000000000000001", Term: 0, StartTime: 1700000000, Principal: "10000", BaseYieldPaid: "4", Tier: 0, Status: 0},
			{Owner: "0x0000000000000000000000000000000000000002", Term: 1, StartTime: 1700000100, Principal: "5000", BonusAmount: "15000", Tier: 2, Status: 2},
			{Owner: "0x0000000000000000000000000000000000000003", Term: 0, StartTime: 1700000200, Principal: "10000", Status: 1},
		},
		Bids: []LegacyBid{
			{Bidder: "0x0000000000000000000000000000000000000004", Position: 1, Amount: "20000"},
		},
	}
}

func TestMigrate_PreservesInputOrderAsIDs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	report, err := f.adapter.Migrate(sampleExport())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Terms)
	assert.Equal(t, 3, report.Positions)
	assert.Equal(t, 1, report.Bids)

	// Terms land as 0 and 1 with legacy parameters and the default
	// bonus-on-bonus ratio.
	term0, err := f.terms.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 365*24*time.Hour, term0.Duration)
	assert.Equal(t, uint64(30000), term0.BonusRatio)
	assert.Equal(t, uint64(10000), term0.BonusBonusRatio)
	assert.Equal(t, int64(25000), term0.Accepted.Int64())
	assert.True(t, term0.Open)

	// A capless closed legacy term imports exactly filled.
	term1, err := f.terms.Get(1)
	require.NoError(t, err)
	assert.False(t, term1.Open)
	assert.Zero(t, term1.Capacity.Cmp(term1.Accepted))

	positions := f.ledger.Positions()
	require.Len(t, positions, 3)
	for i, pos := range positions {
		assert.Equal(t, int64(i), pos.ID)
	}
	assert.Equal(t, common.HexToAddress("0x01"), positions[0].Owner)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), positions[0].StartTime)
	assert.Equal(t, int64(4), positions[0].BaseYieldPaid.Int64())
	assert.Equal(t, types.StatusForSale, positions[1].Status)
	assert.Equal(t, types.Tier2, positions[1].Tier)
	assert.Equal(t, types.StatusClosed, positions[2].Status)

	bids := f.market.BidsForPosition(1)
	require.Len(t, bids, 1)
	assert.Equal(t, int64(20000), bids[0].Amount.Int64())
}

func TestMigrate_OffsetsCrossReferences(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	// Pre-existing term and position shift the imported identifiers.
	_, err := f.terms.Add(30*24*time.Hour, 100, 1000, 10000, big.NewInt(1000))
	require.NoError(t, err)
	f.ledger.ImportPosition(&types.Position{
		Owner:         testutil.Addr(0x09),
		Principal:     big.NewInt(1),
		BaseYieldPaid: new(big.Int),
		BonusAmount:   new(big.Int),
		BonusPaid:     new(big.Int),
	})

	_, err = f.adapter.Migrate(sampleExport())
	require.NoError(t, err)

	positions := f.ledger.Positions()
	require.Len(t, positions, 4)
	assert.Equal(t, int64(1), positions[1].TermID, "legacy term 0 maps past the existing term")
	assert.Equal(t, int64(2), positions[2].TermID)

	bids := f.market.BidsForPosition(2)
	require.Len(t, bids, 1, "legacy bid follows its shifted position")
}

func TestMigrate_RejectsBadReferences(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.adapter.Migrate(&Export{
		Terms:     []LegacyTerm{{DurationDays: 365, InterestRate: 500}},
		Positions: []LegacyPosition{{Owner: "0x01", Term: 5, Principal: "100"}},
	})
	assert.ErrorContains(t, err, "term index 5 out of range")

	_, err = f.adapter.Migrate(&Export{
		Bids: []LegacyBid{{Bidder: "0x04", Position: 0, Amount: "10"}},
	})
	assert.ErrorContains(t, err, "position index 0 out of range")
}

func TestMigrate_RejectsMalformedAmounts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.adapter.Migrate(&Export{
		Positions: []LegacyPosition{{Owner: "0x01", Term: 0, Principal: "ten"}},
	})
	assert.ErrorContains(t, err, "invalid amount")
}

func TestLoadExport(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	dir := t.TempDir()

	export, err := LoadExport(filepath.Join(dir, "missing.json"), logger)
	require.NoError(t, err, "missing file degrades to empty export")
	assert.Empty(t, export.Terms)

	path := filepath.Join(dir, "export.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"terms":[{"duration_days":365,"interest_rate":500,"alta_ratio":30000,"open":true}]}`), 0o600))

	export, err = LoadExport(path, logger)
	require.NoError(t, err)
	require.Len(t, export.Terms, 1)
	assert.Equal(t, uint64(30000), export.Terms[0].AltaRatio)

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o600))
	_, err = LoadExport(path, logger)
	assert.Error(t, err)
}
