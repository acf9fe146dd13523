package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yieldledger/yieldledger/internal/ledger"
	"github.com/yieldledger/yieldledger/internal/market"
	"github.com/yieldledger/yieldledger/internal/storage"
	"github.com/yieldledger/yieldledger/internal/terms"
	"github.com/yieldledger/yieldledger/internal/testutil"
	"github.com/yieldledger/yieldledger/pkg/healthprobe"
	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap/zaptest"
)

var (
	ownerHex  = "0x0000000000000000000000000000000000000001"
	bidderHex = "0x0000000000000000000000000000000000000002"
	assetHex  = "0x00000000000000000000000000000000000000b1"
)

// storageSink persists every emitted event so the events endpoint has data.
type storageSink struct {
	store storage.Storage
}

func (s storageSink) Emit(ev *types.Event) {
	_ = s.store.RecordEvent(context.Background(), ev)
}

type fixture struct {
	handler http.Handler
	ledger  *ledger.Ledger
	terms   *terms.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	registry := terms.New(logger)
	store := storage.NewConsoleStorage(logger, 64)
	sink := storageSink{store: store}

	l, err := ledger.New(&ledger.Config{
		Logger:         logger,
		Terms:          registry,
		Mover:          &testutil.MockMover{},
		Sink:           sink,
		Vault:          testutil.Addr(0xAA),
		BonusAsset:     testutil.Addr(0xB2),
		FeeBps:         30,
		FeeSink:        testutil.Addr(0xFE),
		AcceptedAssets: []common.Address{common.HexToAddress(assetHex)},
	})
	require.NoError(t, err)

	m := market.New(logger, l, sink)

	probe := healthprobe.New()
	probe.SetReady(true)

	server := New(&Config{
		Port:    "0",
		Logger:  logger,
		Probe:   probe,
		Terms:   registry,
		Ledger:  l,
		Market:  m,
		Storage: store,
	})

	return &fixture{handler: server.Handler(), ledger: l, terms: registry}
}

func (f *fixture) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func (f *fixture) addTerm(t *testing.T) {
	t.Helper()
	rec := f.request(t, http.MethodPost, "/api/terms", map[string]interface{}{
		"duration_days":         1095,
		"base_rate_bps":         500,
		"bonus_ratio_bps":       30000,
		"bonus_bonus_ratio_bps": 10000,
		"capacity":              "31000000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (f *fixture) openPosition(t *testing.T) {
	t.Helper()
	rec := f.request(t, http.MethodPost, "/api/positions", map[string]interface{}{
		"owner":         ownerHex,
		"term_id":       0,
		"asset":         assetHex,
		"principal":     "10000",
		"bonus_offered": "0",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTermEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addTerm(t)

	rec := f.request(t, http.MethodGet, "/api/terms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []*types.Term
	decodeBody(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(500), list[0].BaseRate)

	rec = f.request(t, http.MethodGet, "/api/terms/0", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/terms/7", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/terms/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/terms/0/close", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	var term types.Term
	rec = f.request(t, http.MethodGet, "/api/terms/0", nil)
	decodeBody(t, rec, &term)
	assert.False(t, term.Open)

	rec = f.request(t, http.MethodPost, "/api/terms/0/open", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestOpenPositionAndRedeem(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addTerm(t)
	f.openPosition(t)

	rec := f.request(t, http.MethodGet, "/api/positions/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pos types.Position
	decodeBody(t, rec, &pos)
	assert.Equal(t, common.HexToAddress(ownerHex), pos.Owner)
	assert.Equal(t, types.StatusOpen, pos.Status)

	// Redemption right after open pays nothing but succeeds.
	rec = f.request(t, http.MethodPost, "/api/positions/0/redeem", map[string]interface{}{"caller": ownerHex})
	require.Equal(t, http.StatusOK, rec.Code)
	var red redemptionResponse
	decodeBody(t, rec, &red)
	assert.Zero(t, red.BaseYield.Sign())
	assert.False(t, red.Closed)

	// Wrong caller maps to 403.
	rec = f.request(t, http.MethodPost, "/api/positions/0/redeem", map[string]interface{}{"caller": bidderHex})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOpenPositionRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addTerm(t)

	rec := f.request(t, http.MethodPost, "/api/positions", map[string]interface{}{
		"owner": ownerHex, "term_id": 0, "asset": "0x0000000000000000000000000000000000000099",
		"principal": "100", "bonus_offered": "0",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "asset off the allowlist")

	rec = f.request(t, http.MethodPost, "/api/positions", map[string]interface{}{
		"owner": "nope", "term_id": 0, "asset": assetHex, "principal": "100",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/positions", map[string]interface{}{
		"owner": ownerHex, "term_id": 0, "asset": assetHex, "principal": "40000000",
	})
	assert.Equal(t, http.StatusConflict, rec.Code, "over capacity")
}

func TestMarketplaceFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addTerm(t)
	f.openPosition(t)

	rec := f.request(t, http.MethodPost, "/api/positions/0/sale", map[string]interface{}{"caller": ownerHex})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/bids", map[string]interface{}{
		"bidder": bidderHex, "position_id": 0, "amount": "20000",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var bid types.Bid
	decodeBody(t, rec, &bid)
	assert.Equal(t, int64(0), bid.ID)

	rec = f.request(t, http.MethodGet, "/api/positions/0/bids", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bids []*types.Bid
	decodeBody(t, rec, &bids)
	require.Len(t, bids, 1)

	// Non-owner acceptance maps to 403 and keeps the bid.
	rec = f.request(t, http.MethodPost, "/api/bids/0/accept", map[string]interface{}{"caller": bidderHex})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/bids/0/accept", map[string]interface{}{"caller": ownerHex})
	require.Equal(t, http.StatusOK, rec.Code)
	var accepted acceptBidResponse
	decodeBody(t, rec, &accepted)
	assert.Equal(t, int64(60), accepted.Fee.Int64())

	var pos types.Position
	rec = f.request(t, http.MethodGet, "/api/positions/0", nil)
	decodeBody(t, rec, &pos)
	assert.Equal(t, common.HexToAddress(bidderHex), pos.Owner)
	assert.Equal(t, types.StatusOpen, pos.Status)

	rec = f.request(t, http.MethodGet, "/api/bids/0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "accepted bid discarded")
}

func TestDelistDiscardsBids(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addTerm(t)
	f.openPosition(t)

	rec := f.request(t, http.MethodPost, "/api/positions/0/sale", map[string]interface{}{"caller": ownerHex})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/bids", map[string]interface{}{
		"bidder": bidderHex, "position_id": 0, "amount": "15000",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.request(t, http.MethodDelete, "/api/positions/0/sale", map[string]interface{}{"caller": ownerHex})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.request(t, http.MethodGet, "/api/bids", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var bids []*types.Bid
	decodeBody(t, rec, &bids)
	assert.Empty(t, bids)
}

func TestEventsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addTerm(t)
	f.openPosition(t)

	rec := f.request(t, http.MethodGet, "/api/events?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var events []*types.Event
	decodeBody(t, rec, &events)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventPositionOpened, events[0].Kind)

	rec = f.request(t, http.MethodGet, "/api/events?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addTerm(t)

	rec := f.request(t, http.MethodPost, "/api/admin/pause", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/positions", map[string]interface{}{
		"owner": ownerHex, "term_id": 0, "asset": assetHex, "principal": "100",
	})
	assert.Equal(t, http.StatusConflict, rec.Code, "paused ledger rejects opens")

	rec = f.request(t, http.MethodPost, "/api/admin/unpause", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	f.openPosition(t)

	rec = f.request(t, http.MethodPut, "/api/admin/fee", map[string]interface{}{"bps": 10001})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.request(t, http.MethodPut, "/api/admin/fee", map[string]interface{}{"bps": 50})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, uint64(50), f.ledger.TransferFee())

	rec = f.request(t, http.MethodPut, "/api/admin/assets", map[string]interface{}{
		"asset": "0x0000000000000000000000000000000000000099", "accepted": true,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, f.ledger.AssetAccepted(common.HexToAddress("0x99")))

	rec = f.request(t, http.MethodPost, "/api/admin/withdraw", map[string]interface{}{
		"token": assetHex, "to": ownerHex, "amount": "123",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.request(t, http.MethodPut, "/api/admin/fee-sink", map[string]interface{}{
		"address": fmt.Sprintf("0x%040x", 0xFE),
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestListEndpointsWithoutCache(t *testing.T) {
	t.Parallel()

	// No cache configured; repeated reads hit the registries directly.
	f := newFixture(t)
	f.addTerm(t)

	for i := 0; i < 2; i++ {
		rec := f.request(t, http.MethodGet, "/api/terms", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = f.request(t, http.MethodGet, "/api/positions", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
