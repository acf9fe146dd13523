package httpserver

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/yieldledger/yieldledger/internal/ledger"
	"github.com/yieldledger/yieldledger/internal/market"
	"github.com/yieldledger/yieldledger/internal/storage"
	"github.com/yieldledger/yieldledger/internal/terms"
	"github.com/yieldledger/yieldledger/pkg/cache"
	"github.com/yieldledger/yieldledger/pkg/types"
	"go.uber.org/zap"
)

const (
	cacheKeyTerms     = "terms"
	cacheKeyPositions = "positions"
)

type handler struct {
	logger   *zap.Logger
	terms    *terms.Registry
	ledger   *ledger.Ledger
	market   *market.Market
	storage  storage.Storage
	cache    cache.Cache
	cacheTTL time.Duration
}

func newHandler(cfg *Config) *handler {
	return &handler{
		logger:   cfg.Logger,
		terms:    cfg.Terms,
		ledger:   cfg.Ledger,
		market:   cfg.Market,
		storage:  cfg.Storage,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
	}
}

func (h *handler) routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/terms", func(r chi.Router) {
		r.Get("/", h.listTerms)
		r.Post("/", h.addTerm)
		r.Get("/{id}", h.getTerm)
		r.Put("/{id}", h.updateTerm)
		r.Post("/{id}/close", h.closeTerm)
		r.Post("/{id}/open", h.openTerm)
	})

	r.Route("/positions", func(r chi.Router) {
		r.Get("/", h.listPositions)
		r.Post("/", h.openPosition)
		r.Get("/{id}", h.getPosition)
		r.Post("/{id}/redeem", h.redeem)
		r.Post("/{id}/sale", h.listForSale)
		r.Delete("/{id}/sale", h.removeFromSale)
		r.Get("/{id}/bids", h.positionBids)
	})

	r.Route("/bids", func(r chi.Router) {
		r.Get("/", h.listBids)
		r.Post("/", h.makeBid)
		r.Get("/{id}", h.getBid)
		r.Post("/{id}/accept", h.acceptBid)
	})

	r.Get("/events", h.recentEvents)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/pause", h.pause)
		r.Post("/unpause", h.unpause)
		r.Put("/fee", h.setFee)
		r.Put("/fee-sink", h.setFeeSink)
		r.Put("/assets", h.updateAsset)
		r.Post("/withdraw", h.withdrawResidual)
	})

	return r
}

// Terms

type addTermRequest struct {
	DurationDays       uint64 `json:"duration_days"`
	BaseRateBps        uint64 `json:"base_rate_bps"`
	BonusRatioBps      uint64 `json:"bonus_ratio_bps"`
	BonusBonusRatioBps uint64 `json:"bonus_bonus_ratio_bps"`
	Capacity           string `json:"capacity"`
	Open               *bool  `json:"open,omitempty"`
}

func (h *handler) listTerms(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cacheGet(cacheKeyTerms); ok {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	list := h.terms.List()
	h.cacheSet(cacheKeyTerms, list)
	h.writeJSON(w, http.StatusOK, list)
}

func (h *handler) addTerm(w http.ResponseWriter, r *http.Request) {
	var req addTermRequest
	if !h.decode(w, r, &req) {
		return
	}

	capacity, err := parseAmount(req.Capacity)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("capacity: %v", err))
		return
	}

	term, err := h.terms.Add(
		time.Duration(req.DurationDays)*24*time.Hour,
		req.BaseRateBps, req.BonusRatioBps, req.BonusBonusRatioBps,
		capacity,
	)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.cacheInvalidate(cacheKeyTerms)
	h.writeJSON(w, http.StatusCreated, term)
}

func (h *handler) getTerm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	term, err := h.terms.Get(id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, term)
}

func (h *handler) updateTerm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req addTermRequest
	if !h.decode(w, r, &req) {
		return
	}

	capacity, err := parseAmount(req.Capacity)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("capacity: %v", err))
		return
	}

	open := true
	if req.Open != nil {
		open = *req.Open
	}

	err = h.terms.Update(id,
		time.Duration(req.DurationDays)*24*time.Hour,
		req.BaseRateBps, req.BonusRatioBps, req.BonusBonusRatioBps,
		capacity, open,
	)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.cacheInvalidate(cacheKeyTerms)

	term, err := h.terms.Get(id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, term)
}

func (h *handler) closeTerm(w http.ResponseWriter, r *http.Request) {
	h.setTermOpen(w, r, false)
}

func (h *handler) openTerm(w http.ResponseWriter, r *http.Request) {
	h.setTermOpen(w, r, true)
}

func (h *handler) setTermOpen(w http.ResponseWriter, r *http.Request, open bool) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var err error
	if open {
		err = h.terms.Open(id)
	} else {
		err = h.terms.Close(id)
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.cacheInvalidate(cacheKeyTerms)
	w.WriteHeader(http.StatusNoContent)
}

// Positions

type openPositionRequest struct {
	Owner        string `json:"owner"`
	TermID       int64  `json:"term_id"`
	Asset        string `json:"asset"`
	Principal    string `json:"principal"`
	BonusOffered string `json:"bonus_offered"`
}

type callerRequest struct {
	Caller string `json:"caller"`
}

func (h *handler) listPositions(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cacheGet(cacheKeyPositions); ok {
		h.writeJSON(w, http.StatusOK, cached)
		return
	}

	list := h.ledger.Positions()
	h.cacheSet(cacheKeyPositions, list)
	h.writeJSON(w, http.StatusOK, list)
}

func (h *handler) openPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	if !h.decode(w, r, &req) {
		return
	}

	owner, err := parseAddress(req.Owner)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("owner: %v", err))
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("asset: %v", err))
		return
	}
	principal, err := parseAmount(req.Principal)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("principal: %v", err))
		return
	}
	bonusOffered, err := parseAmount(req.BonusOffered)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("bonus_offered: %v", err))
		return
	}

	pos, err := h.ledger.OpenPosition(r.Context(), owner, req.TermID, asset, principal, bonusOffered)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.cacheInvalidate(cacheKeyPositions, cacheKeyTerms)
	h.writeJSON(w, http.StatusCreated, pos)
}

func (h *handler) getPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	pos, err := h.ledger.Position(id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pos)
}

type redemptionResponse struct {
	BaseYield *big.Int `json:"base_yield"`
	Bonus     *big.Int `json:"bonus"`
	Principal *big.Int `json:"principal"`
	Closed    bool     `json:"closed"`
}

func (h *handler) redeem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req callerRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("caller: %v", err))
		return
	}

	red, err := h.ledger.Redeem(r.Context(), id, caller)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.cacheInvalidate(cacheKeyPositions)
	h.writeJSON(w, http.StatusOK, redemptionResponse{
		BaseYield: red.BaseYield,
		Bonus:     red.Bonus,
		Principal: red.Principal,
		Closed:    red.Closed,
	})
}

func (h *handler) listForSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req callerRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("caller: %v", err))
		return
	}

	err = h.market.List(id, caller)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.cacheInvalidate(cacheKeyPositions)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) removeFromSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req callerRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("caller: %v", err))
		return
	}

	err = h.market.Remove(id, caller)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.cacheInvalidate(cacheKeyPositions)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) positionBids(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if _, err := h.ledger.Position(id); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, h.market.BidsForPosition(id))
}

// Bids

type makeBidRequest struct {
	Bidder     string `json:"bidder"`
	PositionID int64  `json:"position_id"`
	Amount     string `json:"amount"`
}

func (h *handler) listBids(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.market.Bids())
}

func (h *handler) makeBid(w http.ResponseWriter, r *http.Request) {
	var req makeBidRequest
	if !h.decode(w, r, &req) {
		return
	}

	bidder, err := parseAddress(req.Bidder)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("bidder: %v", err))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("amount: %v", err))
		return
	}

	bid, err := h.market.MakeBid(bidder, req.PositionID, amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, bid)
}

func (h *handler) getBid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	bid, err := h.market.Bid(id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, bid)
}

type acceptBidResponse struct {
	Bid *types.Bid `json:"bid"`
	Fee *big.Int   `json:"fee"`
}

func (h *handler) acceptBid(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req callerRequest
	if !h.decode(w, r, &req) {
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("caller: %v", err))
		return
	}

	bid, fee, err := h.market.AcceptBid(r.Context(), id, caller)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.cacheInvalidate(cacheKeyPositions)
	h.writeJSON(w, http.StatusOK, acceptBidResponse{Bid: bid, Fee: fee})
}

// Events

func (h *handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	events, err := h.storage.RecentEvents(r.Context(), limit)
	if err != nil {
		h.logger.Error("recent-events-query-failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "query events")
		return
	}

	if events == nil {
		events = []*types.Event{}
	}
	h.writeJSON(w, http.StatusOK, events)
}

// Admin

type setFeeRequest struct {
	Bps uint64 `json:"bps"`
}

type setFeeSinkRequest struct {
	Address string `json:"address"`
}

type updateAssetRequest struct {
	Asset    string `json:"asset"`
	Accepted bool   `json:"accepted"`
}

type withdrawRequest struct {
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (h *handler) pause(w http.ResponseWriter, r *http.Request) {
	h.ledger.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) unpause(w http.ResponseWriter, r *http.Request) {
	h.ledger.Unpause()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setFee(w http.ResponseWriter, r *http.Request) {
	var req setFeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.ledger.SetTransferFee(req.Bps)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) setFeeSink(w http.ResponseWriter, r *http.Request) {
	var req setFeeSinkRequest
	if !h.decode(w, r, &req) {
		return
	}

	sink, err := parseAddress(req.Address)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("address: %v", err))
		return
	}

	h.ledger.SetFeeAddress(sink)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) updateAsset(w http.ResponseWriter, r *http.Request) {
	var req updateAssetRequest
	if !h.decode(w, r, &req) {
		return
	}

	asset, err := parseAddress(req.Asset)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("asset: %v", err))
		return
	}

	h.ledger.UpdateAsset(asset, req.Accepted)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) withdrawResidual(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := parseAddress(req.Token)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("token: %v", err))
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("to: %v", err))
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("amount: %v", err))
		return
	}

	err = h.ledger.WithdrawResidual(r.Context(), token, to, amount)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helpers

func (h *handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return false
	}
	return true
}

func (h *handler) cacheGet(key string) (interface{}, bool) {
	if h.cache == nil {
		return nil, false
	}
	return h.cache.Get(key)
}

func (h *handler) cacheSet(key string, value interface{}) {
	if h.cache == nil {
		return
	}
	h.cache.Set(key, value, h.cacheTTL)
}

func (h *handler) cacheInvalidate(keys ...string) {
	if h.cache == nil {
		return
	}
	for _, key := range keys {
		h.cache.Delete(key)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.logger.Error("encode-response-failed", zap.Error(err))
	}
}

func (h *handler) writeError(w http.ResponseWriter, code int, message string) {
	h.writeJSON(w, code, errorResponse{Error: message})
}

// writeDomainError maps ledger errors onto HTTP statuses.
func (h *handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrNotOwner):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, types.ErrTermClosed),
		errors.Is(err, types.ErrCapacityExceeded),
		errors.Is(err, types.ErrNotForSale),
		errors.Is(err, types.ErrAlreadyListed),
		errors.Is(err, types.ErrAlreadyClosed),
		errors.Is(err, types.ErrPaused):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrAssetNotAccepted):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrTransferFailed):
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

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
