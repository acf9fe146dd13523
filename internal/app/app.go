// Package app wires the ledger components together and owns their lifecycle.
package app

import (
	"context"
	"sync"

	"github.com/yieldledger/yieldledger/internal/ledger"
	"github.com/yieldledger/yieldledger/internal/market"
	"github.com/yieldledger/yieldledger/internal/storage"
	"github.com/yieldledger/yieldledger/internal/terms"
	"github.com/yieldledger/yieldledger/pkg/cache"
	"github.com/yieldledger/yieldledger/pkg/config"
	"github.com/yieldledger/yieldledger/pkg/healthprobe"
	"github.com/yieldledger/yieldledger/pkg/httpserver"
	"github.com/yieldledger/yieldledger/pkg/stream"
	"go.uber.org/zap"
)

// App is the assembled application.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	probe      *healthprobe.Probe
	httpServer *httpserver.Server
	store      storage.Storage
	hub        *stream.Hub
	pump       *eventPump
	viewCache  cache.Cache

	terms  *terms.Registry
	ledger *ledger.Ledger
	market *market.Market

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Terms exposes the term registry.
func (a *App) Terms() *terms.Registry {
	return a.terms
}

// Ledger exposes the position ledger.
func (a *App) Ledger() *ledger.Ledger {
	return a.ledger
}

// Market exposes the marketplace.
func (a *App) Market() *market.Market {
	return a.market
}
