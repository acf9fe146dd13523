package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yieldledger/yieldledger/internal/ledger"
	"github.com/yieldledger/yieldledger/internal/market"
	"github.com/yieldledger/yieldledger/internal/migration"
	"github.com/yieldledger/yieldledger/internal/storage"
	"github.com/yieldledger/yieldledger/internal/terms"
	"github.com/yieldledger/yieldledger/pkg/assets"
	"github.com/yieldledger/yieldledger/pkg/cache"
	"github.com/yieldledger/yieldledger/pkg/config"
	"github.com/yieldledger/yieldledger/pkg/healthprobe"
	"github.com/yieldledger/yieldledger/pkg/httpserver"
	"github.com/yieldledger/yieldledger/pkg/stream"
	"go.uber.org/zap"
)

// Options tweaks application assembly.
type Options struct {
	// Mover overrides the asset custody backend. Defaults to the
	// log-only mover.
	Mover assets.Mover

	// SkipMigration leaves the legacy export untouched on startup.
	SkipMigration bool
}

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	probe := healthprobe.New()

	viewCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	store, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	hub := stream.NewHub(logger, cfg.StreamBufferSize)
	pump := newEventPump(logger, store, hub, cfg.StreamBufferSize)

	registry := terms.New(logger)

	mover := opts.Mover
	if mover == nil {
		mover = assets.NewLogMover(logger)
	}

	ldg, err := setupLedger(cfg, logger, registry, mover, pump)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup ledger: %w", err)
	}

	mkt := market.New(logger, ldg, pump)

	if !opts.SkipMigration {
		err = runMigration(cfg, logger, registry, ldg, mkt)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("run migration: %w", err)
		}
	}

	httpServer := httpserver.New(&httpserver.Config{
		Port:     cfg.HTTPPort,
		Logger:   logger,
		Probe:    probe,
		Terms:    registry,
		Ledger:   ldg,
		Market:   mkt,
		Storage:  store,
		Hub:      hub,
		Cache:    viewCache,
		CacheTTL: cfg.CacheTTL,
	})

	return &App{
		cfg:        cfg,
		logger:     logger,
		probe:      probe,
		httpServer: httpServer,
		store:      store,
		hub:        hub,
		pump:       pump,
		viewCache:  viewCache,
		terms:      registry,
		ledger:     ldg,
		market:     mkt,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(cfg.PostgresConnString(), logger)
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	return storage.NewConsoleStorage(logger, cfg.StreamBufferSize), nil
}

func setupLedger(cfg *config.Config, logger *zap.Logger, registry *terms.Registry, mover assets.Mover, sink ledger.Sink) (*ledger.Ledger, error) {
	return ledger.New(&ledger.Config{
		Logger:         logger,
		Terms:          registry,
		Mover:          mover,
		Sink:           sink,
		Vault:          common.HexToAddress(cfg.VaultAddress),
		BonusAsset:     common.HexToAddress(cfg.BonusAsset),
		FeeBps:         cfg.TransferFeeBps,
		FeeSink:        common.HexToAddress(cfg.FeeSinkAddress),
		AcceptedAssets: cfg.AcceptedAssetAddresses(),
	})
}

func runMigration(cfg *config.Config, logger *zap.Logger, registry *terms.Registry, ldg *ledger.Ledger, mkt *market.Market) error {
	export, err := migration.LoadExport(cfg.LegacyExportPath, logger)
	if err != nil {
		return err
	}
	if len(export.Terms) == 0 && len(export.Positions) == 0 && len(export.Bids) == 0 {
		return nil
	}

	adapter := migration.NewAdapter(logger, registry, ldg, mkt)
	report, err := adapter.Migrate(export)
	if err != nil {
		return err
	}

	logger.Info("startup-migration-complete",
		zap.Int("terms", report.Terms),
		zap.Int("positions", report.Positions),
		zap.Int("bids", report.Bids))

	return nil
}
