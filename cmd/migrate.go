package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yieldledger/yieldledger/internal/ledger"
	"github.com/yieldledger/yieldledger/internal/market"
	"github.com/yieldledger/yieldledger/internal/migration"
	"github.com/yieldledger/yieldledger/internal/terms"
	"github.com/yieldledger/yieldledger/pkg/assets"
	"github.com/yieldledger/yieldledger/pkg/config"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Validate and import a legacy export offline",
	Long: `Loads a legacy ledger export, imports it into an in-memory ledger,
and reports what would land. Useful to validate an export file before
pointing the service at it.`,
	RunE: runMigrate,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().StringP("file", "f", "", "Path to the legacy export (defaults to LEGACY_EXPORT_PATH)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = cfg.LegacyExportPath
	}

	export, err := migration.LoadExport(path, logger)
	if err != nil {
		return fmt.Errorf("load export: %w", err)
	}

	registry := terms.New(logger)
	ldg, err := ledger.New(&ledger.Config{
		Logger: logger,
		Terms:  registry,
		Mover:  assets.NewLogMover(logger),
	})
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}
	mkt := market.New(logger, ldg, nil)

	adapter := migration.NewAdapter(logger, registry, ldg, mkt)
	report, err := adapter.Migrate(export)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	logger.Info("migration-dry-run-complete",
		zap.String("file", path),
		zap.Int("terms", report.Terms),
		zap.Int("positions", report.Positions),
		zap.Int("bids", report.Bids))

	return nil
}
