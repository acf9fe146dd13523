package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yieldledger/yieldledger/internal/app"
	"github.com/yieldledger/yieldledger/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ledger service",
	Long: `Starts the ledger service, which will:
1. Import the legacy export if one is present
2. Serve the REST API, metrics, and health endpoints
3. Stream ledger events to websocket subscribers

Use --skip-migration to leave the legacy export untouched.`,
	RunE: runServe,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("skip-migration", false, "Do not import the legacy export on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	skipMigration, _ := cmd.Flags().GetBool("skip-migration")

	application, err := app.New(cfg, logger, &app.Options{
		SkipMigration: skipMigration,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
