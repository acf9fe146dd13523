package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "yieldledger",
	Short: "Fixed-term deposit ledger with a secondary bid marketplace",
	Long: `yieldledger tracks fixed-term deposit positions that accrue linear
base yield plus a tiered bonus, lets owners list positions on a secondary
marketplace where bids settle with a transfer fee, and imports legacy
ledger exports on startup.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	// Best effort; the environment wins over the file.
	_ = godotenv.Load()
}
