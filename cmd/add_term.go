package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yieldledger/yieldledger/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var addTermCmd = &cobra.Command{
	Use:   "add-term",
	Short: "Add a deposit term to a running service",
	RunE:  runAddTerm,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(addTermCmd)
	addTermCmd.Flags().String("api", "http://localhost:8080", "Service base URL")
	addTermCmd.Flags().Uint64("days", 365, "Term duration in days")
	addTermCmd.Flags().Uint64("base-rate", 500, "Base yield rate in bps")
	addTermCmd.Flags().Uint64("bonus-ratio", 0, "Bonus ratio in bps")
	addTermCmd.Flags().Uint64("bonus-bonus-ratio", 10000, "Bonus-on-bonus ratio in bps")
	addTermCmd.Flags().String("capacity", "0", "Principal capacity")
}

func runAddTerm(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")
	days, _ := cmd.Flags().GetUint64("days")
	baseRate, _ := cmd.Flags().GetUint64("base-rate")
	bonusRatio, _ := cmd.Flags().GetUint64("bonus-ratio")
	bonusBonusRatio, _ := cmd.Flags().GetUint64("bonus-bonus-ratio")
	capacity, _ := cmd.Flags().GetString("capacity")

	client := newAPIClient(api)

	var term types.Term
	err := client.post("/api/terms", map[string]interface{}{
		"duration_days":         days,
		"base_rate_bps":         baseRate,
		"bonus_ratio_bps":       bonusRatio,
		"bonus_bonus_ratio_bps": bonusBonusRatio,
		"capacity":              capacity,
	}, &term)
	if err != nil {
		return err
	}

	fmt.Printf("term %d added: %d days, base %d bps, capacity %s\n",
		term.ID, days, baseRate, term.Capacity.String())
	return nil
}
