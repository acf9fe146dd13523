package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yieldledger/yieldledger/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listPositionsCmd = &cobra.Command{
	Use:   "list-positions",
	Short: "List deposit positions on a running service",
	RunE:  runListPositions,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listPositionsCmd)
	listPositionsCmd.Flags().String("api", "http://localhost:8080", "Service base URL")
}

func runListPositions(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")

	var positions []*types.Position
	err := newAPIClient(api).get("/api/positions", &positions)
	if err != nil {
		return err
	}

	if len(positions) == 0 {
		fmt.Println("no positions")
		return nil
	}

	for _, pos := range positions {
		fmt.Printf("position %d: owner %s, term %d, principal %s, base paid %s, bonus %s/%s, tier %d, %s\n",
			pos.ID, pos.Owner.Hex(), pos.TermID, pos.Principal.String(),
			pos.BaseYieldPaid.String(), pos.BonusPaid.String(), pos.BonusAmount.String(),
			pos.Tier, pos.Status)
	}
	return nil
}
