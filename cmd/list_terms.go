package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yieldledger/yieldledger/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listTermsCmd = &cobra.Command{
	Use:   "list-terms",
	Short: "List deposit terms on a running service",
	RunE:  runListTerms,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listTermsCmd)
	listTermsCmd.Flags().String("api", "http://localhost:8080", "Service base URL")
}

func runListTerms(cmd *cobra.Command, args []string) error {
	api, _ := cmd.Flags().GetString("api")

	var terms []*types.Term
	err := newAPIClient(api).get("/api/terms", &terms)
	if err != nil {
		return err
	}

	if len(terms) == 0 {
		fmt.Println("no terms")
		return nil
	}

	for _, term := range terms {
		state := "closed"
		if term.Open {
			state = "open"
		}
		fmt.Printf("term %d: %4.0f days, base %5d bps, bonus %5d bps, accepted %s / %s, %s\n",
			term.ID, term.Duration.Hours()/24, term.BaseRate, term.BonusRatio,
			term.Accepted.String(), term.Capacity.String(), state)
	}
	return nil
}
