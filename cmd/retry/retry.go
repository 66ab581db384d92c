// Package retry handles re-processing of transactions left in ERROR
package retry

import (
	"fmt"

	"github.com/spf13/cobra"

	"fjacquet/ledger-sync/cmd/common"
	"fjacquet/ledger-sync/cmd/root"
)

// Cmd represents the retry-errors command
var Cmd = &cobra.Command{
	Use:   "retry-errors",
	Short: "Retry currency conversion of errored transactions",
	Long: `Re-convert every transaction in ERROR. Recovered transactions move back to NORMALISED;
an errored transaction whose key was since ingested again is left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := root.RequireContainer()
		if err != nil {
			return err
		}
		summary, err := c.GetIngestor().RetryErrored(cmd.Context())
		if err != nil {
			return fmt.Errorf("retry failed: %w", err)
		}
		common.PrintRetrySummary(cmd.OutOrStdout(), summary)
		return nil
	},
}
