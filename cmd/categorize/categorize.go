// Package categorize handles transaction categorization commands
package categorize

import (
	"fmt"

	"github.com/spf13/cobra"

	"fjacquet/ledger-sync/cmd/common"
	"fjacquet/ledger-sync/cmd/root"
)

// Cmd represents the categorize command
var Cmd = &cobra.Command{
	Use:   "categorize",
	Short: "Categorize normalised transactions",
	Long: `Categorize every NORMALISED transaction: similar past transactions are looked up,
the AI classifier is asked per batch and both are blended into a confidence score.
Without AI every transaction goes to the fallback category. Transactions of a
batch whose AI call failed are marked ERROR; run retry-errors to bring them back.`,
	RunE: run,
}

func run(cmd *cobra.Command, args []string) error {
	c, err := root.RequireContainer()
	if err != nil {
		return err
	}

	categories, err := c.GetCategoryStore().LoadCategories()
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}

	summary, err := c.GetCategorizer().CategorizePending(cmd.Context(), categories)
	if err == nil || summary.Batches > 0 {
		common.PrintCategorizeSummary(cmd.OutOrStdout(), summary)
	}
	if err != nil {
		return fmt.Errorf("categorization failed: %w", err)
	}
	return nil
}
