// Package ingest handles the ingest command
package ingest

import (
	"fmt"

	"github.com/spf13/cobra"

	"fjacquet/ledger-sync/cmd/common"
	"fjacquet/ledger-sync/cmd/root"
	"fjacquet/ledger-sync/internal/sheet"
)

var (
	sourceID string
	input    string
	format   string
)

// Cmd represents the ingest command
var Cmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest one bank export into the ledger",
	Long: `Normalize the rows of one bank export, drop the ones already ingested,
convert foreign amounts into the settlement currency and store the result.

Example:
  ledger-sync ingest --source monzo --input monzo-2025-11.csv`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringVarP(&sourceID, "source", "s", "", "Bank source id (see 'ledger-sync sources')")
	Cmd.Flags().StringVarP(&input, "input", "i", "", "Input file")
	Cmd.Flags().StringVarP(&format, "format", "f", "", "Input format (csv, camt); detected from the extension when empty")
	_ = Cmd.MarkFlagRequired("source")
	_ = Cmd.MarkFlagRequired("input")
}

// ResolveFormat returns the format named by flag, or the one implied by path.
func ResolveFormat(flag, path string) (sheet.Format, error) {
	if flag == "" {
		return sheet.DetectFormat(path), nil
	}
	return sheet.ParseFormat(flag)
}

func run(cmd *cobra.Command, args []string) error {
	c, err := root.RequireContainer()
	if err != nil {
		return err
	}
	f, err := ResolveFormat(format, input)
	if err != nil {
		return err
	}

	summary, err := c.GetIngestor().IngestFile(cmd.Context(), sourceID, input, f)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	common.PrintIngestSummary(cmd.OutOrStdout(), summary)
	return nil
}
