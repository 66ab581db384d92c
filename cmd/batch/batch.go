// Package batch handles batch ingestion of a directory of exports
package batch

import (
	"fmt"

	"github.com/spf13/cobra"

	"fjacquet/ledger-sync/cmd/common"
	"fjacquet/ledger-sync/cmd/root"
	"fjacquet/ledger-sync/internal/fileutils"
	"fjacquet/ledger-sync/internal/logging"
)

var (
	sourceID string
	inputDir string
)

// Cmd represents the batch command
var Cmd = &cobra.Command{
	Use:   "batch",
	Short: "Ingest every export in a directory",
	Long: `Ingest every CSV and XML file of a directory for one bank source, in name order.
Each file is a separate run; a failing file is reported and the next one proceeds.

Example:
  ledger-sync batch --source revolut --input-dir exports/revolut/`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringVarP(&sourceID, "source", "s", "", "Bank source id")
	Cmd.Flags().StringVarP(&inputDir, "input-dir", "d", "", "Directory holding the exports")
	_ = Cmd.MarkFlagRequired("source")
	_ = Cmd.MarkFlagRequired("input-dir")
}

func run(cmd *cobra.Command, args []string) error {
	c, err := root.RequireContainer()
	if err != nil {
		return err
	}
	logger := c.GetLogger()

	files, err := fileutils.ListFilesWithExtension(inputDir, fileutils.InputExtensions...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Warn("No supported files found in input directory", logging.F(logging.FieldInputFile, inputDir))
		return nil
	}

	failed := 0
	for _, file := range files {
		summary, err := c.GetIngestor().IngestFile(cmd.Context(), sourceID, file, "")
		if err != nil {
			failed++
			logger.WithError(err).Error("Failed to ingest file", logging.F(logging.FieldInputFile, file))
			common.Error(cmd.ErrOrStderr(), fmt.Errorf("%s: %w", file, err))
			continue
		}
		common.PrintIngestSummary(cmd.OutOrStdout(), summary)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}
