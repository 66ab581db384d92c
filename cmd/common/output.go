// Package common contains the summary printing shared by the command handlers
package common

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"fjacquet/ledger-sync/internal/categorizer"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/pipeline"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

// Header prints a section title underlined to its width.
func Header(w io.Writer, text string) {
	bold.Fprintf(w, "%s\n%s\n", text, strings.Repeat("=", len(text)))
}

// count prints one "label: n" line, colored when n is non-zero.
func count(w io.Writer, label string, n int, c *color.Color) {
	if n == 0 || c == nil {
		fmt.Fprintf(w, "  %-12s %d\n", label+":", n)
		return
	}
	c.Fprintf(w, "  %-12s %d\n", label+":", n)
}

// PrintIngestSummary renders the outcome of one ingest run.
func PrintIngestSummary(w io.Writer, s pipeline.IngestSummary) {
	Header(w, fmt.Sprintf("Ingest %s (run %s)", s.SourceID, s.RunID))
	count(w, "rows", s.Rows, nil)
	count(w, "persisted", s.Persisted, green)
	count(w, "converted", s.Converted, green)
	count(w, "duplicates", s.Duplicates, yellow)
	count(w, "invalid", s.Invalid, red)
	count(w, "errored", s.Errored, red)
	for _, f := range s.Failures {
		red.Fprintf(w, "    row %d: %v\n", f.Index+1, f.Err)
	}
}

// PrintRetrySummary renders the outcome of a retry-errors run.
func PrintRetrySummary(w io.Writer, s pipeline.RetrySummary) {
	Header(w, fmt.Sprintf("Retry errored transactions (run %s)", s.RunID))
	count(w, "errored", s.Errored, nil)
	count(w, "recovered", s.Recovered, green)
	count(w, "still failed", s.StillFailed, red)
	count(w, "skipped", s.Skipped, yellow)
}

// PrintCategorizeSummary renders the outcome of a categorization run.
func PrintCategorizeSummary(w io.Writer, s categorizer.Summary) {
	Header(w, "Categorization")
	count(w, "pending", s.Pending, nil)
	count(w, "categorised", s.Categorised, green)
	count(w, "fallback", s.Fallback, yellow)
	count(w, "failed", s.Failed, red)
	count(w, "batches", s.Batches, nil)
}

// PrintSources lists the registered bank sources with their column mappings.
func PrintSources(w io.Writer, sources []models.BankSource) {
	Header(w, "Bank sources")
	for _, src := range sources {
		state := green.Sprint("open")
		if src.Processed {
			state = yellow.Sprint("locked")
		}
		fmt.Fprintf(w, "%s (%s) [%s]\n", src.ID, src.Name, state)

		fields := make([]string, 0, len(src.ColumnMapping))
		for field := range src.ColumnMapping {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			fmt.Fprintf(w, "  %-16s <- %q\n", field, src.ColumnMapping[field])
		}
	}
}

// Error prints an error message
func Error(w io.Writer, err error) {
	red.Fprintf(w, "Error: %v\n", err)
}
