package categorizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"fjacquet/ledger-sync/internal/models"
)

const maxHistoryInPrompt = 5

// BuildPrompt renders the batch request sent to the model. The model is asked
// for a JSON object with one result per transaction id.
func BuildPrompt(txs []models.Transaction, categories []models.Category, history map[string][]models.SimilarityMatch) string {
	var b strings.Builder

	b.WriteString("You categorize personal bank transactions.\n")
	b.WriteString("Assign each transaction to exactly one category id from this list:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s: %s", c.ID, c.Name)
		if c.Description != "" {
			fmt.Fprintf(&b, " (%s)", c.Description)
		}
		if len(c.Keywords) > 0 {
			fmt.Fprintf(&b, " [keywords: %s]", strings.Join(c.Keywords, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("\nTransactions:\n")
	for _, tx := range txs {
		fmt.Fprintf(&b, "- id=%s date=%s type=%s amount=%s %s description=%q",
			tx.ID, tx.TransactionDate.Format("2006-01-02"), tx.Type,
			tx.OriginalAmount.StringFixed(2), tx.OriginalCurrency, tx.Description)
		if tx.Notes != nil {
			fmt.Fprintf(&b, " notes=%q", *tx.Notes)
		}
		if tx.Country != nil {
			fmt.Fprintf(&b, " country=%s", *tx.Country)
		}
		b.WriteString("\n")

		matches := history[tx.ID]
		if len(matches) > maxHistoryInPrompt {
			matches = matches[:maxHistoryInPrompt]
		}
		for _, m := range matches {
			source := "ai"
			if m.WasManualOverride {
				source = "manual"
			}
			fmt.Fprintf(&b, "    similar: %q -> %s (%s, %s match)\n", m.Description, m.CategoryID, source, m.MatchType)
		}
	}

	b.WriteString(`
Respond with JSON only, in this shape:
{"results": [{"transaction_id": "...", "category_id": "...", "category_name": "...", "confidence": 0-100, "reasoning": "..."}]}
`)
	return b.String()
}

type batchResponse struct {
	Results []AIResult `json:"results"`
}

// ParseResponse decodes the model output. It accepts the documented object, a
// bare array of results, and either wrapped in a markdown code fence.
func ParseResponse(text string) ([]AIResult, error) {
	text = stripFence(strings.TrimSpace(text))
	if text == "" {
		return nil, fmt.Errorf("empty response from AI")
	}

	if strings.HasPrefix(text, "[") {
		var results []AIResult
		if err := json.Unmarshal([]byte(text), &results); err != nil {
			return nil, fmt.Errorf("failed to decode AI response: %w", err)
		}
		return results, nil
	}

	var resp batchResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode AI response: %w", err)
	}
	return resp.Results, nil
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
