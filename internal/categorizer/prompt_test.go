package categorizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/ledger-sync/internal/models"
)

func TestBuildPrompt(t *testing.T) {
	tx := pendingTx(t, "tx-1", "TESCO STORES 3297")
	tx.Notes = models.StringPtr("weekly shop")
	history := map[string][]models.SimilarityMatch{
		"tx-1": {{Description: "TESCO EXPRESS", CategoryID: "groceries", WasManualOverride: true, MatchType: models.MatchTypeFuzzy}},
	}

	prompt := BuildPrompt([]models.Transaction{tx}, testCategories, history)

	assert.Contains(t, prompt, "- groceries: Groceries")
	assert.Contains(t, prompt, `id=tx-1 date=2025-11-19 type=DEBIT amount=23.40 GBP description="TESCO STORES 3297"`)
	assert.Contains(t, prompt, `notes="weekly shop"`)
	assert.Contains(t, prompt, `similar: "TESCO EXPRESS" -> groceries (manual, fuzzy match)`)
	assert.Contains(t, prompt, `"results"`)
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []AIResult
		wantErr bool
	}{
		{
			name:  "object",
			input: `{"results":[{"transaction_id":"a","category_id":"groceries","category_name":"Groceries","confidence":87.5,"reasoning":"supermarket"}]}`,
			want:  []AIResult{{TransactionID: "a", CategoryID: "groceries", CategoryName: "Groceries", ConfidenceScore: 87.5, Reasoning: "supermarket"}},
		},
		{
			name:  "bare array",
			input: `[{"transaction_id":"a","category_id":"transport","confidence":60}]`,
			want:  []AIResult{{TransactionID: "a", CategoryID: "transport", ConfidenceScore: 60}},
		},
		{
			name:  "fenced",
			input: "```json\n{\"results\":[{\"transaction_id\":\"b\",\"category_id\":\"rent\",\"confidence\":99}]}\n```",
			want:  []AIResult{{TransactionID: "b", CategoryID: "rent", ConfidenceScore: 99}},
		},
		{name: "empty", input: "  ", wantErr: true},
		{name: "prose", input: "Category: Groceries", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
