// Package categorizer assigns spending categories to normalised transactions
// using an AI classifier blended with historical evidence.
package categorizer

import (
	"context"

	"fjacquet/ledger-sync/internal/models"
)

// AIResult is the classifier's answer for one transaction.
type AIResult struct {
	TransactionID   string  `json:"transaction_id"`
	CategoryID      string  `json:"category_id"`
	CategoryName    string  `json:"category_name"`
	ConfidenceScore float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning,omitempty"`
}

// AIClient defines the interface for AI-based categorization services.
// A batch may come back partial; transactions without a result fall back to
// the configured bucket.
type AIClient interface {
	// CategorizeBatch classifies txs into one of categories. history holds the
	// similar past transactions of each transaction, keyed by transaction id.
	CategorizeBatch(ctx context.Context, txs []models.Transaction, categories []models.Category,
		history map[string][]models.SimilarityMatch) ([]AIResult, error)
}
