package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankSource describes one bank export format and how its columns map onto
// canonical transaction fields.
type BankSource struct {
	ID              string            `yaml:"id" json:"id"`
	Name            string            `yaml:"name" json:"name"`
	ColumnMapping   map[string]string `yaml:"column_mapping" json:"column_mapping"` // canonical field -> source column label
	HasNativeID     bool              `yaml:"has_native_id" json:"has_native_id"`
	DefaultCurrency string            `yaml:"default_currency,omitempty" json:"default_currency,omitempty"`
	DateLayout      string            `yaml:"date_layout,omitempty" json:"date_layout,omitempty"`
	Processed       bool              `yaml:"processed" json:"processed"`
}

// Column returns the source column label mapped to a canonical field.
func (b BankSource) Column(field string) (string, bool) {
	label, ok := b.ColumnMapping[field]
	return label, ok && label != ""
}

// ExchangeRateSnapshot records the rate used for one conversion. Snapshots are
// values and are never modified once produced.
type ExchangeRateSnapshot struct {
	BaseCurrency    string          `json:"base_currency"`
	TargetCurrency  string          `json:"target_currency"`
	Rate            decimal.Decimal `json:"rate"` // units of BaseCurrency per one TargetCurrency
	FetchedAt       time.Time       `json:"fetched_at"`
	Provider        string          `json:"provider"`
	ProcessingRunID string          `json:"processing_run_id"`
	TransactionID   string          `json:"transaction_id"`
}

// Category is one entry of the category list the classifier chooses from.
type Category struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// SimilarityMatch is a historical transaction found similar to the one being categorized.
type SimilarityMatch struct {
	TransactionID     string          `json:"transaction_id"`
	Description       string          `json:"description"`
	CategoryID        string          `json:"category_id"`
	CategoryName      string          `json:"category_name"`
	WasManualOverride bool            `json:"was_manual_override"`
	ConfidenceScore   *float64        `json:"confidence_score,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Type              TransactionType `json:"type"`
	Date              time.Time       `json:"date"`
	Score             float64         `json:"score"`
	WeightedScore     float64         `json:"weighted_score"`
	MatchType         MatchType       `json:"match_type"`
}
