// Package models provides the data structures used throughout the application.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fjacquet/ledger-sync/internal/txerror"
)

// Transaction is the canonical record every bank source is normalized into.
type Transaction struct {
	ID                    string          `json:"id" csv:"ID"`
	OriginalTransactionID string          `json:"original_transaction_id" csv:"OriginalTransactionID"`
	BankSourceID          string          `json:"bank_source_id" csv:"BankSourceID"`
	TransactionDate       time.Time       `json:"transaction_date" csv:"TransactionDate"`
	Type                  TransactionType `json:"type" csv:"Type"`
	Description           string          `json:"description" csv:"Description"`
	Notes                 *string         `json:"notes,omitempty" csv:"Notes"`
	Country               *string         `json:"country,omitempty" csv:"Country"`

	OriginalAmount   decimal.Decimal  `json:"original_amount" csv:"OriginalAmount"` // absolute value
	OriginalCurrency string           `json:"original_currency" csv:"OriginalCurrency"`
	SettlementAmount decimal.Decimal  `json:"settlement_amount" csv:"SettlementAmount"`
	ExchangeRate     *decimal.Decimal `json:"exchange_rate,omitempty" csv:"ExchangeRate"`

	CategoryAIID            *string  `json:"category_ai_id,omitempty"`
	CategoryAIName          *string  `json:"category_ai_name,omitempty"`
	CategoryConfidenceScore *float64 `json:"category_confidence_score,omitempty"`
	CategoryManualID        *string  `json:"category_manual_id,omitempty"`
	CategoryManualName      *string  `json:"category_manual_name,omitempty"`

	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ErrorMessage     *string          `json:"error_message,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	NormalisedAt  *time.Time `json:"normalised_at,omitempty"`
	CategorisedAt *time.Time `json:"categorised_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DedupKey identifies a transaction across runs.
type DedupKey struct {
	BankSourceID          string
	OriginalTransactionID string
}

// Key returns the (source, original id) pair used for duplicate detection.
func (t *Transaction) Key() DedupKey {
	return DedupKey{BankSourceID: t.BankSourceID, OriginalTransactionID: t.OriginalTransactionID}
}

// EffectiveCategory returns the manual category when present, else the AI category.
// ok is false when the transaction carries neither.
func (t *Transaction) EffectiveCategory() (id, name string, ok bool) {
	if t.CategoryManualID != nil && *t.CategoryManualID != "" {
		return *t.CategoryManualID, deref(t.CategoryManualName), true
	}
	if t.CategoryAIID != nil && *t.CategoryAIID != "" {
		return *t.CategoryAIID, deref(t.CategoryAIName), true
	}
	return "", "", false
}

// IsCategorized reports whether any category (manual or AI) is attached.
func (t *Transaction) IsCategorized() bool {
	_, _, ok := t.EffectiveCategory()
	return ok
}

// HasManualOverride reports whether a human corrected the category.
func (t *Transaction) HasManualOverride() bool {
	return t.CategoryManualID != nil && *t.CategoryManualID != ""
}

// IsSettlementCurrency reports whether the original currency equals settlement.
func (t *Transaction) IsSettlementCurrency(settlement string) bool {
	return strings.EqualFold(t.OriginalCurrency, settlement)
}

// ValidateSettlement checks that the exchange rate is set iff the original currency
// differs from the settlement currency, and that the confidence score is in range.
func (t *Transaction) ValidateSettlement(settlement string) error {
	if t.IsSettlementCurrency(settlement) {
		if t.ExchangeRate != nil {
			return fmt.Errorf("transaction %s: exchange rate must be empty for %s amounts", t.ID, settlement)
		}
		if !t.SettlementAmount.Equal(t.OriginalAmount) {
			return fmt.Errorf("transaction %s: settlement amount %s differs from original %s",
				t.ID, t.SettlementAmount, t.OriginalAmount)
		}
	} else if t.ProcessingStatus != StatusUnprocessed && t.ProcessingStatus != StatusError && t.ExchangeRate == nil {
		return fmt.Errorf("transaction %s: exchange rate required for %s amounts", t.ID, t.OriginalCurrency)
	}
	if t.CategoryConfidenceScore != nil {
		if s := *t.CategoryConfidenceScore; s < 0 || s > 100 {
			return fmt.Errorf("transaction %s: confidence score %.2f outside 0-100", t.ID, s)
		}
	}
	return nil
}

// CanTransition reports whether the lifecycle allows moving from one status to another.
func CanTransition(from, to ProcessingStatus) bool {
	if to == StatusError || from == to {
		return true
	}
	switch from {
	case StatusUnprocessed:
		return to == StatusNormalised
	case StatusNormalised:
		return to == StatusCategorised
	case StatusError:
		return to == StatusNormalised
	}
	return false
}

// TransitionTo moves the transaction to status, stamping the lifecycle timestamps.
func (t *Transaction) TransitionTo(status ProcessingStatus, now time.Time) error {
	if !CanTransition(t.ProcessingStatus, status) {
		return &txerror.IllegalTransitionError{
			TransactionID: t.ID,
			From:          string(t.ProcessingStatus),
			To:            string(status),
		}
	}
	t.ProcessingStatus = status
	t.UpdatedAt = now
	switch status {
	case StatusNormalised:
		t.NormalisedAt = &now
		t.ErrorMessage = nil
	case StatusCategorised:
		t.CategorisedAt = &now
	}
	return nil
}

// MarkError moves the transaction to ERROR with an already-redacted message.
func (t *Transaction) MarkError(message string, now time.Time) {
	t.ProcessingStatus = StatusError
	t.ErrorMessage = &message
	t.UpdatedAt = now
}

// ApplyConversion records a settlement amount and its rate. A nil rate means the
// original currency already is the settlement currency.
func (t *Transaction) ApplyConversion(settlementAmount decimal.Decimal, rate *decimal.Decimal) {
	t.SettlementAmount = settlementAmount
	t.ExchangeRate = rate
}

func (t *Transaction) String() string {
	return fmt.Sprintf("%s %s %s %s %s [%s]", t.TransactionDate.Format(time.RFC3339), t.BankSourceID,
		t.Type, t.OriginalAmount.StringFixed(2), t.OriginalCurrency, t.Description)
}

// StringPtr returns a pointer to s, or nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
