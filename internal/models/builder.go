package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionBuilder provides a fluent API for constructing transactions
type TransactionBuilder struct {
	tx  Transaction
	err error
}

// NewTransactionBuilder creates a new TransactionBuilder with default values
func NewTransactionBuilder() *TransactionBuilder {
	return &TransactionBuilder{
		tx: Transaction{
			Type:             TransactionTypeDebit,
			OriginalCurrency: DefaultSettlementCurrency,
			OriginalAmount:   decimal.Zero,
			SettlementAmount: decimal.Zero,
			ProcessingStatus: StatusUnprocessed,
		},
	}
}

// WithID sets the surrogate id
func (b *TransactionBuilder) WithID(id string) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.ID = id
	return b
}

// WithOriginalID sets the source-side identity
func (b *TransactionBuilder) WithOriginalID(id string) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.OriginalTransactionID = id
	return b
}

// WithSource sets the bank source id
func (b *TransactionBuilder) WithSource(sourceID string) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.BankSourceID = sourceID
	return b
}

// WithDate sets the transaction timestamp, normalized to UTC
func (b *TransactionBuilder) WithDate(date time.Time) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	if date.IsZero() {
		b.err = errors.New("transaction date cannot be zero")
		return b
	}
	b.tx.TransactionDate = date.UTC()
	return b
}

// WithDescription sets the merchant/description text
func (b *TransactionBuilder) WithDescription(description string) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.Description = strings.TrimSpace(description)
	return b
}

// WithNotes sets the optional notes
func (b *TransactionBuilder) WithNotes(notes string) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.Notes = StringPtr(strings.TrimSpace(notes))
	return b
}

// WithCountry sets the optional country
func (b *TransactionBuilder) WithCountry(country string) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.Country = StringPtr(strings.TrimSpace(country))
	return b
}

// WithAmount sets the original amount (stored as an absolute value) and currency
func (b *TransactionBuilder) WithAmount(amount decimal.Decimal, currency string) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.OriginalAmount = amount.Abs()
	b.tx.OriginalCurrency = strings.ToUpper(strings.TrimSpace(currency))
	return b
}

// WithType sets the direction explicitly
func (b *TransactionBuilder) WithType(t TransactionType) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.Type = t
	return b
}

// WithStatus sets the processing status
func (b *TransactionBuilder) WithStatus(status ProcessingStatus) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.ProcessingStatus = status
	return b
}

// WithAICategory sets the classifier's category and confidence
func (b *TransactionBuilder) WithAICategory(id, name string, confidence float64) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.CategoryAIID = StringPtr(id)
	b.tx.CategoryAIName = StringPtr(name)
	b.tx.CategoryConfidenceScore = &confidence
	return b
}

// WithManualCategory sets a human correction
func (b *TransactionBuilder) WithManualCategory(id, name string) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.CategoryManualID = StringPtr(id)
	b.tx.CategoryManualName = StringPtr(name)
	return b
}

// WithSettlement sets the settlement amount and exchange rate
func (b *TransactionBuilder) WithSettlement(amount decimal.Decimal, rate *decimal.Decimal) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.ApplyConversion(amount, rate)
	return b
}

// WithCreatedAt sets the creation timestamp
func (b *TransactionBuilder) WithCreatedAt(at time.Time) *TransactionBuilder {
	if b.err != nil {
		return b
	}
	b.tx.CreatedAt = at
	b.tx.UpdatedAt = at
	return b
}

// Build validates the transaction and returns the final Transaction
func (b *TransactionBuilder) Build() (Transaction, error) {
	if b.err != nil {
		return Transaction{}, fmt.Errorf("builder error: %w", b.err)
	}

	if b.tx.TransactionDate.IsZero() {
		return Transaction{}, errors.New("date is required")
	}
	if b.tx.BankSourceID == "" {
		return Transaction{}, errors.New("bank source is required")
	}
	if len(b.tx.OriginalCurrency) != 3 {
		return Transaction{}, fmt.Errorf("currency %q is not an ISO 4217 code", b.tx.OriginalCurrency)
	}

	if b.tx.ID == "" {
		b.tx.ID = uuid.New().String()
	}
	if b.tx.CreatedAt.IsZero() {
		b.tx.CreatedAt = time.Now().UTC()
		b.tx.UpdatedAt = b.tx.CreatedAt
	}
	if b.tx.ProcessingStatus == StatusNormalised && b.tx.NormalisedAt == nil {
		at := b.tx.CreatedAt
		b.tx.NormalisedAt = &at
	}

	return b.tx, nil
}
