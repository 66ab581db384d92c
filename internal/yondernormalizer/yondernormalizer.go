// Package yondernormalizer normalizes rows of the Yonder credit card export.
//
// Yonder reports unsigned amounts in pounds with a separate "Debit or Credit"
// column, a calendar date without time, and no transaction id.
package yondernormalizer

import (
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/normalizer"
)

// SourceID is the bank source id the strategy registers under.
const SourceID = "yonder"

// DefaultSource returns the registry entry for the stock Yonder export.
func DefaultSource() models.BankSource {
	return models.BankSource{
		ID:   SourceID,
		Name: "Yonder credit card",
		ColumnMapping: map[string]string{
			models.FieldDate:        "Transaction Date",
			models.FieldDescription: "Description",
			models.FieldAmount:      "Amount (GBP)",
			models.FieldType:        "Debit or Credit",
			models.FieldCountry:     "Country",
		},
		HasNativeID:     false,
		DefaultCurrency: "GBP",
		DateLayout:      "02/01/2006",
	}
}

// Strategy normalizes Yonder rows.
type Strategy struct{}

// New returns the Yonder strategy.
func New() *Strategy {
	return &Strategy{}
}

// SourceID implements normalizer.Strategy.
func (s *Strategy) SourceID() string { return SourceID }

// Normalize implements normalizer.Strategy.
func (s *Strategy) Normalize(row normalizer.RawRow, src models.BankSource) (*models.Transaction, error) {
	ts, err := normalizer.Timestamp(row, src)
	if err != nil {
		return nil, err
	}
	description, err := normalizer.Required(row, src, models.FieldDescription)
	if err != nil {
		return nil, err
	}
	amount, err := normalizer.Amount(row, src)
	if err != nil {
		return nil, err
	}
	currency, err := normalizer.Currency(row, src)
	if err != nil {
		return nil, err
	}

	// Amounts are unsigned; the direction column is authoritative.
	txType := normalizer.InferType(normalizer.Optional(row, src, models.FieldType), amount, normalizer.DefaultVocabulary)
	id, err := normalizer.Identity(row, src, ts, description, normalizer.Signed(amount, txType), currency)
	if err != nil {
		return nil, err
	}

	tx, err := models.NewTransactionBuilder().
		WithSource(src.ID).
		WithOriginalID(id).
		WithDate(ts).
		WithDescription(description).
		WithAmount(amount, currency).
		WithType(txType).
		WithCountry(normalizer.Optional(row, src, models.FieldCountry)).
		Build()
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
