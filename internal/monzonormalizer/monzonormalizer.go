// Package monzonormalizer normalizes rows of the Monzo CSV export.
package monzonormalizer

import (
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/normalizer"
)

// SourceID is the bank source id the strategy registers under.
const SourceID = "monzo"

// DefaultSource returns the registry entry for the stock Monzo export. Monzo
// supplies its own transaction ids and splits the timestamp over Date and Time.
func DefaultSource() models.BankSource {
	return models.BankSource{
		ID:   SourceID,
		Name: "Monzo",
		ColumnMapping: map[string]string{
			models.FieldID:          "Transaction ID",
			models.FieldDate:        "Date",
			models.FieldTime:        "Time",
			models.FieldType:        "Type",
			models.FieldDescription: "Name",
			models.FieldAmount:      "Amount",
			models.FieldCurrency:    "Currency",
			models.FieldNotes:       "Notes and #tags",
		},
		HasNativeID: true,
		DateLayout:  "02/01/2006",
	}
}

// Strategy normalizes Monzo rows.
type Strategy struct {
	vocab normalizer.Vocabulary
}

// New returns the Monzo strategy. The Type column is free text ("Card payment",
// "Faster payment", "Pot transfer") so most rows fall back to the amount sign.
func New() *Strategy {
	return &Strategy{vocab: normalizer.DefaultVocabulary}
}

// SourceID implements normalizer.Strategy.
func (s *Strategy) SourceID() string { return SourceID }

// Normalize implements normalizer.Strategy.
func (s *Strategy) Normalize(row normalizer.RawRow, src models.BankSource) (*models.Transaction, error) {
	ts, err := normalizer.Timestamp(row, src)
	if err != nil {
		return nil, err
	}
	name, err := normalizer.Required(row, src, models.FieldDescription)
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

	txType := normalizer.InferType(normalizer.Optional(row, src, models.FieldType), amount, s.vocab)
	id, err := normalizer.Identity(row, src, ts, name, normalizer.Signed(amount, txType), currency)
	if err != nil {
		return nil, err
	}

	tx, err := models.NewTransactionBuilder().
		WithSource(src.ID).
		WithOriginalID(id).
		WithDate(ts).
		WithDescription(name).
		WithAmount(amount, currency).
		WithType(txType).
		WithNotes(normalizer.Optional(row, src, models.FieldNotes)).
		WithCountry(normalizer.Optional(row, src, models.FieldCountry)).
		Build()
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
