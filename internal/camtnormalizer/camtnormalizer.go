// Package camtnormalizer normalizes ISO 20022 CAMT.053 statement entries.
//
// Entries arrive flattened into rows keyed by element name (see the sheet
// package). The servicer reference AcctSvcrRef is the native id, the booking
// date carries no time, and CdtDbtInd gives the direction.
package camtnormalizer

import (
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/normalizer"
)

// SourceID is the bank source id the strategy registers under.
const SourceID = "camt053"

// FieldAdditionalInfo names the entry-level free text used when an entry has
// no unstructured remittance information.
const FieldAdditionalInfo = "additional_info"

// DefaultSource returns the registry entry for CAMT.053 statements.
func DefaultSource() models.BankSource {
	return models.BankSource{
		ID:   SourceID,
		Name: "ISO 20022 CAMT.053",
		ColumnMapping: map[string]string{
			models.FieldID:          "AcctSvcrRef",
			models.FieldDate:        "BookgDt",
			models.FieldType:        "CdtDbtInd",
			models.FieldDescription: "Ustrd",
			models.FieldAmount:      "Amt",
			models.FieldCurrency:    "Ccy",
			models.FieldNotes:       "AddtlTxInf",
			FieldAdditionalInfo:     "AddtlNtryInf",
		},
		HasNativeID: true,
		DateLayout:  "2006-01-02",
	}
}

// Strategy normalizes CAMT.053 entries.
type Strategy struct{}

// New returns the CAMT.053 strategy.
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
	description, err := s.description(row, src)
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
		WithNotes(normalizer.Optional(row, src, models.FieldNotes)).
		Build()
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// description prefers remittance information and falls back to the entry's
// additional information.
func (s *Strategy) description(row normalizer.RawRow, src models.BankSource) (string, error) {
	if v := normalizer.Optional(row, src, models.FieldDescription); v != "" {
		return v, nil
	}
	if v := normalizer.Optional(row, src, FieldAdditionalInfo); v != "" {
		return v, nil
	}
	return normalizer.Required(row, src, models.FieldDescription)
}
