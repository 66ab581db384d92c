// Package revolutnormalizer normalizes rows of the Revolut account statement
// export. The export carries no transaction id, so identity is a content
// fingerprint; timestamps come from the Completed Date column, falling back to
// Started Date for pending rows.
package revolutnormalizer

import (
	"strings"

	"github.com/shopspring/decimal"

	"fjacquet/ledger-sync/internal/currencyutils"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/normalizer"
	"fjacquet/ledger-sync/internal/txerror"
)

// SourceID is the bank source id the strategy registers under.
const SourceID = "revolut"

// FieldState and FieldFee are Revolut-only columns.
const (
	FieldState = "state"
	FieldFee   = "fee"
)

const stateCompleted = "COMPLETED"

// vocabulary adds the Revolut Type column values to the shared spellings.
var vocabulary = normalizer.DefaultVocabulary.Extend(normalizer.Vocabulary{
	"TOPUP":        models.TransactionTypeCredit,
	"CARD_REFUND":  models.TransactionTypeCredit,
	"REFUND":       models.TransactionTypeCredit,
	"REWARD":       models.TransactionTypeCredit,
	"CARD_PAYMENT": models.TransactionTypeDebit,
	"ATM":          models.TransactionTypeDebit,
	"FEE":          models.TransactionTypeDebit,
	"CHARGE":       models.TransactionTypeDebit,
})

// DefaultSource returns the registry entry for the stock Revolut export.
func DefaultSource() models.BankSource {
	return models.BankSource{
		ID:   SourceID,
		Name: "Revolut",
		ColumnMapping: map[string]string{
			models.FieldStarted:     "Started Date",
			models.FieldCompleted:   "Completed Date",
			models.FieldType:        "Type",
			models.FieldDescription: "Description",
			models.FieldAmount:      "Amount",
			models.FieldCurrency:    "Currency",
			FieldState:              "State",
			FieldFee:                "Fee",
		},
		HasNativeID: false,
		DateLayout:  "2006-01-02 15:04:05",
	}
}

// Strategy normalizes Revolut rows.
type Strategy struct{}

// New returns the Revolut strategy.
func New() *Strategy {
	return &Strategy{}
}

// SourceID implements normalizer.Strategy.
func (s *Strategy) SourceID() string { return SourceID }

// Normalize implements normalizer.Strategy. Rows whose State is present and
// not COMPLETED (declined, reverted) are rejected.
func (s *Strategy) Normalize(row normalizer.RawRow, src models.BankSource) (*models.Transaction, error) {
	if state := normalizer.Optional(row, src, FieldState); state != "" && !strings.EqualFold(state, stateCompleted) {
		return nil, &txerror.ValidationError{Source: src.ID, Field: FieldState, Value: state, Reason: "transaction not completed"}
	}

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

	txType := normalizer.InferType(normalizer.Optional(row, src, models.FieldType), amount, vocabulary)
	id, err := normalizer.Identity(row, src, ts, description, normalizer.Signed(amount, txType), currency)
	if err != nil {
		return nil, err
	}

	b := models.NewTransactionBuilder().
		WithSource(src.ID).
		WithOriginalID(id).
		WithDate(ts).
		WithDescription(description).
		WithAmount(amount, currency).
		WithType(txType)
	if fee := feeNote(normalizer.Optional(row, src, FieldFee), currency); fee != "" {
		b = b.WithNotes(fee)
	}

	tx, err := b.Build()
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// feeNote describes a non-zero fee; the fee is not part of the amount.
func feeNote(raw, currency string) string {
	if raw == "" {
		return ""
	}
	fee, err := currencyutils.ParseAmount(raw)
	if err != nil || fee.Equal(decimal.Zero) {
		return ""
	}
	return "fee " + fee.Abs().StringFixed(2) + " " + currency
}
