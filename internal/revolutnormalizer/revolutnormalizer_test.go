package revolutnormalizer

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/ledger-sync/internal/banksource"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/normalizer"
	"fjacquet/ledger-sync/internal/txerror"
)

func row(typ, started, completed, desc, amount, currency, state string) normalizer.RawRow {
	return normalizer.RawRow{
		"Type":           typ,
		"Product":        "Current",
		"Started Date":   started,
		"Completed Date": completed,
		"Description":    desc,
		"Amount":         amount,
		"Fee":            "0.00",
		"Currency":       currency,
		"State":          state,
		"Balance":        "53.92",
	}
}

func TestNormalize_CardPayment(t *testing.T) {
	tx, err := New().Normalize(
		row("CARD_PAYMENT", "2025-01-02 08:07:09", "2025-01-03 15:38:51", "Boreal Coffee Shop", "-57.50", "CHF", "COMPLETED"),
		DefaultSource())
	require.NoError(t, err)

	assert.Equal(t, models.TransactionTypeDebit, tx.Type)
	assert.True(t, decimal.RequireFromString("57.50").Equal(tx.OriginalAmount))
	assert.Equal(t, "CHF", tx.OriginalCurrency)
	assert.Equal(t, time.Date(2025, 1, 3, 15, 38, 51, 0, time.UTC), tx.TransactionDate)
	assert.True(t, strings.HasPrefix(tx.OriginalTransactionID, normalizer.GeneratedIDPrefix))
	assert.Nil(t, tx.Notes)
}

func TestNormalize_FallsBackToStartedDate(t *testing.T) {
	tx, err := New().Normalize(
		row("TRANSFER", "2025-01-02 08:07:09", "", "To savings", "-10.00", "GBP", ""),
		DefaultSource())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 8, 7, 9, 0, time.UTC), tx.TransactionDate)
	assert.Equal(t, models.TransactionTypeDebit, tx.Type, "unknown type falls back to the sign")
}

func TestNormalize_TypeVocabulary(t *testing.T) {
	tests := []struct {
		name   string
		typ    string
		amount string
		want   models.TransactionType
	}{
		{"top up", "TOPUP", "100.00", models.TransactionTypeCredit},
		{"card refund", "CARD_REFUND", "12.00", models.TransactionTypeCredit},
		{"atm", "ATM", "-40.00", models.TransactionTypeDebit},
		{"lower case fee", "fee", "-1.00", models.TransactionTypeDebit},
		{"unknown positive", "EXCHANGE", "5.00", models.TransactionTypeCredit},
		{"unknown negative", "EXCHANGE", "-5.00", models.TransactionTypeDebit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := New().Normalize(
				row(tt.typ, "2025-02-01 10:00:00", "2025-02-01 10:00:05", "Something", tt.amount, "GBP", "COMPLETED"),
				DefaultSource())
			require.NoError(t, err)
			assert.Equal(t, tt.want, tx.Type)
		})
	}
}

func TestNormalize_RejectsIncompleteStates(t *testing.T) {
	for _, state := range []string{"DECLINED", "REVERTED", "PENDING"} {
		t.Run(state, func(t *testing.T) {
			_, err := New().Normalize(
				row("CARD_PAYMENT", "2025-01-02 08:07:09", "", "Shop", "-1.00", "GBP", state),
				DefaultSource())
			var verr *txerror.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, FieldState, verr.Field)
		})
	}
}

func TestNormalize_FeeNote(t *testing.T) {
	r := row("EXCHANGE", "2025-01-02 08:07:09", "2025-01-02 08:07:09", "Exchanged to EUR", "-100.00", "GBP", "COMPLETED")
	r["Fee"] = "0.50"
	tx, err := New().Normalize(r, DefaultSource())
	require.NoError(t, err)
	require.NotNil(t, tx.Notes)
	assert.Equal(t, "fee 0.50 GBP", *tx.Notes)
}

func TestNormalize_Deterministic(t *testing.T) {
	logger := logging.NewMockLogger()
	reg, err := banksource.NewRegistry(logger, DefaultSource())
	require.NoError(t, err)
	n := normalizer.New(reg, models.DefaultSettlementCurrency, logger)
	n.Register(New())

	r := row("CARD_PAYMENT", "2025-01-02 08:07:09", "2025-01-03 15:38:51", "Boreal Coffee Shop", "-57.50", "CHF", "COMPLETED")
	first, err := n.Normalize(SourceID, r)
	require.NoError(t, err)
	second, err := n.Normalize(SourceID, r)
	require.NoError(t, err)

	assert.Equal(t, first.OriginalTransactionID, second.OriginalTransactionID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.StatusUnprocessed, first.ProcessingStatus)
	assert.Nil(t, first.ExchangeRate)
}

func TestDefaultSource_IsValid(t *testing.T) {
	assert.NoError(t, banksource.Validate(DefaultSource()))
}
