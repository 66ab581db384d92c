package monzonormalizer

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

func tescoRow() normalizer.RawRow {
	return normalizer.RawRow{
		"Transaction ID":  "tx_1",
		"Date":            "15/11/2025",
		"Time":            "14:30:00",
		"Type":            "Card payment",
		"Name":            "Tesco",
		"Emoji":           "",
		"Category":        "Groceries",
		"Amount":          "-23.45",
		"Currency":        "GBP",
		"Notes and #tags": "",
	}
}

func newNormalizer(t *testing.T) *normalizer.Normalizer {
	t.Helper()
	logger := logging.NewMockLogger()
	reg, err := banksource.NewRegistry(logger, DefaultSource())
	require.NoError(t, err)
	n := normalizer.New(reg, models.DefaultSettlementCurrency, logger)
	n.Register(New())
	return n
}

func TestNormalize_SettlementCurrencyRow(t *testing.T) {
	tx, err := newNormalizer(t).Normalize(SourceID, tescoRow())
	require.NoError(t, err)

	assert.Equal(t, "tx_1", tx.OriginalTransactionID)
	assert.Equal(t, models.TransactionTypeDebit, tx.Type)
	assert.True(t, decimal.RequireFromString("23.45").Equal(tx.OriginalAmount))
	assert.True(t, decimal.RequireFromString("23.45").Equal(tx.SettlementAmount))
	assert.Nil(t, tx.ExchangeRate)
	assert.Equal(t, models.StatusNormalised, tx.ProcessingStatus)
	assert.Equal(t, time.Date(2025, 11, 15, 14, 30, 0, 0, time.UTC), tx.TransactionDate)
	assert.Nil(t, tx.Notes)
}

func TestNormalize_ForeignCurrencyIsDeferred(t *testing.T) {
	r := tescoRow()
	r["Currency"] = "EUR"
	tx, err := newNormalizer(t).Normalize(SourceID, r)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnprocessed, tx.ProcessingStatus)
	assert.Nil(t, tx.ExchangeRate)
}

func TestNormalize_CreditAndNotes(t *testing.T) {
	r := tescoRow()
	r["Type"] = "Faster payment"
	r["Amount"] = "250.00"
	r["Notes and #tags"] = "rent share #flat"
	tx, err := New().Normalize(r, DefaultSource())
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeCredit, tx.Type)
	require.NotNil(t, tx.Notes)
	assert.Equal(t, "rent share #flat", *tx.Notes)
}

func TestNormalize_MissingTimeUsesDefaultTimeOfDay(t *testing.T) {
	r := tescoRow()
	r["Time"] = ""
	tx, err := New().Normalize(r, DefaultSource())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC), tx.TransactionDate)
}

func TestNormalize_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(normalizer.RawRow)
		field  string
	}{
		{"missing id", func(r normalizer.RawRow) { r["Transaction ID"] = "" }, models.FieldID},
		{"bad date", func(r normalizer.RawRow) { r["Date"] = "yesterday" }, models.FieldDate},
		{"bad time", func(r normalizer.RawRow) { r["Time"] = "teatime" }, models.FieldTime},
		{"missing name", func(r normalizer.RawRow) { delete(r, "Name") }, models.FieldDescription},
		{"bad amount", func(r normalizer.RawRow) { r["Amount"] = "lots" }, models.FieldAmount},
		{"bad currency", func(r normalizer.RawRow) { r["Currency"] = "pounds" }, models.FieldCurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tescoRow()
			tt.mutate(r)
			_, err := New().Normalize(r, DefaultSource())
			var verr *txerror.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, SourceID, verr.Source)
		})
	}
}

func TestNormalize_FingerprintWithoutNativeID(t *testing.T) {
	src := DefaultSource()
	src.HasNativeID = false
	r := tescoRow()
	r["Transaction ID"] = ""

	tx, err := New().Normalize(r, src)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(tx.OriginalTransactionID, normalizer.GeneratedIDPrefix))

	again, err := New().Normalize(tescoRow(), src)
	require.NoError(t, err)
	assert.Equal(t, tx.OriginalTransactionID, again.OriginalTransactionID)
}

func TestDefaultSource_IsValid(t *testing.T) {
	assert.NoError(t, banksource.Validate(DefaultSource()))
}
