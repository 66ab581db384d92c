package normalizer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"fjacquet/ledger-sync/internal/models"
)

func TestFingerprint(t *testing.T) {
	ts := time.Date(2025, 11, 15, 14, 30, 0, 0, time.UTC)
	base := Fingerprint(ts, "Tesco Stores", decimal.RequireFromString("-23.45"), "GBP")

	assert.Len(t, base, len(GeneratedIDPrefix)+32)

	same := []struct {
		name string
		id   string
	}{
		{"cosmetic description changes", Fingerprint(ts, "  TESCO   stores ", decimal.RequireFromString("-23.45"), "GBP")},
		{"amount scale", Fingerprint(ts, "Tesco Stores", decimal.RequireFromString("-23.450"), "GBP")},
		{"currency case", Fingerprint(ts, "Tesco Stores", decimal.RequireFromString("-23.45"), "gbp")},
		{"same instant other zone", Fingerprint(ts.In(time.FixedZone("CET", 3600)), "Tesco Stores", decimal.RequireFromString("-23.45"), "GBP")},
	}
	for _, tt := range same {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, base, tt.id)
		})
	}

	different := []struct {
		name string
		id   string
	}{
		{"time", Fingerprint(ts.Add(time.Second), "Tesco Stores", decimal.RequireFromString("-23.45"), "GBP")},
		{"description", Fingerprint(ts, "Tesco Express", decimal.RequireFromString("-23.45"), "GBP")},
		{"sign", Fingerprint(ts, "Tesco Stores", decimal.RequireFromString("23.45"), "GBP")},
		{"currency", Fingerprint(ts, "Tesco Stores", decimal.RequireFromString("-23.45"), "EUR")},
	}
	for _, tt := range different {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, tt.id)
		})
	}
}

func TestNormalizeDescription(t *testing.T) {
	tests := []struct {
		input, expected string
	}{
		{"  Tesco   Stores ", "tesco stores"},
		{"STRASSE", "strasse"},
		{"ＡＭＡＺＯＮ", "amazon"},
		{"Café\tNero", "café nero"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeDescription(tt.input))
		})
	}
}

func TestInferType(t *testing.T) {
	neg := decimal.RequireFromString("-5")
	pos := decimal.RequireFromString("5")
	vocab := DefaultVocabulary.Extend(Vocabulary{"CARD_PAYMENT": models.TransactionTypeDebit, "Top-Up": models.TransactionTypeCredit})

	tests := []struct {
		name   string
		raw    string
		amount decimal.Decimal
		want   models.TransactionType
	}{
		{"explicit debit beats sign", "Debit", pos, models.TransactionTypeDebit},
		{"explicit credit beats sign", "CR", neg, models.TransactionTypeCredit},
		{"extended vocabulary", "card payment", pos, models.TransactionTypeDebit},
		{"hyphenated vocabulary", "TOP_UP", neg, models.TransactionTypeCredit},
		{"unrecognized falls back to sign", "Faster payment", neg, models.TransactionTypeDebit},
		{"absent uses sign", "", pos, models.TransactionTypeCredit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferType(tt.raw, tt.amount, vocab))
		})
	}

	_, ok := DefaultVocabulary.Lookup("card payment")
	assert.False(t, ok, "Extend leaves the receiver untouched")
}

func TestSigned(t *testing.T) {
	assert.Equal(t, "-5", Signed(decimal.NewFromInt(5), models.TransactionTypeDebit).String())
	assert.Equal(t, "5", Signed(decimal.NewFromInt(-5), models.TransactionTypeCredit).String())
}
