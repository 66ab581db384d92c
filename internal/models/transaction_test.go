package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/ledger-sync/internal/txerror"
)

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ProcessingStatus
		want     bool
	}{
		{StatusUnprocessed, StatusNormalised, true},
		{StatusNormalised, StatusCategorised, true},
		{StatusUnprocessed, StatusError, true},
		{StatusNormalised, StatusError, true},
		{StatusCategorised, StatusError, true},
		{StatusError, StatusNormalised, true},
		{StatusCategorised, StatusNormalised, false},
		{StatusNormalised, StatusUnprocessed, false},
		{StatusCategorised, StatusUnprocessed, false},
		{StatusError, StatusCategorised, false},
		{StatusUnprocessed, StatusCategorised, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransitionTo(t *testing.T) {
	t.Run("forward stamps timestamps", func(t *testing.T) {
		tx := &Transaction{ID: "t1", ProcessingStatus: StatusUnprocessed}
		require.NoError(t, tx.TransitionTo(StatusNormalised, testNow))
		require.NotNil(t, tx.NormalisedAt)
		assert.Equal(t, testNow, *tx.NormalisedAt)

		later := testNow.Add(time.Hour)
		require.NoError(t, tx.TransitionTo(StatusCategorised, later))
		require.NotNil(t, tx.CategorisedAt)
		assert.Equal(t, later, tx.UpdatedAt)
	})

	t.Run("backward rejected", func(t *testing.T) {
		tx := &Transaction{ID: "t2", ProcessingStatus: StatusCategorised}
		err := tx.TransitionTo(StatusNormalised, testNow)

		var illegal *txerror.IllegalTransitionError
		require.True(t, errors.As(err, &illegal))
		assert.Equal(t, "CATEGORISED", illegal.From)
		assert.Equal(t, StatusCategorised, tx.ProcessingStatus)
	})

	t.Run("retry from error clears message", func(t *testing.T) {
		tx := &Transaction{ID: "t3", ProcessingStatus: StatusNormalised}
		tx.MarkError("rate missing", testNow)
		require.NotNil(t, tx.ErrorMessage)

		require.NoError(t, tx.TransitionTo(StatusNormalised, testNow))
		assert.Nil(t, tx.ErrorMessage)
		assert.Equal(t, StatusNormalised, tx.ProcessingStatus)
	})
}

func TestEffectiveCategory(t *testing.T) {
	tx, err := NewTransactionBuilder().
		WithSource("monzo").
		WithDate(testNow).
		WithAICategory("groceries", "Groceries", 80).
		Build()
	require.NoError(t, err)

	id, name, ok := tx.EffectiveCategory()
	assert.True(t, ok)
	assert.Equal(t, "groceries", id)
	assert.Equal(t, "Groceries", name)
	assert.False(t, tx.HasManualOverride())

	tx.CategoryManualID = StringPtr("dining")
	tx.CategoryManualName = StringPtr("Dining")
	id, name, _ = tx.EffectiveCategory()
	assert.Equal(t, "dining", id)
	assert.Equal(t, "Dining", name)
	assert.True(t, tx.HasManualOverride())

	_, _, ok = (&Transaction{}).EffectiveCategory()
	assert.False(t, ok)
}

func TestValidateSettlement(t *testing.T) {
	rate := decimal.RequireFromString("0.79")
	score := 120.0

	tests := []struct {
		name    string
		tx      Transaction
		wantErr bool
	}{
		{
			name: "gbp without rate",
			tx: Transaction{OriginalCurrency: "GBP", OriginalAmount: decimal.NewFromInt(5),
				SettlementAmount: decimal.NewFromInt(5), ProcessingStatus: StatusNormalised},
		},
		{
			name: "gbp with rate",
			tx: Transaction{OriginalCurrency: "GBP", OriginalAmount: decimal.NewFromInt(5),
				SettlementAmount: decimal.NewFromInt(5), ExchangeRate: &rate, ProcessingStatus: StatusNormalised},
			wantErr: true,
		},
		{
			name:    "foreign normalised without rate",
			tx:      Transaction{OriginalCurrency: "USD", OriginalAmount: decimal.NewFromInt(5), ProcessingStatus: StatusNormalised},
			wantErr: true,
		},
		{
			name: "foreign unprocessed without rate",
			tx:   Transaction{OriginalCurrency: "USD", OriginalAmount: decimal.NewFromInt(5), ProcessingStatus: StatusUnprocessed},
		},
		{
			name: "confidence out of range",
			tx: Transaction{OriginalCurrency: "GBP", ProcessingStatus: StatusCategorised,
				CategoryConfidenceScore: &score},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.ValidateSettlement("GBP")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTransactionBuilder_Build(t *testing.T) {
	tx, err := NewTransactionBuilder().
		WithSource("revolut").
		WithOriginalID("abc").
		WithDate(time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))).
		WithDescription("  Tesco  ").
		WithAmount(decimal.RequireFromString("-12.50"), "eur").
		WithType(TransactionTypeCredit).
		Build()
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "Tesco", tx.Description)
	assert.Equal(t, "EUR", tx.OriginalCurrency)
	assert.True(t, decimal.RequireFromString("12.50").Equal(tx.OriginalAmount))
	assert.Equal(t, time.UTC, tx.TransactionDate.Location())
	assert.Equal(t, 11, tx.TransactionDate.Hour())
	assert.Equal(t, TransactionTypeCredit, tx.Type)
	assert.Equal(t, StatusUnprocessed, tx.ProcessingStatus)
}

func TestTransactionBuilder_ErrorPropagation(t *testing.T) {
	_, err := NewTransactionBuilder().
		WithSource("monzo").
		WithDate(time.Time{}).
		WithDescription("ignored after the error").
		Build()
	assert.ErrorContains(t, err, "transaction date cannot be zero")

	_, err = NewTransactionBuilder().WithSource("monzo").Build()
	assert.ErrorContains(t, err, "date is required")
}
