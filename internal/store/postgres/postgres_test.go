package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/store"
)

func TestLikePatterns(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
		want   []string
	}{
		{"plain", []string{"tesco", "stores"}, []string{"%tesco%", "%stores%"}},
		{"wildcards escaped", []string{"100%", "a_b"}, []string{`%100\%%`, `%a\_b%`}},
		{"empty", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LikePatterns(tt.tokens))
		})
	}
}

func TestRateText(t *testing.T) {
	assert.Nil(t, rateText(nil))
	rate := decimal.RequireFromString("0.8512")
	assert.Equal(t, "0.8512", *rateText(&rate))
}

func TestDuplicateKeyError(t *testing.T) {
	err := &DuplicateKeyError{Detail: "Key (bank_source_id, original_transaction_id)=(monzo, tx_1) already exists."}
	assert.Contains(t, err.Error(), "duplicate transaction key")
}

// TestStore_Integration runs against a scratch database named by
// LEDGER_TEST_DATABASE_URL and is skipped otherwise.
func TestStore_Integration(t *testing.T) {
	url := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	s, err := Connect(ctx, url, logging.NewMockLogger())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Migrate(ctx))
	_, err = s.pool.Exec(ctx, "TRUNCATE transactions")
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	tx, err := models.NewTransactionBuilder().
		WithOriginalID("tx_1").
		WithSource("monzo").
		WithDate(now.AddDate(0, 0, -1)).
		WithDescription("TESCO STORES 3297").
		WithAmount(decimal.RequireFromString("12.50"), "GBP").
		WithType(models.TransactionTypeDebit).
		WithSettlement(decimal.RequireFromString("12.50"), nil).
		WithStatus(models.StatusNormalised).
		WithCreatedAt(now).
		Build()
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, []models.Transaction{tx}))

	exists, err := s.ExistsByOriginalID(ctx, "monzo", "tx_1")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := tx
	dup.ID = "other"
	var dupErr *DuplicateKeyError
	assert.True(t, errors.As(s.Append(ctx, []models.Transaction{dup}), &dupErr))

	score := 88.0
	tx.CategoryAIID = models.StringPtr("groceries")
	tx.CategoryAIName = models.StringPtr("Groceries")
	tx.CategoryConfidenceScore = &score
	require.NoError(t, tx.TransitionTo(models.StatusCategorised, now))
	require.NoError(t, s.UpdateCategory(ctx, tx))

	similar, err := s.ReadByMerchant(ctx, "Tesco Express", 10, 30)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, "groceries", *similar[0].CategoryAIID)
	assert.True(t, similar[0].OriginalAmount.Equal(decimal.RequireFromString("12.5")))

	assert.True(t, errors.Is(s.UpdateStatus(ctx, models.Transaction{ID: "missing"}), store.ErrNotFound))
}
