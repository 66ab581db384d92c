package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/retry"
	"fjacquet/ledger-sync/internal/txerror"
)

var fetched = time.Date(2025, 11, 20, 9, 0, 0, 0, time.UTC)

// stubProvider serves fixed rates and records each call.
type stubProvider struct {
	rates      map[string]string
	batchCalls [][]string
	rateCalls  []string
	failWith   error
	failTimes  int
}

func (s *stubProvider) fail() error {
	if s.failTimes > 0 {
		s.failTimes--
		return s.failWith
	}
	return nil
}

func (s *stubProvider) GetRate(_ context.Context, from, _ string) (Rate, error) {
	s.rateCalls = append(s.rateCalls, from)
	if err := s.fail(); err != nil {
		return Rate{}, err
	}
	v, ok := s.rates[from]
	if !ok {
		return Rate{}, &txerror.RateUnavailableError{Currency: from, Err: errors.New("unknown")}
	}
	return Rate{Currency: from, Value: decimal.RequireFromString(v), FetchedAt: fetched, Provider: "stub"}, nil
}

func (s *stubProvider) GetRatesBatch(_ context.Context, currencies []string, _ string) (map[string]Rate, error) {
	s.batchCalls = append(s.batchCalls, append([]string(nil), currencies...))
	if err := s.fail(); err != nil {
		return nil, err
	}
	out := make(map[string]Rate)
	for _, c := range currencies {
		if v, ok := s.rates[c]; ok {
			out[c] = Rate{Currency: c, Value: decimal.RequireFromString(v), FetchedAt: fetched, Provider: "stub"}
		}
	}
	return out, nil
}

func fastRetrier() *retry.Retrier {
	return retry.New(retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1}, logging.NewMockLogger())
}

func txIn(t *testing.T, originalID, amount, currency string) models.Transaction {
	t.Helper()
	tx, err := models.NewTransactionBuilder().
		WithSource("revolut").
		WithOriginalID(originalID).
		WithDate(time.Date(2025, 11, 15, 0, 0, 0, 0, time.UTC)).
		WithDescription("purchase " + originalID).
		WithAmount(decimal.RequireFromString(amount), currency).
		Build()
	require.NoError(t, err)
	return tx
}

func TestConvertBatchToGBP_OneCallPerBatch(t *testing.T) {
	provider := &stubProvider{rates: map[string]string{"USD": "0.79", "EUR": "0.87"}}
	c := NewConverter(provider, fastRetrier(), "GBP", "run-1", logging.NewMockLogger())

	usd1 := txIn(t, "a", "10.00", "USD")
	usd2 := txIn(t, "b", "20.00", "USD")
	eur := txIn(t, "c", "5.00", "EUR")
	gbp := txIn(t, "d", "7.50", "GBP")

	results := c.ConvertBatchToGBP(context.Background(), []models.Transaction{usd1, usd2, eur, gbp})

	require.Len(t, provider.batchCalls, 1)
	assert.Equal(t, []string{"EUR", "USD"}, provider.batchCalls[0])
	assert.Empty(t, provider.rateCalls)
	assert.Equal(t, 2, c.Cache().Len())
	require.Len(t, results, 4)

	assert.True(t, decimal.RequireFromString("7.90").Equal(results[usd1.ID].SettlementAmount))
	assert.True(t, decimal.RequireFromString("15.80").Equal(results[usd2.ID].SettlementAmount))
	assert.True(t, decimal.RequireFromString("4.35").Equal(results[eur.ID].SettlementAmount))

	g := results[gbp.ID]
	assert.NoError(t, g.Err)
	assert.Nil(t, g.Rate)
	assert.Nil(t, g.Snapshot)
	assert.True(t, gbp.OriginalAmount.Equal(g.SettlementAmount))

	snap := results[usd1.ID].Snapshot
	require.NotNil(t, snap)
	assert.Equal(t, "GBP", snap.BaseCurrency)
	assert.Equal(t, "USD", snap.TargetCurrency)
	assert.Equal(t, "run-1", snap.ProcessingRunID)
	assert.Equal(t, usd1.ID, snap.TransactionID)
	assert.Equal(t, "stub", snap.Provider)
}

func TestConvertBatchToGBP_TenTransactionsThreeCurrencies(t *testing.T) {
	provider := &stubProvider{rates: map[string]string{"USD": "0.79", "EUR": "0.87", "CHF": "0.90"}}
	c := NewConverter(provider, fastRetrier(), "GBP", "run-1", logging.NewMockLogger())

	currencies := []string{"USD", "EUR", "CHF", "USD", "EUR", "CHF", "USD", "EUR", "CHF", "USD"}
	var batch []models.Transaction
	for i, cur := range currencies {
		batch = append(batch, txIn(t, string(rune('a'+i)), "1.00", cur))
	}
	c.ConvertBatchToGBP(context.Background(), batch)

	assert.Len(t, provider.batchCalls, 1)
	assert.Equal(t, 3, c.Cache().Len())
}

func TestConvertBatchToGBP_UsesCacheAcrossBatches(t *testing.T) {
	provider := &stubProvider{rates: map[string]string{"USD": "0.79", "EUR": "0.87"}}
	c := NewConverter(provider, fastRetrier(), "GBP", "run-1", logging.NewMockLogger())

	c.ConvertBatchToGBP(context.Background(), []models.Transaction{txIn(t, "a", "1", "USD")})
	c.ConvertBatchToGBP(context.Background(), []models.Transaction{txIn(t, "b", "1", "USD"), txIn(t, "c", "1", "EUR")})

	require.Len(t, provider.batchCalls, 2)
	assert.Equal(t, []string{"EUR"}, provider.batchCalls[1])
}

func TestConvertBatchToGBP_SettlementOnlyMakesNoCall(t *testing.T) {
	provider := &stubProvider{}
	c := NewConverter(provider, fastRetrier(), "GBP", "run-1", logging.NewMockLogger())

	results := c.ConvertBatchToGBP(context.Background(), []models.Transaction{txIn(t, "a", "3.00", "GBP")})
	assert.Empty(t, provider.batchCalls)
	assert.Len(t, results, 1)
}

func TestConvertBatchToGBP_MissingCurrencyIsAttributed(t *testing.T) {
	provider := &stubProvider{rates: map[string]string{"USD": "0.79"}}
	c := NewConverter(provider, fastRetrier(), "GBP", "run-1", logging.NewMockLogger())

	usd := txIn(t, "a", "10", "USD")
	xyz := txIn(t, "b", "10", "XYZ")
	results := c.ConvertBatchToGBP(context.Background(), []models.Transaction{usd, xyz})

	assert.NoError(t, results[usd.ID].Err)
	var unavailable *txerror.RateUnavailableError
	require.ErrorAs(t, results[xyz.ID].Err, &unavailable)
	assert.Equal(t, "XYZ", unavailable.Currency)
	assert.Equal(t, 1, c.Cache().Len(), "failed currencies are not cached")
}

func TestConvertBatchToGBP_ProviderOutage(t *testing.T) {
	provider := &stubProvider{
		rates:     map[string]string{"USD": "0.79"},
		failWith:  &txerror.TransientError{Operation: "stub", Err: errors.New("503")},
		failTimes: 5,
	}
	c := NewConverter(provider, fastRetrier(), "GBP", "run-1", logging.NewMockLogger())

	usd := txIn(t, "a", "10", "USD")
	gbp := txIn(t, "b", "10", "GBP")
	results := c.ConvertBatchToGBP(context.Background(), []models.Transaction{usd, gbp})

	var exhausted *txerror.RetryExhaustedError
	require.ErrorAs(t, results[usd.ID].Err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.NoError(t, results[gbp.ID].Err)
	assert.Len(t, provider.batchCalls, 2)
}

func TestConvertToGBP(t *testing.T) {
	provider := &stubProvider{rates: map[string]string{"USD": "0.8"}}
	c := NewConverter(provider, fastRetrier(), "GBP", "run-1", logging.NewMockLogger())

	conv, err := c.ConvertToGBP(context.Background(), txIn(t, "a", "12.345", "USD"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("9.88").Equal(conv.SettlementAmount))
	require.NotNil(t, conv.Rate)
	assert.True(t, decimal.RequireFromString("0.8").Equal(*conv.Rate))

	_, err = c.ConvertToGBP(context.Background(), txIn(t, "b", "1", "USD"))
	require.NoError(t, err)
	assert.Len(t, provider.rateCalls, 1, "second conversion is served from the cache")

	_, err = c.ConvertToGBP(context.Background(), txIn(t, "c", "1", "GBP"))
	require.NoError(t, err)
	assert.Len(t, provider.rateCalls, 1)
}

func TestConvertToGBP_UnknownCurrency(t *testing.T) {
	c := NewConverter(&stubProvider{}, fastRetrier(), "GBP", "run-1", logging.NewMockLogger())
	conv, err := c.ConvertToGBP(context.Background(), txIn(t, "a", "1", "JPY"))
	var unavailable *txerror.RateUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, err, conv.Err)
}

func TestStartRun_ClearsCache(t *testing.T) {
	provider := &stubProvider{rates: map[string]string{"USD": "0.79"}}
	c := NewConverter(provider, fastRetrier(), "GBP", "run-1", logging.NewMockLogger())
	c.ConvertBatchToGBP(context.Background(), []models.Transaction{txIn(t, "a", "1", "USD")})
	require.Equal(t, 1, c.Cache().Len())

	c.StartRun("run-2")
	assert.Equal(t, 0, c.Cache().Len())

	results := c.ConvertBatchToGBP(context.Background(), []models.Transaction{txIn(t, "b", "1", "USD")})
	assert.Len(t, provider.batchCalls, 2)
	for _, r := range results {
		assert.Equal(t, "run-2", r.Snapshot.ProcessingRunID)
	}
}

func TestConversion_Apply(t *testing.T) {
	tx := txIn(t, "a", "10", "USD")
	rate := decimal.RequireFromString("0.79")
	conv := Conversion{TransactionID: tx.ID, SettlementAmount: decimal.RequireFromString("7.90"), Rate: &rate}

	require.NoError(t, conv.Apply(&tx, fetched))
	assert.Equal(t, models.StatusNormalised, tx.ProcessingStatus)
	assert.NoError(t, tx.ValidateSettlement("GBP"))

	failed := Conversion{Err: errors.New("no rate")}
	other := txIn(t, "b", "10", "USD")
	assert.Error(t, failed.Apply(&other, fetched))
	assert.Equal(t, models.StatusUnprocessed, other.ProcessingStatus)
}
