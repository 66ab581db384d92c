package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fjacquet/ledger-sync/internal/currencyutils"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/retry"
	"fjacquet/ledger-sync/internal/txerror"
)

// Conversion is the outcome of converting one transaction. Rate and Snapshot
// are nil for settlement-currency transactions; Err is set when no rate could
// be obtained.
type Conversion struct {
	TransactionID    string
	SettlementAmount decimal.Decimal
	Rate             *decimal.Decimal
	Snapshot         *models.ExchangeRateSnapshot
	Err              error
}

// Apply records the conversion on tx and moves it to NORMALISED.
func (c Conversion) Apply(tx *models.Transaction, now time.Time) error {
	if c.Err != nil {
		return c.Err
	}
	tx.ApplyConversion(c.SettlementAmount, c.Rate)
	return tx.TransitionTo(models.StatusNormalised, now)
}

// Converter converts amounts into the settlement currency. It owns the rate
// cache of the run it belongs to and is not safe for concurrent use.
type Converter struct {
	provider   RateProvider
	retrier    *retry.Retrier
	cache      *RateCache
	settlement string
	runID      string
	logger     logging.Logger
}

// NewConverter creates a converter for one run.
func NewConverter(provider RateProvider, retrier *retry.Retrier, settlement, runID string, logger logging.Logger) *Converter {
	return &Converter{
		provider:   provider,
		retrier:    retrier,
		cache:      NewRateCache(),
		settlement: strings.ToUpper(settlement),
		runID:      runID,
		logger:     logger,
	}
}

// StartRun clears the rate cache and tags later snapshots with runID.
func (c *Converter) StartRun(runID string) {
	c.cache.Clear()
	c.runID = runID
}

// Cache exposes the run's rate cache.
func (c *Converter) Cache() *RateCache {
	return c.cache
}

// Settlement returns the settlement currency code.
func (c *Converter) Settlement() string {
	return c.settlement
}

// ConvertToGBP converts one transaction into the settlement currency (GBP
// unless configured otherwise). Settlement-currency amounts never reach the provider.
func (c *Converter) ConvertToGBP(ctx context.Context, tx models.Transaction) (Conversion, error) {
	if tx.IsSettlementCurrency(c.settlement) {
		return c.passThrough(tx), nil
	}

	currency := strings.ToUpper(tx.OriginalCurrency)
	rate, ok := c.cache.Get(currency)
	if !ok {
		err := c.retrier.Do(ctx, "exchange.GetRate", func(ctx context.Context) error {
			r, err := c.provider.GetRate(ctx, currency, c.settlement)
			if err != nil {
				return err
			}
			rate = r
			return nil
		})
		if err == nil {
			rate.Currency = currency
			err = checkRate(currency, rate)
		} else {
			err = attribute(currency, err)
		}
		if err != nil {
			return Conversion{TransactionID: tx.ID, Err: err}, err
		}
		c.cache.Put(rate)
	}
	return c.convert(tx, rate), nil
}

// ConvertBatchToGBP converts a batch keyed by transaction id. Every distinct
// non-settlement currency missing from the cache is fetched in one provider
// call. A failed currency sets Err on the transactions needing it only.
func (c *Converter) ConvertBatchToGBP(ctx context.Context, txs []models.Transaction) map[string]Conversion {
	results := make(map[string]Conversion, len(txs))
	failed := c.prefetch(ctx, txs)

	for _, tx := range txs {
		if tx.IsSettlementCurrency(c.settlement) {
			results[tx.ID] = c.passThrough(tx)
			continue
		}
		currency := strings.ToUpper(tx.OriginalCurrency)
		if err, ok := failed[currency]; ok {
			results[tx.ID] = Conversion{TransactionID: tx.ID, Err: err}
			continue
		}
		rate, _ := c.cache.Get(currency)
		results[tx.ID] = c.convert(tx, rate)
	}
	return results
}

// prefetch fills the cache for every uncached currency of txs and returns the
// currencies that could not be resolved.
func (c *Converter) prefetch(ctx context.Context, txs []models.Transaction) map[string]error {
	seen := make(map[string]bool)
	var missing []string
	for _, tx := range txs {
		if tx.IsSettlementCurrency(c.settlement) {
			continue
		}
		currency := strings.ToUpper(tx.OriginalCurrency)
		if seen[currency] {
			continue
		}
		seen[currency] = true
		if _, ok := c.cache.Get(currency); !ok {
			missing = append(missing, currency)
		}
	}
	failed := make(map[string]error)
	if len(missing) == 0 {
		return failed
	}
	sort.Strings(missing)

	var rates map[string]Rate
	err := c.retrier.Do(ctx, "exchange.GetRatesBatch", func(ctx context.Context) error {
		r, err := c.provider.GetRatesBatch(ctx, missing, c.settlement)
		if err != nil {
			return err
		}
		rates = r
		return nil
	})
	if err != nil {
		c.logger.Error("Rate batch failed",
			logging.F(logging.FieldRunID, c.runID),
			logging.F(logging.FieldCurrency, strings.Join(missing, ",")),
			logging.F(logging.FieldReason, err.Error()))
		for _, currency := range missing {
			failed[currency] = attribute(currency, err)
		}
		return failed
	}

	for _, currency := range missing {
		rate, ok := rates[currency]
		if !ok {
			failed[currency] = &txerror.RateUnavailableError{Currency: currency, Err: errors.New("provider returned no rate")}
			continue
		}
		rate.Currency = currency
		if err := checkRate(currency, rate); err != nil {
			failed[currency] = err
			continue
		}
		c.cache.Put(rate)
	}
	c.logger.Debug("Fetched exchange rates",
		logging.F(logging.FieldRunID, c.runID),
		logging.F(logging.FieldCount, len(missing)-len(failed)))
	return failed
}

func (c *Converter) passThrough(tx models.Transaction) Conversion {
	return Conversion{TransactionID: tx.ID, SettlementAmount: tx.OriginalAmount}
}

func (c *Converter) convert(tx models.Transaction, rate Rate) Conversion {
	value := rate.Value
	return Conversion{
		TransactionID:    tx.ID,
		SettlementAmount: currencyutils.Convert(tx.OriginalAmount, value),
		Rate:             &value,
		Snapshot: &models.ExchangeRateSnapshot{
			BaseCurrency:    c.settlement,
			TargetCurrency:  rate.Currency,
			Rate:            value,
			FetchedAt:       rate.FetchedAt,
			Provider:        rate.Provider,
			ProcessingRunID: c.runID,
			TransactionID:   tx.ID,
		},
	}
}

func checkRate(currency string, rate Rate) error {
	if !rate.Value.IsPositive() {
		return &txerror.RateUnavailableError{Currency: currency, Err: fmt.Errorf("non-positive rate %s", rate.Value)}
	}
	return nil
}

// attribute keeps retry exhaustion as is and reports anything else as the
// currency being unavailable.
func attribute(currency string, err error) error {
	var exhausted *txerror.RetryExhaustedError
	if errors.As(err, &exhausted) {
		return err
	}
	return &txerror.RateUnavailableError{Currency: currency, Err: err}
}
