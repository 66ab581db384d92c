// Package exchange converts transaction amounts into the settlement currency
// using rates cached for one processing run.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Rate is the value of one unit of Currency expressed in the settlement currency.
type Rate struct {
	Currency  string          `json:"currency"`
	Value     decimal.Decimal `json:"value"`
	FetchedAt time.Time       `json:"fetched_at"`
	Provider  string          `json:"provider"`
}

// RateProvider fetches exchange rates. Implementations return
// *txerror.TransientError for failures worth retrying.
type RateProvider interface {
	GetRate(ctx context.Context, from, to string) (Rate, error)
	// GetRatesBatch returns one rate per requested currency it could resolve.
	// Currencies absent from the result are unavailable.
	GetRatesBatch(ctx context.Context, currencies []string, to string) (map[string]Rate, error)
}

// RateCache holds the rates fetched during one run, keyed by currency code.
type RateCache struct {
	rates map[string]Rate
}

// NewRateCache returns an empty cache.
func NewRateCache() *RateCache {
	return &RateCache{rates: make(map[string]Rate)}
}

func (c *RateCache) Get(currency string) (Rate, bool) {
	r, ok := c.rates[currency]
	return r, ok
}

func (c *RateCache) Put(r Rate) {
	c.rates[r.Currency] = r
}

// Clear drops every cached rate. Runs call it before converting anything.
func (c *RateCache) Clear() {
	c.rates = make(map[string]Rate)
}

func (c *RateCache) Len() int {
	return len(c.rates)
}
