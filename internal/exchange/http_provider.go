package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/context/ctxhttp"

	"fjacquet/ledger-sync/internal/config"
	"fjacquet/ledger-sync/internal/txerror"
)

// HTTPProvider reads rates from a Frankfurter-compatible API:
//
//	GET {base}/latest?from=GBP&to=USD,EUR
//	{"base":"GBP","date":"2025-11-14","rates":{"USD":1.3121,"EUR":1.1302}}
//
// The API quotes foreign units per settlement unit; rates are inverted so that
// Rate.Value is settlement units per foreign unit.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	now     func() time.Time
}

// HTTPOption customizes an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.client = c }
}

// WithProviderClock overrides the fetch timestamp source.
func WithProviderClock(now func() time.Time) HTTPOption {
	return func(p *HTTPProvider) { p.now = now }
}

// NewHTTPProvider builds a provider from the rates configuration.
func NewHTTPProvider(cfg config.RatesConfig, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		name:    cfg.Provider,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// GetRate implements RateProvider.
func (p *HTTPProvider) GetRate(ctx context.Context, from, to string) (Rate, error) {
	rates, err := p.GetRatesBatch(ctx, []string{from}, to)
	if err != nil {
		return Rate{}, err
	}
	r, ok := rates[strings.ToUpper(from)]
	if !ok {
		return Rate{}, &txerror.RateUnavailableError{Currency: from, Err: fmt.Errorf("%s returned no rate", p.name)}
	}
	return r, nil
}

// GetRatesBatch implements RateProvider with a single request.
func (p *HTTPProvider) GetRatesBatch(ctx context.Context, currencies []string, to string) (map[string]Rate, error) {
	q := url.Values{}
	q.Set("from", strings.ToUpper(to))
	q.Set("to", strings.ToUpper(strings.Join(currencies, ",")))
	if p.apiKey != "" {
		q.Set("access_key", p.apiKey)
	}

	resp, err := ctxhttp.Get(ctx, p.client, p.baseURL+"/latest?"+q.Encode())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &txerror.TransientError{Operation: p.name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &txerror.TransientError{Operation: p.name, Err: err}
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &txerror.TransientError{Operation: p.name, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d: %s", p.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed latestResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", p.name, err)
	}

	fetchedAt := p.now()
	out := make(map[string]Rate, len(parsed.Rates))
	for code, perSettlement := range parsed.Rates {
		if !perSettlement.IsPositive() {
			continue
		}
		code = strings.ToUpper(code)
		out[code] = Rate{
			Currency:  code,
			Value:     decimal.NewFromInt(1).DivRound(perSettlement, 10),
			FetchedAt: fetchedAt,
			Provider:  p.name,
		}
	}
	return out, nil
}
