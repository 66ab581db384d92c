package normalizer

import (
	"fmt"
	"sort"
	"time"

	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/txerror"
)

// Normalizer dispatches rows to the strategy registered for their source.
type Normalizer struct {
	strategies map[string]Strategy
	sources    SourceLookup
	settlement string
	logger     logging.Logger
	now        func() time.Time
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the clock used for lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// New creates a Normalizer that resolves bank sources through sources and
// treats settlement as the settlement currency.
func New(sources SourceLookup, settlement string, logger logging.Logger, opts ...Option) *Normalizer {
	n := &Normalizer{
		strategies: make(map[string]Strategy),
		sources:    sources,
		settlement: settlement,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Register adds a strategy. Registering a second strategy for the same source
// replaces the first.
func (n *Normalizer) Register(s Strategy) {
	n.strategies[s.SourceID()] = s
}

// RegisteredSources returns the source ids with a strategy, sorted.
func (n *Normalizer) RegisteredSources() []string {
	ids := make([]string, 0, len(n.strategies))
	for id := range n.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Settlement returns the settlement currency.
func (n *Normalizer) Settlement() string {
	return n.settlement
}

// Source resolves the bank source for a registered strategy. Unknown ids and
// strategies without a registry entry are configuration errors.
func (n *Normalizer) Source(sourceID string) (models.BankSource, error) {
	if _, ok := n.strategies[sourceID]; !ok {
		return models.BankSource{}, &txerror.UnregisteredSourceError{SourceID: sourceID, Registered: n.RegisteredSources()}
	}
	src, err := n.sources.Get(sourceID)
	if err != nil {
		return models.BankSource{}, fmt.Errorf("strategy %s has no bank source definition: %w", sourceID, err)
	}
	return src, nil
}

// Normalize converts one row. Settlement-currency rows come back NORMALISED
// with their settlement amount set; all others stay UNPROCESSED for the converter.
func (n *Normalizer) Normalize(sourceID string, row RawRow) (*models.Transaction, error) {
	src, err := n.Source(sourceID)
	if err != nil {
		return nil, err
	}
	return n.normalize(n.strategies[sourceID], src, row)
}

func (n *Normalizer) normalize(s Strategy, src models.BankSource, row RawRow) (*models.Transaction, error) {
	tx, err := s.Normalize(row, src)
	if err != nil {
		return nil, err
	}

	now := n.now()
	tx.BankSourceID = src.ID
	tx.CreatedAt = now
	tx.UpdatedAt = now
	tx.ProcessingStatus = models.StatusUnprocessed
	tx.NormalisedAt = nil

	if tx.IsSettlementCurrency(n.settlement) {
		tx.ApplyConversion(tx.OriginalAmount, nil)
		if err := tx.TransitionTo(models.StatusNormalised, now); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

// RowFailure records a row that could not be normalized.
type RowFailure struct {
	Index int
	Row   RawRow
	Err   error
}

// NormalizeAll converts rows in order. Record-level failures are collected and
// the remaining rows proceed; a configuration error aborts and is returned.
func (n *Normalizer) NormalizeAll(sourceID string, rows []RawRow) ([]models.Transaction, []RowFailure, error) {
	src, err := n.Source(sourceID)
	if err != nil {
		return nil, nil, err
	}
	s := n.strategies[sourceID]

	txs := make([]models.Transaction, 0, len(rows))
	var failures []RowFailure
	for i, row := range rows {
		tx, err := n.normalize(s, src, row)
		if err != nil {
			if txerror.IsConfig(err) {
				return nil, nil, err
			}
			n.logger.Warn("Row failed normalization",
				logging.F(logging.FieldSourceID, sourceID),
				logging.F("row", i),
				logging.F(logging.FieldReason, err.Error()))
			failures = append(failures, RowFailure{Index: i, Row: row, Err: err})
			continue
		}
		txs = append(txs, *tx)
	}

	n.logger.Info("Normalized rows",
		logging.F(logging.FieldSourceID, sourceID),
		logging.F(logging.FieldCount, len(txs)),
		logging.F("failed", len(failures)))
	return txs, failures, nil
}
