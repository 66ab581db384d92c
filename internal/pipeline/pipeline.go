// Package pipeline runs the ingest flow: normalize raw rows, drop duplicates,
// convert into the settlement currency, persist, and record rate snapshots.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fjacquet/ledger-sync/internal/audit"
	"fjacquet/ledger-sync/internal/banksource"
	"fjacquet/ledger-sync/internal/dedup"
	"fjacquet/ledger-sync/internal/exchange"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/normalizer"
	"fjacquet/ledger-sync/internal/redact"
	"fjacquet/ledger-sync/internal/sheet"
	"fjacquet/ledger-sync/internal/store"
)

// Run is the state owned by one processing run.
type Run struct {
	ID        string
	StartedAt time.Time
	Detector  *dedup.Detector
}

// IngestSummary counts what happened to the rows of one ingest run.
type IngestSummary struct {
	RunID      string
	SourceID   string
	Rows       int
	Invalid    int
	Duplicates int
	Converted  int
	Errored    int
	Persisted  int
	Snapshots  int
	Failures   []normalizer.RowFailure
	Duration   time.Duration
}

// RetrySummary counts the outcome of a retry-errors run.
type RetrySummary struct {
	RunID       string
	Errored     int
	Recovered   int
	StillFailed int
	Skipped     int
}

// Ingestor wires the ingest flow together.
type Ingestor struct {
	normalizer *normalizer.Normalizer
	registry   *banksource.Registry
	store      store.TransactionStore
	converter  *exchange.Converter
	sink       audit.SnapshotSink
	logger     logging.Logger
	now        func() time.Time
	newRunID   func() string
}

// Option customizes an Ingestor.
type Option func(*Ingestor)

// WithClock replaces the clock used for run and lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(next func() string) Option {
	return func(i *Ingestor) { i.newRunID = next }
}

// NewIngestor creates an Ingestor. A nil sink discards snapshots.
func NewIngestor(n *normalizer.Normalizer, registry *banksource.Registry, st store.TransactionStore,
	converter *exchange.Converter, sink audit.SnapshotSink, logger logging.Logger, opts ...Option) *Ingestor {
	if sink == nil {
		sink = audit.NoopSink{}
	}
	i := &Ingestor{
		normalizer: n,
		registry:   registry,
		store:      st,
		converter:  converter,
		sink:       sink,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// startRun builds the per-run state: a fresh run id, a cleared rate cache and
// a duplicate index rebuilt from the store.
func (i *Ingestor) startRun(ctx context.Context) (*Run, error) {
	existing, err := i.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing transactions: %w", err)
	}
	run := &Run{ID: i.newRunID(), StartedAt: i.now(), Detector: dedup.Build(existing)}
	i.converter.StartRun(run.ID)
	return run, nil
}

// IngestFile reads path and ingests its rows for sourceID.
func (i *Ingestor) IngestFile(ctx context.Context, sourceID, path string, format sheet.Format) (IngestSummary, error) {
	rows, err := sheet.ReadFile(path, format)
	if err != nil {
		return IngestSummary{SourceID: sourceID}, err
	}
	i.logger.Info("Read input file",
		logging.F(logging.FieldInputFile, path),
		logging.F(logging.FieldSourceID, sourceID),
		logging.F(logging.FieldCount, len(rows)))
	return i.Ingest(ctx, sourceID, rows)
}

// Ingest runs rows of one bank source through the pipeline. Record-level
// failures are persisted as ERROR records and do not stop the run;
// configuration and store errors are returned.
func (i *Ingestor) Ingest(ctx context.Context, sourceID string, rows []normalizer.RawRow) (IngestSummary, error) {
	summary := IngestSummary{SourceID: sourceID, Rows: len(rows)}

	txs, failures, err := i.normalizer.NormalizeAll(sourceID, rows)
	if err != nil {
		return summary, err
	}
	summary.Invalid = len(failures)
	summary.Failures = failures

	run, err := i.startRun(ctx)
	if err != nil {
		return summary, err
	}
	summary.RunID = run.ID
	log := i.logger.WithFields(logging.F(logging.FieldRunID, run.ID), logging.F(logging.FieldSourceID, sourceID))

	fresh := run.Detector.FilterDuplicates(txs)
	summary.Duplicates = len(txs) - len(fresh)

	snapshots := i.convert(ctx, log, fresh, &summary)
	i.checkSettlement(log, fresh, &summary)

	rejected, err := i.rejected(sourceID, failures)
	if err != nil {
		return summary, err
	}
	batch := append(fresh, rejected...)
	if len(batch) > 0 {
		if err := i.store.Append(ctx, batch); err != nil {
			return summary, fmt.Errorf("failed to persist transactions: %w", err)
		}
		summary.Persisted = len(batch)
	}
	// Only valid rows lock the mapping.
	if len(fresh) > 0 {
		if err := i.lockSource(sourceID); err != nil {
			return summary, err
		}
	}

	summary.Snapshots = i.record(ctx, log, snapshots)
	summary.Duration = i.now().Sub(run.StartedAt)

	log.Info("Ingest finished",
		logging.F(logging.FieldCount, summary.Persisted),
		logging.F("duplicates", summary.Duplicates),
		logging.F("invalid", summary.Invalid),
		logging.F("errored", summary.Errored))
	return summary, nil
}

// convert settles the UNPROCESSED transactions of txs in place. Transactions
// whose rate could not be obtained are marked ERROR.
func (i *Ingestor) convert(ctx context.Context, log logging.Logger, txs []models.Transaction, summary *IngestSummary) []models.ExchangeRateSnapshot {
	var pending []models.Transaction
	for _, tx := range txs {
		if tx.ProcessingStatus == models.StatusUnprocessed {
			pending = append(pending, tx)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	conversions := i.converter.ConvertBatchToGBP(ctx, pending)
	now := i.now()

	var snapshots []models.ExchangeRateSnapshot
	for k := range txs {
		tx := &txs[k]
		conv, ok := conversions[tx.ID]
		if !ok {
			continue
		}
		if err := conv.Apply(tx, now); err != nil {
			tx.MarkError(redact.Message(err), now)
			summary.Errored++
			log.Warn("Conversion failed",
				logging.F(logging.FieldTransactionID, tx.ID),
				logging.F(logging.FieldCurrency, tx.OriginalCurrency),
				logging.F(logging.FieldReason, *tx.ErrorMessage))
			continue
		}
		summary.Converted++
		if conv.Snapshot != nil {
			snapshots = append(snapshots, *conv.Snapshot)
		}
	}
	return snapshots
}

// checkSettlement marks ERROR every non-ERROR transaction whose settlement
// fields break the rate-iff-foreign rule.
func (i *Ingestor) checkSettlement(log logging.Logger, txs []models.Transaction, summary *IngestSummary) {
	now := i.now()
	for k := range txs {
		tx := &txs[k]
		if tx.ProcessingStatus == models.StatusError {
			continue
		}
		if err := tx.ValidateSettlement(i.normalizer.Settlement()); err != nil {
			tx.MarkError(redact.Message(err), now)
			summary.Errored++
			log.Warn("Inconsistent settlement",
				logging.F(logging.FieldTransactionID, tx.ID),
				logging.F(logging.FieldReason, *tx.ErrorMessage))
		}
	}
}

// rejected turns rows that failed normalization into ERROR records carrying
// the fields that could still be read. They have no type, which keeps them
// out of RetryErrored: only a corrected re-ingest can replace them.
func (i *Ingestor) rejected(sourceID string, failures []normalizer.RowFailure) ([]models.Transaction, error) {
	if len(failures) == 0 {
		return nil, nil
	}
	src, err := i.normalizer.Source(sourceID)
	if err != nil {
		return nil, err
	}
	now := i.now()
	out := make([]models.Transaction, 0, len(failures))
	for _, f := range failures {
		tx := models.Transaction{
			ID:                    uuid.NewString(),
			OriginalTransactionID: normalizer.Optional(f.Row, src, models.FieldID),
			BankSourceID:          src.ID,
			Description:           normalizer.Optional(f.Row, src, models.FieldDescription),
			Notes:                 models.StringPtr(normalizer.Optional(f.Row, src, models.FieldNotes)),
			CreatedAt:             now,
		}
		tx.MarkError(redact.Message(fmt.Errorf("row %d: %w", f.Index+1, f.Err)), now)
		out = append(out, tx)
	}
	return out, nil
}

func (i *Ingestor) record(ctx context.Context, log logging.Logger, snapshots []models.ExchangeRateSnapshot) int {
	if len(snapshots) == 0 {
		return 0
	}
	if err := i.sink.Record(ctx, snapshots); err != nil {
		log.WithError(err).Warn("Failed to record rate snapshots", logging.F(logging.FieldCount, len(snapshots)))
		return 0
	}
	return len(snapshots)
}

// lockSource marks the source processed so its column mapping can no longer
// change, and saves the registry.
func (i *Ingestor) lockSource(sourceID string) error {
	if i.registry == nil {
		return nil
	}
	if err := i.registry.MarkProcessed(sourceID); err != nil {
		return err
	}
	return i.registry.Save()
}

// RetryErrored re-converts ERROR transactions and moves the ones that succeed
// back to NORMALISED. A transaction whose key is already held by a live
// transaction stays in ERROR.
func (i *Ingestor) RetryErrored(ctx context.Context) (RetrySummary, error) {
	errored, err := i.store.ReadByStatus(ctx, models.StatusError)
	if err != nil {
		return RetrySummary{}, fmt.Errorf("failed to read errored transactions: %w", err)
	}
	run, err := i.startRun(ctx)
	if err != nil {
		return RetrySummary{}, err
	}
	summary := RetrySummary{RunID: run.ID, Errored: len(errored)}
	log := i.logger.WithFields(logging.F(logging.FieldRunID, run.ID))

	var candidates []models.Transaction
	for _, tx := range errored {
		if !retryable(tx) {
			summary.Skipped++
			continue
		}
		exists, err := i.store.ExistsByOriginalID(ctx, tx.BankSourceID, tx.OriginalTransactionID)
		if err != nil {
			return summary, err
		}
		if exists || run.Detector.IsDuplicate(tx).IsDuplicate {
			summary.Skipped++
			log.Info("Errored transaction superseded, left in ERROR",
				logging.F(logging.FieldTransactionID, tx.ID),
				logging.F(logging.FieldOriginalID, tx.OriginalTransactionID))
			continue
		}
		run.Detector.Register(tx)
		candidates = append(candidates, tx)
	}
	if len(candidates) == 0 {
		return summary, nil
	}

	conversions := i.converter.ConvertBatchToGBP(ctx, candidates)
	now := i.now()
	var snapshots []models.ExchangeRateSnapshot
	for k := range candidates {
		tx := &candidates[k]
		conv, ok := conversions[tx.ID]
		if !ok {
			conv.Err = fmt.Errorf("no conversion produced for %s", tx.ID)
		}
		err := conv.Apply(tx, now)
		if err == nil {
			err = tx.ValidateSettlement(i.normalizer.Settlement())
		}
		if err != nil {
			tx.MarkError(redact.Message(err), now)
			summary.StillFailed++
			if err := i.store.UpdateStatus(ctx, *tx); err != nil {
				return summary, fmt.Errorf("failed to update %s: %w", tx.ID, err)
			}
			continue
		}
		if err := i.store.UpdateConversion(ctx, *tx); err != nil {
			return summary, fmt.Errorf("failed to update %s: %w", tx.ID, err)
		}
		summary.Recovered++
		if conv.Snapshot != nil {
			snapshots = append(snapshots, *conv.Snapshot)
		}
	}
	i.record(ctx, log, snapshots)

	log.Info("Retry finished",
		logging.F("recovered", summary.Recovered),
		logging.F("still_failed", summary.StillFailed),
		logging.F("skipped", summary.Skipped))
	return summary, nil
}

// retryable reports whether tx carries the canonical data a conversion needs.
func retryable(tx models.Transaction) bool {
	return tx.ID != "" && tx.BankSourceID != "" && tx.OriginalTransactionID != "" && tx.Type != "" &&
		!tx.TransactionDate.IsZero() && len(tx.OriginalCurrency) == 3 && tx.Description != ""
}
