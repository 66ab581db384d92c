package audit

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"

	"fjacquet/ledger-sync/internal/config"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/txerror"
)

const (
	DefaultDataset = "ledger"
	DefaultTable   = "exchange_rate_snapshots"
)

// snapshotRow is the streamed BigQuery row. Rate is NUMERIC.
type snapshotRow struct {
	RunID          string    `bigquery:"processing_run_id"`
	TransactionID  string    `bigquery:"transaction_id"`
	BaseCurrency   string    `bigquery:"base_currency"`
	TargetCurrency string    `bigquery:"target_currency"`
	Rate           *big.Rat  `bigquery:"rate"`
	Provider       string    `bigquery:"provider"`
	FetchedAt      time.Time `bigquery:"fetched_at"`
}

type inserter interface {
	Put(ctx context.Context, src interface{}) error
}

// BigQuerySink streams snapshots into a BigQuery table.
type BigQuerySink struct {
	client   *bigquery.Client
	inserter inserter
	logger   logging.Logger
}

// NewBigQuerySink connects to the project and table named in cfg.
func NewBigQuerySink(ctx context.Context, cfg config.AuditConfig, logger logging.Logger) (*BigQuerySink, error) {
	if cfg.ProjectID == "" {
		return nil, &txerror.ConfigError{Key: "audit.project_id", Reason: "required for the bigquery backend"}
	}
	dataset, table := cfg.Dataset, cfg.Table
	if dataset == "" {
		dataset = DefaultDataset
	}
	if table == "" {
		table = DefaultTable
	}

	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	return &BigQuerySink{
		client:   client,
		inserter: client.Dataset(dataset).Table(table).Inserter(),
		logger:   logger,
	}, nil
}

func newRow(s models.ExchangeRateSnapshot) *snapshotRow {
	return &snapshotRow{
		RunID:          s.ProcessingRunID,
		TransactionID:  s.TransactionID,
		BaseCurrency:   s.BaseCurrency,
		TargetCurrency: s.TargetCurrency,
		Rate:           s.Rate.Rat(),
		Provider:       s.Provider,
		FetchedAt:      s.FetchedAt,
	}
}

func (b *BigQuerySink) Record(ctx context.Context, snapshots []models.ExchangeRateSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	rows := make([]*snapshotRow, len(snapshots))
	for i, s := range snapshots {
		rows[i] = newRow(s)
	}
	if err := b.inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("failed to insert rate snapshots: %w", err)
	}
	b.logger.Debug("Recorded rate snapshots",
		logging.F(logging.FieldStore, "bigquery"),
		logging.F(logging.FieldCount, len(rows)))
	return nil
}

func (b *BigQuerySink) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}
