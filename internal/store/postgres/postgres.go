// Package postgres implements store.TransactionStore on PostgreSQL through a
// pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fjacquet/ledger-sync/internal/dateutils"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/store"
)

const uniqueViolation = "23505"

// Schema creates the transactions table. Non-ERROR rows are unique on
// (bank_source_id, original_transaction_id); ERROR rows may repeat a key so a
// failed import can be retried.
const Schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id                        TEXT PRIMARY KEY,
	original_transaction_id   TEXT NOT NULL,
	bank_source_id            TEXT NOT NULL,
	transaction_date          TIMESTAMPTZ NOT NULL,
	type                      TEXT NOT NULL,
	description               TEXT NOT NULL,
	notes                     TEXT,
	country                   TEXT,
	original_amount           NUMERIC(19,4) NOT NULL,
	original_currency         CHAR(3) NOT NULL,
	settlement_amount         NUMERIC(19,4) NOT NULL DEFAULT 0,
	exchange_rate             NUMERIC(19,10),
	category_ai_id            TEXT,
	category_ai_name          TEXT,
	category_confidence_score DOUBLE PRECISION,
	category_manual_id        TEXT,
	category_manual_name      TEXT,
	processing_status         TEXT NOT NULL,
	error_message             TEXT,
	created_at                TIMESTAMPTZ NOT NULL,
	normalised_at             TIMESTAMPTZ,
	categorised_at            TIMESTAMPTZ,
	updated_at                TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS transactions_source_original_key
	ON transactions (bank_source_id, original_transaction_id)
	WHERE processing_status <> 'ERROR';
CREATE INDEX IF NOT EXISTS transactions_status_idx ON transactions (processing_status);
`

const selectColumns = `id, original_transaction_id, bank_source_id, transaction_date, type,
	description, notes, country, original_amount::text, original_currency,
	settlement_amount::text, exchange_rate::text, category_ai_id, category_ai_name,
	category_confidence_score, category_manual_id, category_manual_name,
	processing_status, error_message, created_at, normalised_at, categorised_at, updated_at`

// DuplicateKeyError reports an insert that collided with a live transaction
// carrying the same source and original id.
type DuplicateKeyError struct {
	Detail string
}

func (e *DuplicateKeyError) Error() string {
	return "duplicate transaction key: " + e.Detail
}

// Store is the PostgreSQL transaction store.
type Store struct {
	pool   *pgxpool.Pool
	logger logging.Logger
	now    func() time.Time
}

// Connect opens a pool on url and checks it with a ping.
func Connect(ctx context.Context, url string, logger logging.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return New(pool, logger), nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool, logger logging.Logger) *Store {
	return &Store{pool: pool, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate applies Schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.logger.Info("Database schema applied", logging.F(logging.FieldStore, "postgres"))
	return nil
}

func (s *Store) ReadAll(ctx context.Context) ([]models.Transaction, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM transactions ORDER BY created_at, id`)
}

func (s *Store) ReadByStatus(ctx context.Context, status models.ProcessingStatus) ([]models.Transaction, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM transactions
		WHERE processing_status = $1 ORDER BY created_at, id`, string(status))
}

func (s *Store) ReadByMerchant(ctx context.Context, description string, limit, daysBack int) ([]models.Transaction, error) {
	patterns := LikePatterns(store.MerchantTokens(description))
	if len(patterns) == 0 {
		return nil, nil
	}

	sql := `SELECT ` + selectColumns + ` FROM transactions
		WHERE processing_status <> 'ERROR'
		  AND (category_manual_id IS NOT NULL OR category_ai_id IS NOT NULL)
		  AND description ILIKE ANY($1::text[])`
	args := []any{patterns}
	if daysBack > 0 {
		cutoff := dateutils.StartOfDay(s.now()).AddDate(0, 0, -daysBack)
		args = append(args, cutoff)
		sql += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	sql += ` ORDER BY transaction_date DESC`
	if limit > 0 {
		args = append(args, limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return s.query(ctx, sql, args...)
}

func (s *Store) ExistsByOriginalID(ctx context.Context, bankSourceID, originalID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM transactions
		WHERE bank_source_id = $1 AND original_transaction_id = $2 AND processing_status <> 'ERROR')`,
		bankSourceID, originalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction key: %w", err)
	}
	return exists, nil
}

// Append inserts txs in one database transaction; either all rows land or none.
func (s *Store) Append(ctx context.Context, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	dbtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = dbtx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for i := range txs {
		batch.Queue(insertSQL, insertArgs(&txs[i])...)
	}
	results := dbtx.SendBatch(ctx, batch)
	for range txs {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return classify(err)
		}
	}
	if err := results.Close(); err != nil {
		return classify(err)
	}
	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.logger.Debug("Appended transactions",
		logging.F(logging.FieldStore, "postgres"),
		logging.F(logging.FieldCount, len(txs)))
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, tx models.Transaction) error {
	return s.exec(ctx, tx.ID, `UPDATE transactions SET
		processing_status = $2, error_message = $3, normalised_at = $4, categorised_at = $5, updated_at = $6
		WHERE id = $1`,
		tx.ID, string(tx.ProcessingStatus), tx.ErrorMessage, tx.NormalisedAt, tx.CategorisedAt, tx.UpdatedAt)
}

func (s *Store) UpdateCategory(ctx context.Context, tx models.Transaction) error {
	return s.exec(ctx, tx.ID, `UPDATE transactions SET
		category_ai_id = $2, category_ai_name = $3, category_confidence_score = $4,
		category_manual_id = $5, category_manual_name = $6,
		processing_status = $7, error_message = $8, categorised_at = $9, updated_at = $10
		WHERE id = $1`,
		tx.ID, tx.CategoryAIID, tx.CategoryAIName, tx.CategoryConfidenceScore,
		tx.CategoryManualID, tx.CategoryManualName,
		string(tx.ProcessingStatus), tx.ErrorMessage, tx.CategorisedAt, tx.UpdatedAt)
}

func (s *Store) UpdateConversion(ctx context.Context, tx models.Transaction) error {
	return s.exec(ctx, tx.ID, `UPDATE transactions SET
		settlement_amount = $2::numeric, exchange_rate = $3::numeric,
		processing_status = $4, error_message = $5, normalised_at = $6, updated_at = $7
		WHERE id = $1`,
		tx.ID, tx.SettlementAmount.String(), rateText(tx.ExchangeRate),
		string(tx.ProcessingStatus), tx.ErrorMessage, tx.NormalisedAt, tx.UpdatedAt)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const insertSQL = `INSERT INTO transactions (
	id, original_transaction_id, bank_source_id, transaction_date, type, description, notes, country,
	original_amount, original_currency, settlement_amount, exchange_rate,
	category_ai_id, category_ai_name, category_confidence_score, category_manual_id, category_manual_name,
	processing_status, error_message, created_at, normalised_at, categorised_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11::numeric, $12::numeric,
	$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`

func insertArgs(tx *models.Transaction) []any {
	return []any{
		tx.ID, tx.OriginalTransactionID, tx.BankSourceID, tx.TransactionDate, string(tx.Type),
		tx.Description, tx.Notes, tx.Country,
		tx.OriginalAmount.String(), tx.OriginalCurrency, tx.SettlementAmount.String(), rateText(tx.ExchangeRate),
		tx.CategoryAIID, tx.CategoryAIName, tx.CategoryConfidenceScore, tx.CategoryManualID, tx.CategoryManualName,
		string(tx.ProcessingStatus), tx.ErrorMessage, tx.CreatedAt, tx.NormalisedAt, tx.CategorisedAt, tx.UpdatedAt,
	}
}

func (s *Store) exec(ctx context.Context, id, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var (
		tx                               models.Transaction
		txType, status                   string
		originalAmount, settlementAmount string
		exchangeRate                     *string
	)
	err := row.Scan(&tx.ID, &tx.OriginalTransactionID, &tx.BankSourceID, &tx.TransactionDate, &txType,
		&tx.Description, &tx.Notes, &tx.Country, &originalAmount, &tx.OriginalCurrency,
		&settlementAmount, &exchangeRate, &tx.CategoryAIID, &tx.CategoryAIName,
		&tx.CategoryConfidenceScore, &tx.CategoryManualID, &tx.CategoryManualName,
		&status, &tx.ErrorMessage, &tx.CreatedAt, &tx.NormalisedAt, &tx.CategorisedAt, &tx.UpdatedAt)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}
	tx.Type = models.TransactionType(txType)
	tx.ProcessingStatus = models.ProcessingStatus(status)
	tx.OriginalCurrency = strings.TrimSpace(tx.OriginalCurrency)

	if tx.OriginalAmount, err = decimal.NewFromString(originalAmount); err != nil {
		return tx, fmt.Errorf("transaction %s: original amount: %w", tx.ID, err)
	}
	if tx.SettlementAmount, err = decimal.NewFromString(settlementAmount); err != nil {
		return tx, fmt.Errorf("transaction %s: settlement amount: %w", tx.ID, err)
	}
	if exchangeRate != nil {
		rate, err := decimal.NewFromString(*exchangeRate)
		if err != nil {
			return tx, fmt.Errorf("transaction %s: exchange rate: %w", tx.ID, err)
		}
		tx.ExchangeRate = &rate
	}
	return tx, nil
}

// LikePatterns turns merchant tokens into ILIKE patterns, escaping the
// wildcard characters a token may contain.
func LikePatterns(tokens []string) []string {
	escaper := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	patterns := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		patterns = append(patterns, "%"+escaper.Replace(tok)+"%")
	}
	return patterns
}

func rateText(rate *decimal.Decimal) *string {
	if rate == nil {
		return nil
	}
	s := rate.String()
	return &s
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &DuplicateKeyError{Detail: pgErr.Detail}
	}
	return fmt.Errorf("database error: %w", err)
}

var _ store.TransactionStore = (*Store)(nil)
