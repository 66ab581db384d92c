package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"fjacquet/ledger-sync/internal/fileutils"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
)

// sheetRow is the on-disk layout of one transaction. Every column is a string
// so that empty cells round-trip as absent values.
type sheetRow struct {
	ID                      string `csv:"id"`
	OriginalTransactionID   string `csv:"original_transaction_id"`
	BankSourceID            string `csv:"bank_source_id"`
	TransactionDate         string `csv:"transaction_date"`
	Type                    string `csv:"type"`
	Description             string `csv:"description"`
	Notes                   string `csv:"notes"`
	Country                 string `csv:"country"`
	OriginalAmount          string `csv:"original_amount"`
	OriginalCurrency        string `csv:"original_currency"`
	SettlementAmount        string `csv:"settlement_amount"`
	ExchangeRate            string `csv:"exchange_rate"`
	CategoryAIID            string `csv:"category_ai_id"`
	CategoryAIName          string `csv:"category_ai_name"`
	CategoryConfidenceScore string `csv:"category_confidence_score"`
	CategoryManualID        string `csv:"category_manual_id"`
	CategoryManualName      string `csv:"category_manual_name"`
	ProcessingStatus        string `csv:"processing_status"`
	ErrorMessage            string `csv:"error_message"`
	CreatedAt               string `csv:"created_at"`
	NormalisedAt            string `csv:"normalised_at"`
	CategorisedAt           string `csv:"categorised_at"`
	UpdatedAt               string `csv:"updated_at"`
}

// SheetStore keeps the ledger in a single CSV file. The whole sheet is held
// in memory and rewritten after every mutation; the in-memory copy only
// changes once the file has been replaced.
type SheetStore struct {
	path   string
	mem    *MemoryStore
	mu     sync.RWMutex
	logger logging.Logger
}

// OpenSheetStore loads path, or starts an empty sheet when it does not exist.
func OpenSheetStore(path string, logger logging.Logger) (*SheetStore, error) {
	txs, err := readSheet(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Opened sheet store",
		logging.F(logging.FieldStore, path),
		logging.F(logging.FieldCount, len(txs)))
	return &SheetStore{path: path, mem: NewMemoryStore(txs...), logger: logger}, nil
}

// WithClock sets the reference time of the ReadByMerchant window.
func (s *SheetStore) WithClock(now func() time.Time) *SheetStore {
	s.current().WithClock(now)
	return s
}

func (s *SheetStore) current() *MemoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mem
}

func (s *SheetStore) ReadAll(ctx context.Context) ([]models.Transaction, error) {
	return s.current().ReadAll(ctx)
}

func (s *SheetStore) ReadByStatus(ctx context.Context, status models.ProcessingStatus) ([]models.Transaction, error) {
	return s.current().ReadByStatus(ctx, status)
}

func (s *SheetStore) ReadByMerchant(ctx context.Context, description string, limit, daysBack int) ([]models.Transaction, error) {
	return s.current().ReadByMerchant(ctx, description, limit, daysBack)
}

func (s *SheetStore) ExistsByOriginalID(ctx context.Context, bankSourceID, originalID string) (bool, error) {
	return s.current().ExistsByOriginalID(ctx, bankSourceID, originalID)
}

func (s *SheetStore) Append(ctx context.Context, txs []models.Transaction) error {
	return s.mutate(ctx, func(m *MemoryStore) error { return m.Append(ctx, txs) })
}

func (s *SheetStore) UpdateStatus(ctx context.Context, tx models.Transaction) error {
	return s.mutate(ctx, func(m *MemoryStore) error { return m.UpdateStatus(ctx, tx) })
}

func (s *SheetStore) UpdateCategory(ctx context.Context, tx models.Transaction) error {
	return s.mutate(ctx, func(m *MemoryStore) error { return m.UpdateCategory(ctx, tx) })
}

func (s *SheetStore) UpdateConversion(ctx context.Context, tx models.Transaction) error {
	return s.mutate(ctx, func(m *MemoryStore) error { return m.UpdateConversion(ctx, tx) })
}

func (s *SheetStore) Close() error { return nil }

// mutate applies a change to a staged copy, writes the staged sheet and only
// then swaps it in. A failed write leaves both the file and memory untouched.
func (s *SheetStore) mutate(ctx context.Context, apply func(m *MemoryStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.mem.clone()
	if err := apply(staged); err != nil {
		return err
	}
	if err := writeSheet(s.path, staged.snapshot()); err != nil {
		s.logger.WithError(err).Error("Failed to write sheet, change discarded",
			logging.F(logging.FieldStore, s.path))
		return err
	}
	s.mem = staged
	return nil
}

func readSheet(path string) ([]models.Transaction, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error opening sheet %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	file, err := os.Open(path) // #nosec G304 -- path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("error opening sheet %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	var rows []sheetRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("error parsing sheet %s: %w", path, err)
	}

	txs := make([]models.Transaction, 0, len(rows))
	for i, row := range rows {
		tx, err := row.toTransaction()
		if err != nil {
			return nil, fmt.Errorf("sheet %s row %d: %w", path, i+2, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// writeSheet replaces the sheet through a temporary file and a rename.
func writeSheet(path string, txs []models.Transaction) error {
	if err := fileutils.EnsureDirectoryExists(filepath.Dir(path)); err != nil {
		return err
	}

	rows := make([]sheetRow, len(txs))
	for i := range txs {
		rows[i] = newSheetRow(txs[i])
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp) // #nosec G304 -- path comes from configuration
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		_ = file.Close()
		return fmt.Errorf("error writing sheet: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("error closing sheet: %w", err)
	}
	return os.Rename(tmp, path)
}

func newSheetRow(tx models.Transaction) sheetRow {
	row := sheetRow{
		ID:                    tx.ID,
		OriginalTransactionID: tx.OriginalTransactionID,
		BankSourceID:          tx.BankSourceID,
		TransactionDate:       formatTime(tx.TransactionDate),
		Type:                  string(tx.Type),
		Description:           tx.Description,
		Notes:                 deref(tx.Notes),
		Country:               deref(tx.Country),
		OriginalAmount:        tx.OriginalAmount.String(),
		OriginalCurrency:      tx.OriginalCurrency,
		SettlementAmount:      tx.SettlementAmount.String(),
		CategoryAIID:          deref(tx.CategoryAIID),
		CategoryAIName:        deref(tx.CategoryAIName),
		CategoryManualID:      deref(tx.CategoryManualID),
		CategoryManualName:    deref(tx.CategoryManualName),
		ProcessingStatus:      string(tx.ProcessingStatus),
		ErrorMessage:          deref(tx.ErrorMessage),
		CreatedAt:             formatTime(tx.CreatedAt),
		UpdatedAt:             formatTime(tx.UpdatedAt),
	}
	if tx.ExchangeRate != nil {
		row.ExchangeRate = tx.ExchangeRate.String()
	}
	if tx.CategoryConfidenceScore != nil {
		row.CategoryConfidenceScore = strconv.FormatFloat(*tx.CategoryConfidenceScore, 'f', 2, 64)
	}
	if tx.NormalisedAt != nil {
		row.NormalisedAt = formatTime(*tx.NormalisedAt)
	}
	if tx.CategorisedAt != nil {
		row.CategorisedAt = formatTime(*tx.CategorisedAt)
	}
	return row
}

func (r sheetRow) toTransaction() (models.Transaction, error) {
	tx := models.Transaction{
		ID:                    r.ID,
		OriginalTransactionID: r.OriginalTransactionID,
		BankSourceID:          r.BankSourceID,
		Type:                  models.TransactionType(r.Type),
		Description:           r.Description,
		Notes:                 models.StringPtr(r.Notes),
		Country:               models.StringPtr(r.Country),
		OriginalCurrency:      r.OriginalCurrency,
		CategoryAIID:          models.StringPtr(r.CategoryAIID),
		CategoryAIName:        models.StringPtr(r.CategoryAIName),
		CategoryManualID:      models.StringPtr(r.CategoryManualID),
		CategoryManualName:    models.StringPtr(r.CategoryManualName),
		ProcessingStatus:      models.ProcessingStatus(r.ProcessingStatus),
		ErrorMessage:          models.StringPtr(r.ErrorMessage),
	}

	var err error
	if tx.TransactionDate, err = parseTime(r.TransactionDate); err != nil {
		return tx, fmt.Errorf("transaction_date: %w", err)
	}
	if tx.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return tx, fmt.Errorf("created_at: %w", err)
	}
	if tx.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return tx, fmt.Errorf("updated_at: %w", err)
	}
	if tx.OriginalAmount, err = decimal.NewFromString(r.OriginalAmount); err != nil {
		return tx, fmt.Errorf("original_amount: %w", err)
	}
	if tx.SettlementAmount, err = parseDecimal(r.SettlementAmount); err != nil {
		return tx, fmt.Errorf("settlement_amount: %w", err)
	}
	if r.ExchangeRate != "" {
		rate, err := decimal.NewFromString(r.ExchangeRate)
		if err != nil {
			return tx, fmt.Errorf("exchange_rate: %w", err)
		}
		tx.ExchangeRate = &rate
	}
	if r.CategoryConfidenceScore != "" {
		score, err := strconv.ParseFloat(r.CategoryConfidenceScore, 64)
		if err != nil {
			return tx, fmt.Errorf("category_confidence_score: %w", err)
		}
		tx.CategoryConfidenceScore = &score
	}
	if tx.NormalisedAt, err = parseOptionalTime(r.NormalisedAt); err != nil {
		return tx, fmt.Errorf("normalised_at: %w", err)
	}
	if tx.CategorisedAt, err = parseOptionalTime(r.CategorisedAt); err != nil {
		return tx, fmt.Errorf("categorised_at: %w", err)
	}
	return tx, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
