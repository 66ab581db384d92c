package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fjacquet/ledger-sync/internal/models"
)

// MemoryStore keeps transactions in memory in insertion order.
type MemoryStore struct {
	mu    sync.RWMutex
	txs   []models.Transaction
	index map[string]int
	now   func() time.Time
}

// NewMemoryStore returns an empty store, optionally seeded with txs.
func NewMemoryStore(txs ...models.Transaction) *MemoryStore {
	s := &MemoryStore{index: make(map[string]int), now: func() time.Time { return time.Now().UTC() }}
	s.load(txs)
	return s
}

// WithClock sets the reference time of the ReadByMerchant window.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) load(txs []models.Transaction) {
	for _, tx := range txs {
		s.index[tx.ID] = len(s.txs)
		s.txs = append(s.txs, tx)
	}
}

// clone returns an independent copy sharing the clock.
func (s *MemoryStore) clone() *MemoryStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := NewMemoryStore(s.snapshot()...)
	c.now = s.now
	return c
}

func (s *MemoryStore) snapshot() []models.Transaction {
	out := make([]models.Transaction, len(s.txs))
	copy(out, s.txs)
	return out
}

func (s *MemoryStore) ReadAll(_ context.Context) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(), nil
}

func (s *MemoryStore) ReadByStatus(_ context.Context, status models.ProcessingStatus) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Transaction
	for _, tx := range s.txs {
		if tx.ProcessingStatus == status {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *MemoryStore) ReadByMerchant(_ context.Context, description string, limit, daysBack int) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterByMerchant(s.txs, description, limit, daysBack, s.now()), nil
}

func (s *MemoryStore) ExistsByOriginalID(_ context.Context, bankSourceID, originalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tx := range s.txs {
		if tx.BankSourceID == bankSourceID && tx.OriginalTransactionID == originalID && tx.ProcessingStatus != models.StatusError {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Append(_ context.Context, txs []models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		if _, ok := s.index[tx.ID]; ok {
			return fmt.Errorf("transaction %s already stored", tx.ID)
		}
	}
	s.load(txs)
	return nil
}

func (s *MemoryStore) update(tx models.Transaction, apply func(dst *models.Transaction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[tx.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, tx.ID)
	}
	apply(&s.txs[i])
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, tx models.Transaction) error {
	return s.update(tx, func(dst *models.Transaction) { copyStatus(dst, tx) })
}

func (s *MemoryStore) UpdateCategory(_ context.Context, tx models.Transaction) error {
	return s.update(tx, func(dst *models.Transaction) {
		copyCategory(dst, tx)
		copyStatus(dst, tx)
	})
}

func (s *MemoryStore) UpdateConversion(_ context.Context, tx models.Transaction) error {
	return s.update(tx, func(dst *models.Transaction) {
		dst.SettlementAmount = tx.SettlementAmount
		dst.ExchangeRate = tx.ExchangeRate
		copyStatus(dst, tx)
	})
}

func (s *MemoryStore) Close() error { return nil }

func copyStatus(dst *models.Transaction, src models.Transaction) {
	dst.ProcessingStatus = src.ProcessingStatus
	dst.ErrorMessage = src.ErrorMessage
	dst.NormalisedAt = src.NormalisedAt
	dst.CategorisedAt = src.CategorisedAt
	dst.UpdatedAt = src.UpdatedAt
}

func copyCategory(dst *models.Transaction, src models.Transaction) {
	dst.CategoryAIID = src.CategoryAIID
	dst.CategoryAIName = src.CategoryAIName
	dst.CategoryConfidenceScore = src.CategoryConfidenceScore
	dst.CategoryManualID = src.CategoryManualID
	dst.CategoryManualName = src.CategoryManualName
}
