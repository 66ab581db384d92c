// Package audit records the exchange-rate snapshots used by each processing run.
package audit

import (
	"context"
	"sync"

	"fjacquet/ledger-sync/internal/models"
)

// SnapshotSink receives the rate snapshots of one run.
type SnapshotSink interface {
	Record(ctx context.Context, snapshots []models.ExchangeRateSnapshot) error
	Close() error
}

// NoopSink discards snapshots.
type NoopSink struct{}

func (NoopSink) Record(context.Context, []models.ExchangeRateSnapshot) error { return nil }
func (NoopSink) Close() error                                                { return nil }

// MemorySink keeps snapshots in memory.
type MemorySink struct {
	mu        sync.Mutex
	snapshots []models.ExchangeRateSnapshot
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Record(_ context.Context, snapshots []models.ExchangeRateSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshots...)
	return nil
}

// Snapshots returns a copy of everything recorded so far.
func (m *MemorySink) Snapshots() []models.ExchangeRateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ExchangeRateSnapshot, len(m.snapshots))
	copy(out, m.snapshots)
	return out
}

// ForRun returns the snapshots recorded under runID.
func (m *MemorySink) ForRun(runID string) []models.ExchangeRateSnapshot {
	var out []models.ExchangeRateSnapshot
	for _, s := range m.Snapshots() {
		if s.ProcessingRunID == runID {
			out = append(out, s)
		}
	}
	return out
}

func (m *MemorySink) Close() error { return nil }
