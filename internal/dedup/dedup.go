// Package dedup prevents re-ingestion of transactions already seen in a run or
// persisted by an earlier one.
package dedup

import (
	"fjacquet/ledger-sync/internal/models"
)

// Check is the result of a duplicate lookup.
type Check struct {
	IsDuplicate bool
	Existing    *models.Transaction
}

// Stats counts lookups. The counters are informational only.
type Stats struct {
	Checked    int `json:"checked"`
	Duplicates int `json:"duplicates"`
}

// Detector indexes transactions by (bank source, original id). It is owned by
// one processing run and is not safe for concurrent use.
type Detector struct {
	index map[models.DedupKey]models.Transaction
	stats Stats
}

// New returns an empty detector.
func New() *Detector {
	return &Detector{index: make(map[models.DedupKey]models.Transaction)}
}

// Build indexes existing transactions. ERROR records do not hold their key, so
// a corrected row can be ingested again.
func Build(existing []models.Transaction) *Detector {
	d := &Detector{index: make(map[models.DedupKey]models.Transaction, len(existing))}
	for i := range existing {
		if existing[i].ProcessingStatus == models.StatusError {
			continue
		}
		d.Register(existing[i])
	}
	return d
}

// IsDuplicate reports whether tx's key is already indexed.
func (d *Detector) IsDuplicate(tx models.Transaction) Check {
	d.stats.Checked++
	existing, ok := d.index[tx.Key()]
	if !ok {
		return Check{}
	}
	d.stats.Duplicates++
	return Check{IsDuplicate: true, Existing: &existing}
}

// Register indexes tx. Registering a key twice keeps the first transaction.
func (d *Detector) Register(tx models.Transaction) {
	key := tx.Key()
	if _, ok := d.index[key]; ok {
		return
	}
	d.index[key] = tx
}

// FilterDuplicates returns the transactions of batch not yet indexed, in their
// original order, and registers them. Repeats inside the batch are dropped too.
func (d *Detector) FilterDuplicates(batch []models.Transaction) []models.Transaction {
	fresh := make([]models.Transaction, 0, len(batch))
	for _, tx := range batch {
		if d.IsDuplicate(tx).IsDuplicate {
			continue
		}
		d.Register(tx)
		fresh = append(fresh, tx)
	}
	return fresh
}

// Stats returns the lookup counters.
func (d *Detector) Stats() Stats {
	return d.stats
}

// ResetStats zeroes the counters without touching the index.
func (d *Detector) ResetStats() {
	d.stats = Stats{}
}

// Len returns the number of indexed keys.
func (d *Detector) Len() int {
	return len(d.index)
}
