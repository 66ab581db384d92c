// Package normalizer turns raw bank export rows into canonical transactions.
// Each bank source has its own Strategy; Normalizer dispatches rows to them by
// source id and applies the settlement-currency shortcut.
package normalizer

import "fjacquet/ledger-sync/internal/models"

// RawRow is one exported row keyed by the source's column labels.
type RawRow map[string]string

// Strategy converts rows of one bank source into canonical transactions. It must
// populate every canonical field or fail with a *txerror.ValidationError naming
// the field.
type Strategy interface {
	SourceID() string
	Normalize(row RawRow, source models.BankSource) (*models.Transaction, error)
}

// SourceLookup resolves a bank source definition by id.
type SourceLookup interface {
	Get(id string) (models.BankSource, error)
}
