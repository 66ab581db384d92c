// Package store persists canonical transactions and loads the category list.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"fjacquet/ledger-sync/internal/dateutils"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/normalizer"
)

// ErrNotFound is returned when an update targets an unknown transaction id.
var ErrNotFound = errors.New("transaction not found")

// TransactionStore is the persistence port of the pipeline. Update methods
// match on Transaction.ID and write only the fields they name.
type TransactionStore interface {
	ReadAll(ctx context.Context) ([]models.Transaction, error)
	ReadByStatus(ctx context.Context, status models.ProcessingStatus) ([]models.Transaction, error)
	// ReadByMerchant returns categorized, non-ERROR transactions of the last
	// daysBack days whose description shares a merchant token with description,
	// newest first, at most limit of them.
	ReadByMerchant(ctx context.Context, description string, limit, daysBack int) ([]models.Transaction, error)
	ExistsByOriginalID(ctx context.Context, bankSourceID, originalID string) (bool, error)
	Append(ctx context.Context, txs []models.Transaction) error
	// UpdateStatus writes the status, error message and lifecycle timestamps.
	UpdateStatus(ctx context.Context, tx models.Transaction) error
	// UpdateCategory writes the AI and manual category fields and the status.
	UpdateCategory(ctx context.Context, tx models.Transaction) error
	// UpdateConversion writes the settlement amount, rate and status.
	UpdateConversion(ctx context.Context, tx models.Transaction) error
	Close() error
}

const minTokenLength = 3

// MerchantTokens splits a description into the normalized tokens used by
// ReadByMerchant. Tokens shorter than three characters are dropped.
func MerchantTokens(description string) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(normalizer.NormalizeDescription(description)) {
		if utf8.RuneCountInString(tok) < minTokenLength || seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	return tokens
}

// MatchesMerchant reports whether description contains any of tokens.
func MatchesMerchant(description string, tokens []string) bool {
	normalized := normalizer.NormalizeDescription(description)
	for _, tok := range tokens {
		if strings.Contains(normalized, tok) {
			return true
		}
	}
	return false
}

// FilterByMerchant applies the ReadByMerchant rules to an in-memory slice.
func FilterByMerchant(all []models.Transaction, description string, limit, daysBack int, now time.Time) []models.Transaction {
	tokens := MerchantTokens(description)
	if len(tokens) == 0 {
		return nil
	}
	var out []models.Transaction
	for _, tx := range all {
		if tx.ProcessingStatus == models.StatusError || !tx.IsCategorized() {
			continue
		}
		if daysBack > 0 && dateutils.DaysBetween(tx.TransactionDate, now) > daysBack {
			continue
		}
		if MatchesMerchant(tx.Description, tokens) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TransactionDate.After(out[j].TransactionDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
