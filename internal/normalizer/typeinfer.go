package normalizer

import (
	"strings"

	"github.com/shopspring/decimal"

	"fjacquet/ledger-sync/internal/models"
)

// Vocabulary maps normalized type-column values to a direction.
type Vocabulary map[string]models.TransactionType

// DefaultVocabulary holds the spellings shared by most exports.
var DefaultVocabulary = Vocabulary{
	"debit":      models.TransactionTypeDebit,
	"dr":         models.TransactionTypeDebit,
	"dbit":       models.TransactionTypeDebit,
	"out":        models.TransactionTypeDebit,
	"outgoing":   models.TransactionTypeDebit,
	"withdrawal": models.TransactionTypeDebit,
	"credit":     models.TransactionTypeCredit,
	"cr":         models.TransactionTypeCredit,
	"crdt":       models.TransactionTypeCredit,
	"in":         models.TransactionTypeCredit,
	"incoming":   models.TransactionTypeCredit,
	"deposit":    models.TransactionTypeCredit,
}

// Extend returns a copy of v with extra entries added.
func (v Vocabulary) Extend(extra Vocabulary) Vocabulary {
	out := make(Vocabulary, len(v)+len(extra))
	for k, t := range v {
		out[k] = t
	}
	for k, t := range extra {
		out[normalizeToken(k)] = t
	}
	return out
}

// Lookup resolves a raw type value. ok is false for unrecognized values.
func (v Vocabulary) Lookup(raw string) (models.TransactionType, bool) {
	t, ok := v[normalizeToken(raw)]
	return t, ok
}

// InferType reads the direction from the type column value when recognized and
// falls back to the sign of the amount: negative is a debit.
func InferType(raw string, signedAmount decimal.Decimal, vocab Vocabulary) models.TransactionType {
	if raw != "" {
		if t, ok := vocab.Lookup(raw); ok {
			return t
		}
	}
	return TypeFromSign(signedAmount)
}

// TypeFromSign maps a negative amount to DEBIT and anything else to CREDIT.
func TypeFromSign(signedAmount decimal.Decimal) models.TransactionType {
	if signedAmount.IsNegative() {
		return models.TransactionTypeDebit
	}
	return models.TransactionTypeCredit
}

// Signed returns the absolute amount with the sign implied by the direction.
func Signed(amount decimal.Decimal, t models.TransactionType) decimal.Decimal {
	if t == models.TransactionTypeDebit {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}
