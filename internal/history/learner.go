// Package history finds past categorized transactions that resemble a new one.
// The matches are evidence for the confidence calculator.
package history

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"fjacquet/ledger-sync/internal/dateutils"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/normalizer"
)

// Base scores per tier.
const (
	ExactScore       = 1.0
	SubstringScore   = 0.8
	FuzzyFactor      = 0.6
	AmountRangeScore = 0.3

	// ManualOverrideMultiplier scales the weighted score of human corrections.
	ManualOverrideMultiplier = 2.0

	DefaultFuzzyThreshold = 0.75
	minSubstringLength    = 3
)

// DefaultAmountTolerance is the relative distance accepted by the amount tier.
var DefaultAmountTolerance = decimal.RequireFromString("0.10")

// Learner scores corpus transactions against a target transaction.
type Learner struct {
	fuzzyThreshold  float64
	amountTolerance decimal.Decimal
	ignored         map[string]bool
	now             func() time.Time
}

// Option customizes a Learner.
type Option func(*Learner)

// WithClock sets the reference time of the recency window.
func WithClock(now func() time.Time) Option {
	return func(l *Learner) { l.now = now }
}

// WithAmountTolerance changes the relative tolerance of the amount tier.
func WithAmountTolerance(tolerance decimal.Decimal) Option {
	return func(l *Learner) { l.amountTolerance = tolerance }
}

// WithIgnoredCategories drops candidates whose effective category is one of
// ids, such as the bucket used when the classifier had no answer.
func WithIgnoredCategories(ids ...string) Option {
	return func(l *Learner) {
		for _, id := range ids {
			if id != "" {
				l.ignored[id] = true
			}
		}
	}
}

// New creates a Learner. Fuzzy matches need a Levenshtein similarity of at
// least fuzzyThreshold; a threshold outside (0,1] uses DefaultFuzzyThreshold.
func New(fuzzyThreshold float64, opts ...Option) *Learner {
	if fuzzyThreshold <= 0 || fuzzyThreshold > 1 {
		fuzzyThreshold = DefaultFuzzyThreshold
	}
	l := &Learner{
		fuzzyThreshold:  fuzzyThreshold,
		amountTolerance: DefaultAmountTolerance,
		ignored:         make(map[string]bool),
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FindSimilar returns at most limit matches for tx, best first. Candidates
// older than recencyWindowDays, uncategorized, in an ignored category, in
// ERROR, or tx itself are skipped. A non-positive limit or window disables that bound.
func (l *Learner) FindSimilar(tx models.Transaction, corpus []models.Transaction, limit, recencyWindowDays int) []models.SimilarityMatch {
	target := normalizer.NormalizeDescription(tx.Description)
	now := l.now()

	var matches []models.SimilarityMatch
	for i := range corpus {
		c := &corpus[i]
		if c.ID == tx.ID || c.ProcessingStatus == models.StatusError {
			continue
		}
		categoryID, categoryName, ok := c.EffectiveCategory()
		if !ok || l.ignored[categoryID] {
			continue
		}
		if recencyWindowDays > 0 && dateutils.DaysBetween(c.TransactionDate, now) > recencyWindowDays {
			continue
		}

		score, matchType, ok := l.score(tx, target, c)
		if !ok {
			continue
		}
		m := models.SimilarityMatch{
			TransactionID:     c.ID,
			Description:       c.Description,
			CategoryID:        categoryID,
			CategoryName:      categoryName,
			WasManualOverride: c.HasManualOverride(),
			ConfidenceScore:   c.CategoryConfidenceScore,
			Amount:            c.OriginalAmount,
			Type:              c.Type,
			Date:              c.TransactionDate,
			Score:             score,
			WeightedScore:     score,
			MatchType:         matchType,
		}
		if m.WasManualOverride {
			m.WeightedScore = score * ManualOverrideMultiplier
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.TransactionID < b.TransactionID
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// score returns the best tier c reaches against the target.
func (l *Learner) score(tx models.Transaction, target string, c *models.Transaction) (float64, models.MatchType, bool) {
	candidate := normalizer.NormalizeDescription(c.Description)
	if target != "" && candidate != "" {
		if target == candidate {
			return ExactScore, models.MatchTypeExact, true
		}
		if containsEither(target, candidate) {
			return SubstringScore, models.MatchTypeFuzzy, true
		}
		if sim := Similarity(target, candidate); sim >= l.fuzzyThreshold {
			return FuzzyFactor * sim, models.MatchTypeFuzzy, true
		}
	}
	if l.amountClose(tx, c) {
		return AmountRangeScore, models.MatchTypeAmountRange, true
	}
	return 0, "", false
}

func containsEither(a, b string) bool {
	short, long := a, b
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	return utf8.RuneCountInString(short) >= minSubstringLength && strings.Contains(long, short)
}

// amountClose requires the same direction and currency and an amount within
// the tolerance of the target amount.
func (l *Learner) amountClose(tx models.Transaction, c *models.Transaction) bool {
	if tx.Type != c.Type || !strings.EqualFold(tx.OriginalCurrency, c.OriginalCurrency) || tx.OriginalAmount.IsZero() {
		return false
	}
	diff := tx.OriginalAmount.Sub(c.OriginalAmount).Abs()
	return diff.LessThanOrEqual(tx.OriginalAmount.Abs().Mul(l.amountTolerance))
}

// Similarity is 1 minus the Levenshtein distance over the longer length, in [0,1].
func Similarity(a, b string) float64 {
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
