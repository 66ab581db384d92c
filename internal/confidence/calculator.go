// Package confidence blends the classifier's confidence with historical
// evidence into the final category confidence.
package confidence

import (
	"fmt"
	"math"
	"sort"

	"fjacquet/ledger-sync/internal/config"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/txerror"
)

// Match weights for the historical score: a human correction counts twice an
// AI-only categorization of the same similarity.
const (
	ManualMatchWeight = 1.0
	AIMatchWeight     = 0.5
)

// Config holds the tunables. Construction validates every bound.
type Config struct {
	AIWeight            float64
	HistoricalWeight    float64
	MinMatches          int
	ConsensusBonus      float64
	ConflictPenalty     float64
	OverrideBoost       float64
	SingleMatchDiscount float64
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		AIWeight:            0.6,
		HistoricalWeight:    0.4,
		MinMatches:          2,
		ConsensusBonus:      10,
		ConflictPenalty:     -15,
		OverrideBoost:       5,
		SingleMatchDiscount: 0.7,
	}
}

// FromConfig maps the confidence section of the application configuration.
func FromConfig(c config.ConfidenceConfig) Config {
	return Config{
		AIWeight:            c.AIWeight,
		HistoricalWeight:    c.HistoricalWeight,
		MinMatches:          c.MinMatches,
		ConsensusBonus:      c.ConsensusBonus,
		ConflictPenalty:     c.ConflictPenalty,
		OverrideBoost:       c.OverrideBoost,
		SingleMatchDiscount: c.SingleMatchDiscount,
	}
}

// Validate checks the documented bounds.
func (c Config) Validate() error {
	invalid := func(key, format string, args ...interface{}) error {
		return &txerror.ConfigError{Key: "confidence." + key, Reason: fmt.Sprintf(format, args...)}
	}
	if c.AIWeight < 0 || c.AIWeight > 1 {
		return invalid("ai_weight", "must be between 0.0 and 1.0, got %v", c.AIWeight)
	}
	if c.HistoricalWeight < 0 || c.HistoricalWeight > 1 {
		return invalid("historical_weight", "must be between 0.0 and 1.0, got %v", c.HistoricalWeight)
	}
	if math.Abs(c.AIWeight+c.HistoricalWeight-1) > 1e-9 {
		return invalid("ai_weight", "weights must sum to 1.0, got %v", c.AIWeight+c.HistoricalWeight)
	}
	if c.ConsensusBonus < 0 || c.ConsensusBonus > 20 {
		return invalid("consensus_bonus", "must be between 0 and 20, got %v", c.ConsensusBonus)
	}
	if c.ConflictPenalty < -20 || c.ConflictPenalty > 0 {
		return invalid("conflict_penalty", "must be between -20 and 0, got %v", c.ConflictPenalty)
	}
	if c.OverrideBoost < 0 || c.OverrideBoost > 10 {
		return invalid("override_boost", "must be between 0 and 10, got %v", c.OverrideBoost)
	}
	if c.MinMatches < 1 {
		return invalid("min_matches", "must be at least 1, got %d", c.MinMatches)
	}
	if c.SingleMatchDiscount <= 0 || c.SingleMatchDiscount >= 1 {
		return invalid("single_match_discount", "must be in (0, 1), got %v", c.SingleMatchDiscount)
	}
	return nil
}

// Input is one categorization to score.
type Input struct {
	AIConfidence      float64
	AICategoryID      string
	HistoricalMatches []models.SimilarityMatch
	// HistoricalSuggestion overrides the consensus derived from the matches.
	HistoricalSuggestion *string
}

// Breakdown is the audit trail of a calculation.
type Breakdown struct {
	FinalScore           float64 `json:"final_score"`
	AIScore              float64 `json:"ai_score"`
	HistoricalScore      float64 `json:"historical_score"`
	ConsensusBoost       float64 `json:"consensus_boost"`
	ConflictPenalty      float64 `json:"conflict_penalty"`
	HistoricalMatchCount int     `json:"historical_match_count"`
	ManualOverrideCount  int     `json:"manual_override_count"`
	ConsensusCategoryID  string  `json:"consensus_category_id,omitempty"`
}

// Calculator computes confidence breakdowns. It holds no mutable state.
type Calculator struct {
	cfg Config
}

// New validates cfg and returns a Calculator.
func New(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg}, nil
}

// Calculate scores in. An AI confidence outside [0,100] is rejected before
// any blending.
func (c *Calculator) Calculate(in Input) (Breakdown, error) {
	if math.IsNaN(in.AIConfidence) || in.AIConfidence < 0 || in.AIConfidence > 100 {
		return Breakdown{}, &txerror.ValidationError{
			Source: "confidence",
			Field:  "ai_confidence",
			Value:  fmt.Sprintf("%v", in.AIConfidence),
			Reason: "must be between 0 and 100",
		}
	}

	b := Breakdown{
		AIScore:              in.AIConfidence * c.cfg.AIWeight,
		HistoricalScore:      c.historicalScore(in.HistoricalMatches),
		HistoricalMatchCount: len(in.HistoricalMatches),
	}
	for _, m := range in.HistoricalMatches {
		if m.WasManualOverride {
			b.ManualOverrideCount++
		}
	}

	if consensus, ok := c.consensus(in); ok && in.AICategoryID != "" {
		b.ConsensusCategoryID = consensus
		manual := backedByManual(in.HistoricalMatches, consensus)
		if consensus == in.AICategoryID {
			b.ConsensusBoost = c.cfg.ConsensusBonus
			if manual {
				b.ConsensusBoost += c.cfg.OverrideBoost
			}
		} else {
			b.ConflictPenalty = c.cfg.ConflictPenalty
			if manual {
				b.ConflictPenalty -= c.cfg.OverrideBoost
			}
		}
	}

	total := b.AIScore + b.HistoricalScore + b.ConsensusBoost + b.ConflictPenalty
	b.FinalScore = round2(math.Max(0, math.Min(100, total)))
	return b, nil
}

// historicalScore averages Score x match weight over the matches, scaled to
// 0-100, discounted when a single match stands alone.
func (c *Calculator) historicalScore(matches []models.SimilarityMatch) float64 {
	if len(matches) == 0 {
		return 0
	}
	var sum float64
	for _, m := range matches {
		w := AIMatchWeight
		if m.WasManualOverride {
			w = ManualMatchWeight
		}
		sum += clamp01(m.Score) * w
	}
	score := sum / float64(len(matches)) * 100
	if len(matches) == 1 {
		score *= c.cfg.SingleMatchDiscount
	}
	return score * c.cfg.HistoricalWeight
}

// consensus returns the historical category when enough matches exist: the
// caller's suggestion, or else the category with the strictly highest summed
// weighted score.
func (c *Calculator) consensus(in Input) (string, bool) {
	if len(in.HistoricalMatches) < c.cfg.MinMatches {
		return "", false
	}
	if in.HistoricalSuggestion != nil && *in.HistoricalSuggestion != "" {
		return *in.HistoricalSuggestion, true
	}

	totals := make(map[string]float64)
	for _, m := range in.HistoricalMatches {
		if m.CategoryID != "" {
			totals[m.CategoryID] += m.WeightedScore
		}
	}
	ids := make([]string, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return totals[ids[i]] > totals[ids[j]] })

	switch {
	case len(ids) == 0:
		return "", false
	case len(ids) > 1 && totals[ids[0]] == totals[ids[1]]:
		return "", false
	}
	return ids[0], true
}

func backedByManual(matches []models.SimilarityMatch, categoryID string) bool {
	for _, m := range matches {
		if m.WasManualOverride && m.CategoryID == categoryID {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
