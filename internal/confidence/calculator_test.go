package confidence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/txerror"
)

func match(category string, score float64, manual bool) models.SimilarityMatch {
	weighted := score
	if manual {
		weighted = score * 2
	}
	return models.SimilarityMatch{
		CategoryID:        category,
		CategoryName:      category,
		Score:             score,
		WeightedScore:     weighted,
		WasManualOverride: manual,
		MatchType:         models.MatchTypeExact,
	}
}

func newCalc(t *testing.T) *Calculator {
	t.Helper()
	c, err := New(DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestNew_ValidatesBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"weights do not sum to one", func(c *Config) { c.AIWeight = 0.7 }, "confidence.ai_weight"},
		{"negative weight", func(c *Config) { c.AIWeight = -0.1; c.HistoricalWeight = 1.1 }, "confidence.ai_weight"},
		{"bonus too large", func(c *Config) { c.ConsensusBonus = 25 }, "confidence.consensus_bonus"},
		{"positive penalty", func(c *Config) { c.ConflictPenalty = 1 }, "confidence.conflict_penalty"},
		{"penalty too small", func(c *Config) { c.ConflictPenalty = -21 }, "confidence.conflict_penalty"},
		{"override boost too large", func(c *Config) { c.OverrideBoost = 11 }, "confidence.override_boost"},
		{"zero min matches", func(c *Config) { c.MinMatches = 0 }, "confidence.min_matches"},
		{"discount of one", func(c *Config) { c.SingleMatchDiscount = 1 }, "confidence.single_match_discount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			var cerr *txerror.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.key, cerr.Key)
		})
	}

	cfg := DefaultConfig()
	cfg.AIWeight, cfg.HistoricalWeight = 1, 0
	_, err := New(cfg)
	assert.NoError(t, err)
}

func TestCalculate_RejectsOutOfRangeAIConfidence(t *testing.T) {
	c := newCalc(t)
	for _, v := range []float64{-0.01, 100.01, math.NaN(), math.Inf(1)} {
		_, err := c.Calculate(Input{AIConfidence: v, AICategoryID: "groceries"})
		assert.True(t, txerror.IsValidation(err), "value %v", v)
	}
}

func TestCalculate_NoHistory(t *testing.T) {
	b, err := newCalc(t).Calculate(Input{AIConfidence: 80, AICategoryID: "groceries"})
	require.NoError(t, err)
	assert.Equal(t, 48.0, b.FinalScore)
	assert.Equal(t, 0.0, b.HistoricalScore)
	assert.Equal(t, 0, b.HistoricalMatchCount)
	assert.Empty(t, b.ConsensusCategoryID)
}

func TestCalculate_ConsensusAgreement(t *testing.T) {
	b, err := newCalc(t).Calculate(Input{
		AIConfidence:      80,
		AICategoryID:      "groceries",
		HistoricalMatches: []models.SimilarityMatch{match("groceries", 1, false), match("groceries", 1, false)},
	})
	require.NoError(t, err)
	assert.InDelta(t, 48, b.AIScore, 1e-9)
	assert.InDelta(t, 20, b.HistoricalScore, 1e-9)
	assert.Equal(t, 10.0, b.ConsensusBoost)
	assert.Equal(t, 0.0, b.ConflictPenalty)
	assert.Equal(t, 78.0, b.FinalScore)
	assert.Equal(t, "groceries", b.ConsensusCategoryID)
}

func TestCalculate_ConsensusConflict(t *testing.T) {
	b, err := newCalc(t).Calculate(Input{
		AIConfidence:      80,
		AICategoryID:      "shopping",
		HistoricalMatches: []models.SimilarityMatch{match("groceries", 1, false), match("groceries", 1, false)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, b.ConsensusBoost)
	assert.Equal(t, -15.0, b.ConflictPenalty)
	assert.Equal(t, 53.0, b.FinalScore)
}

func TestCalculate_ManualOverridesAmplify(t *testing.T) {
	c := newCalc(t)
	manual := []models.SimilarityMatch{match("groceries", 1, true), match("groceries", 1, true)}

	agree, err := c.Calculate(Input{AIConfidence: 80, AICategoryID: "groceries", HistoricalMatches: manual})
	require.NoError(t, err)
	assert.Equal(t, 15.0, agree.ConsensusBoost)
	assert.Equal(t, 100.0, agree.FinalScore, "clamped")
	assert.Equal(t, 2, agree.ManualOverrideCount)

	conflict, err := c.Calculate(Input{AIConfidence: 80, AICategoryID: "shopping", HistoricalMatches: manual})
	require.NoError(t, err)
	assert.Equal(t, -20.0, conflict.ConflictPenalty)
	assert.Equal(t, 68.0, conflict.FinalScore)
}

func TestCalculate_ManualWeighsAtLeastAsMuchAsAI(t *testing.T) {
	c := newCalc(t)
	for _, score := range []float64{0.3, 0.48, 0.8, 1} {
		ai, err := c.Calculate(Input{AIConfidence: 50, AICategoryID: "x",
			HistoricalMatches: []models.SimilarityMatch{match("x", score, false), match("x", score, false)}})
		require.NoError(t, err)
		manual, err := c.Calculate(Input{AIConfidence: 50, AICategoryID: "x",
			HistoricalMatches: []models.SimilarityMatch{match("x", score, true), match("x", score, true)}})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, manual.HistoricalScore, ai.HistoricalScore)
	}
}

func TestCalculate_SingleMatchIsDiscounted(t *testing.T) {
	b, err := newCalc(t).Calculate(Input{
		AIConfidence:      80,
		AICategoryID:      "groceries",
		HistoricalMatches: []models.SimilarityMatch{match("groceries", 1, false)},
	})
	require.NoError(t, err)
	assert.InDelta(t, 14, b.HistoricalScore, 1e-9)
	assert.Equal(t, 0.0, b.ConsensusBoost, "below the minimum match count")
	assert.Equal(t, 62.0, b.FinalScore)
}

func TestCalculate_TiedConsensusIsNotComputable(t *testing.T) {
	b, err := newCalc(t).Calculate(Input{
		AIConfidence:      60,
		AICategoryID:      "groceries",
		HistoricalMatches: []models.SimilarityMatch{match("groceries", 1, false), match("shopping", 1, false)},
	})
	require.NoError(t, err)
	assert.Empty(t, b.ConsensusCategoryID)
	assert.Equal(t, 0.0, b.ConsensusBoost)
	assert.Equal(t, 0.0, b.ConflictPenalty)
}

func TestCalculate_SuggestionOverridesDerivedConsensus(t *testing.T) {
	suggestion := "shopping"
	b, err := newCalc(t).Calculate(Input{
		AIConfidence:         60,
		AICategoryID:         "shopping",
		HistoricalMatches:    []models.SimilarityMatch{match("groceries", 1, false), match("groceries", 0.8, false)},
		HistoricalSuggestion: &suggestion,
	})
	require.NoError(t, err)
	assert.Equal(t, "shopping", b.ConsensusCategoryID)
	assert.Equal(t, 10.0, b.ConsensusBoost)
}

func TestCalculate_FinalScoreBounds(t *testing.T) {
	c := newCalc(t)
	categories := []string{"a", "b"}
	for ai := 0.0; ai <= 100; ai += 12.5 {
		for _, aiCat := range categories {
			for _, manual := range []bool{false, true} {
				for n := 0; n <= 4; n++ {
					var matches []models.SimilarityMatch
					for i := 0; i < n; i++ {
						matches = append(matches, match(categories[i%len(categories)], 1-float64(i)*0.2, manual))
					}
					b, err := c.Calculate(Input{AIConfidence: ai, AICategoryID: aiCat, HistoricalMatches: matches})
					require.NoError(t, err)
					assert.GreaterOrEqual(t, b.FinalScore, 0.0)
					assert.LessOrEqual(t, b.FinalScore, 100.0)
				}
			}
		}
	}
}

func TestCalculate_RoundsToTwoDecimals(t *testing.T) {
	b, err := newCalc(t).Calculate(Input{AIConfidence: 33.333, AICategoryID: "x"})
	require.NoError(t, err)
	assert.Equal(t, 20.0, b.FinalScore)
}
