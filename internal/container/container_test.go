package container

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fjacquet/ledger-sync/internal/audit"
	"fjacquet/ledger-sync/internal/categorizer"
	"fjacquet/ledger-sync/internal/config"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/store"
	"fjacquet/ledger-sync/internal/txerror"
)

type stubAI struct{}

func (stubAI) CategorizeBatch(context.Context, []models.Transaction, []models.Category,
	map[string][]models.SimilarityMatch) ([]categorizer.AIResult, error) {
	return nil, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Log:        config.LogConfig{Level: "info", Format: "text"},
		Settlement: config.SettlementConfig{Currency: "GBP"},
		Sources:    config.SourcesConfig{File: filepath.Join(dir, "sources.yaml")},
		Categories: config.CategoriesConfig{File: filepath.Join(dir, "categories.yaml")},
		Store:      config.StoreConfig{Backend: BackendMemory},
		AI:         config.AIConfig{BatchSize: 25},
		Rates:      config.RatesConfig{Provider: "frankfurter", BaseURL: "http://127.0.0.1:0", TimeoutSeconds: 1},
		Retry:      config.RetryConfig{MaxAttempts: 1, InitialIntervalMs: 1, MaxIntervalMs: 1, Multiplier: 1},
		Confidence: config.ConfidenceConfig{
			AIWeight:            0.6,
			HistoricalWeight:    0.4,
			MinMatches:          2,
			ConsensusBonus:      10,
			ConflictPenalty:     -15,
			OverrideBoost:       5,
			SingleMatchDiscount: 0.7,
		},
		History: config.HistoryConfig{Limit: 10, RecencyDays: 365, FuzzyThreshold: 0.75},
		Audit:   config.AuditConfig{Backend: AuditNone},
	}
}

func TestNewContainer_NilConfig(t *testing.T) {
	_, err := NewContainer(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration cannot be nil")
}

func TestNewContainer_MemoryBackend(t *testing.T) {
	logger := logging.NewMockLogger()
	c, err := NewContainer(context.Background(), testConfig(t), WithLogger(logger))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.IsType(t, &store.MemoryStore{}, c.GetStore())
	assert.IsType(t, audit.NoopSink{}, c.GetSink())
	assert.Nil(t, c.GetAIClient())
	assert.NotNil(t, c.GetCategorizer())
	assert.NotNil(t, c.GetIngestor())
	assert.NotNil(t, c.GetCategoryStore())
	assert.Same(t, logger, c.GetLogger())
	assert.ElementsMatch(t, []string{"monzo", "revolut", "yonder", "camt053"}, c.GetRegistry().IDs())
	assert.ElementsMatch(t, c.GetRegistry().IDs(), c.GetNormalizer().RegisteredSources())
	assert.True(t, logger.HasEntry("INFO", "AI categorization disabled"))
}

func TestNewContainer_SheetBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store = config.StoreConfig{Backend: BackendSheet, SheetPath: filepath.Join(t.TempDir(), "ledger.csv")}

	c, err := NewContainer(context.Background(), cfg, WithLogger(logging.NewMockLogger()))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.IsType(t, &store.SheetStore{}, c.GetStore())
	assert.NoError(t, c.Migrate(context.Background()))
}

func TestNewContainer_InjectedDependencies(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Backend = AuditMemory
	st := store.NewMemoryStore()

	c, err := NewContainer(context.Background(), cfg,
		WithLogger(logging.NewMockLogger()), WithAIClient(stubAI{}), WithStore(st))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.Same(t, st, c.GetStore())
	assert.Equal(t, stubAI{}, c.GetAIClient())
	assert.IsType(t, &audit.MemorySink{}, c.GetSink())
}

func TestNewContainer_ConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"unknown store backend", func(c *config.Config) { c.Store.Backend = "redis" }},
		{"unknown audit backend", func(c *config.Config) { c.Audit.Backend = "kafka" }},
		{"bigquery without project", func(c *config.Config) { c.Audit.Backend = AuditBigQuery }},
		{"ai enabled without key", func(c *config.Config) { c.AI.Enabled = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := NewContainer(context.Background(), cfg, WithLogger(logging.NewMockLogger()))
			require.Error(t, err)
			assert.True(t, txerror.IsConfig(err), "got %v", err)
		})
	}
}

func TestNewContainer_InvalidConfidence(t *testing.T) {
	cfg := testConfig(t)
	cfg.Confidence.AIWeight = 0.9

	_, err := NewContainer(context.Background(), cfg, WithLogger(logging.NewMockLogger()))
	assert.Error(t, err)
}

func TestStrategiesMatchDefaultSources(t *testing.T) {
	sources := DefaultSources()
	strategies := Strategies()
	require.Len(t, strategies, len(sources))
	for i := range sources {
		assert.Equal(t, sources[i].ID, strategies[i].SourceID())
	}
}
