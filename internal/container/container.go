// Package container provides dependency injection for the ledger-sync application.
// It centralizes the creation and wiring of all application dependencies,
// making them explicit and testable.
package container

import (
	"context"
	"errors"
	"fmt"

	"fjacquet/ledger-sync/internal/audit"
	"fjacquet/ledger-sync/internal/banksource"
	"fjacquet/ledger-sync/internal/camtnormalizer"
	"fjacquet/ledger-sync/internal/categorizer"
	"fjacquet/ledger-sync/internal/config"
	"fjacquet/ledger-sync/internal/confidence"
	"fjacquet/ledger-sync/internal/exchange"
	"fjacquet/ledger-sync/internal/history"
	"fjacquet/ledger-sync/internal/logging"
	"fjacquet/ledger-sync/internal/models"
	"fjacquet/ledger-sync/internal/monzonormalizer"
	"fjacquet/ledger-sync/internal/normalizer"
	"fjacquet/ledger-sync/internal/pipeline"
	"fjacquet/ledger-sync/internal/retry"
	"fjacquet/ledger-sync/internal/revolutnormalizer"
	"fjacquet/ledger-sync/internal/store"
	"fjacquet/ledger-sync/internal/store/postgres"
	"fjacquet/ledger-sync/internal/txerror"
	"fjacquet/ledger-sync/internal/yondernormalizer"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSheet    = "sheet"
	BackendPostgres = "postgres"
)

// Audit backends.
const (
	AuditNone     = "none"
	AuditMemory   = "memory"
	AuditBigQuery = "bigquery"
)

// Strategies returns the built-in normalization strategies.
func Strategies() []normalizer.Strategy {
	return []normalizer.Strategy{
		monzonormalizer.New(),
		revolutnormalizer.New(),
		yondernormalizer.New(),
		camtnormalizer.New(),
	}
}

// DefaultSources returns the registry entries of the built-in strategies.
func DefaultSources() []models.BankSource {
	return []models.BankSource{
		monzonormalizer.DefaultSource(),
		revolutnormalizer.DefaultSource(),
		yondernormalizer.DefaultSource(),
		camtnormalizer.DefaultSource(),
	}
}

// Option customizes how the container builds its dependencies.
type Option func(*options)

type options struct {
	logger   logging.Logger
	provider exchange.RateProvider
	ai       categorizer.AIClient
	store    store.TransactionStore
}

// WithLogger replaces the logger built from the log configuration.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRateProvider replaces the HTTP rate provider.
func WithRateProvider(p exchange.RateProvider) Option {
	return func(o *options) { o.provider = p }
}

// WithAIClient replaces the Gemini client, regardless of ai.enabled.
func WithAIClient(ai categorizer.AIClient) Option {
	return func(o *options) { o.ai = ai }
}

// WithStore replaces the configured transaction store.
func WithStore(s store.TransactionStore) Option {
	return func(o *options) { o.store = s }
}

// Container holds all application dependencies and provides methods to access them.
// It is immutable after creation; dependencies are reached through getters.
type Container struct {
	logger     logging.Logger
	config     *config.Config
	store      store.TransactionStore
	categories *store.CategoryStore
	registry   *banksource.Registry
	normalizer *normalizer.Normalizer
	converter  *exchange.Converter
	sink       audit.SnapshotSink
	aiClient   categorizer.AIClient
	gemini     *categorizer.GeminiClient
	service    *categorizer.Service
	ingestor   *pipeline.Ingestor
}

// NewContainer creates and wires all application dependencies.
// Close must be called to release the store, the audit sink and the AI client.
func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	// Create logger first as it's needed by other components
	logger := o.logger
	if logger == nil {
		logger = logging.NewLogrusAdapter(cfg.Log.Level, cfg.Log.Format)
	}
	c := &Container{logger: logger, config: cfg}

	registry, err := banksource.LoadRegistry(cfg.Sources.File, logger, DefaultSources())
	if err != nil {
		return nil, err
	}
	c.registry = registry

	c.normalizer = normalizer.New(registry, cfg.Settlement.Currency, logger)
	for _, s := range Strategies() {
		c.normalizer.Register(s)
	}

	c.store = o.store
	if c.store == nil {
		if c.store, err = openStore(ctx, cfg.Store, logger); err != nil {
			return nil, err
		}
	}

	if c.sink, err = openSink(ctx, cfg.Audit, logger); err != nil {
		_ = c.store.Close()
		return nil, err
	}

	retrier := retry.New(retry.PolicyFromConfig(cfg.Retry), logger)
	provider := o.provider
	if provider == nil {
		provider = exchange.NewHTTPProvider(cfg.Rates)
	}
	c.converter = exchange.NewConverter(provider, retrier, cfg.Settlement.Currency, "", logger)

	c.aiClient = o.ai
	if c.aiClient == nil && cfg.AI.Enabled {
		gemini, err := categorizer.NewGeminiClient(ctx, cfg.AI, logger)
		if err != nil {
			c.closeAll()
			return nil, err
		}
		c.gemini = gemini
		c.aiClient = gemini
	}
	if c.aiClient == nil {
		logger.Info("AI categorization disabled")
	} else {
		logger.Info("AI categorization enabled", logging.F("model", cfg.AI.Model))
	}

	calculator, err := confidence.New(confidence.FromConfig(cfg.Confidence))
	if err != nil {
		c.closeAll()
		return nil, err
	}
	learner := history.New(cfg.History.FuzzyThreshold, history.WithIgnoredCategories(cfg.AI.FallbackCategoryID))
	c.categories = store.NewCategoryStore(cfg.Categories.File, logger)
	c.service = categorizer.NewService(c.store, c.aiClient, learner, calculator, retrier,
		categorizer.OptionsFromConfig(cfg), logger)

	c.ingestor = pipeline.NewIngestor(c.normalizer, registry, c.store, c.converter, c.sink, logger)

	logger.Info("Container initialized successfully",
		logging.F(logging.FieldStore, cfg.Store.Backend),
		logging.F("audit", cfg.Audit.Backend),
		logging.F("sources", len(registry.IDs())))
	return c, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger logging.Logger) (store.TransactionStore, error) {
	switch cfg.Backend {
	case BackendMemory:
		return store.NewMemoryStore(), nil
	case BackendSheet, "":
		return store.OpenSheetStore(cfg.SheetPath, logger)
	case BackendPostgres:
		return postgres.Connect(ctx, cfg.DatabaseURL, logger)
	}
	return nil, &txerror.ConfigError{Key: "store.backend", Reason: "unknown backend " + cfg.Backend}
}

func openSink(ctx context.Context, cfg config.AuditConfig, logger logging.Logger) (audit.SnapshotSink, error) {
	switch cfg.Backend {
	case AuditNone, "":
		return audit.NoopSink{}, nil
	case AuditMemory:
		return audit.NewMemorySink(), nil
	case AuditBigQuery:
		return audit.NewBigQuerySink(ctx, cfg, logger)
	}
	return nil, &txerror.ConfigError{Key: "audit.backend", Reason: "unknown backend " + cfg.Backend}
}

// GetLogger returns the container's logger instance.
func (c *Container) GetLogger() logging.Logger {
	return c.logger
}

// GetConfig returns the container's configuration instance.
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetStore returns the transaction store.
func (c *Container) GetStore() store.TransactionStore {
	return c.store
}

// GetCategoryStore returns the category list loader.
func (c *Container) GetCategoryStore() *store.CategoryStore {
	return c.categories
}

// GetRegistry returns the bank source registry.
func (c *Container) GetRegistry() *banksource.Registry {
	return c.registry
}

// GetNormalizer returns the normalizer with every built-in strategy registered.
func (c *Container) GetNormalizer() *normalizer.Normalizer {
	return c.normalizer
}

// GetSink returns the exchange-rate snapshot sink.
func (c *Container) GetSink() audit.SnapshotSink {
	return c.sink
}

// GetAIClient returns the container's AI client instance.
// Returns nil if AI is not enabled.
func (c *Container) GetAIClient() categorizer.AIClient {
	return c.aiClient
}

// GetCategorizer returns the categorization service.
func (c *Container) GetCategorizer() *categorizer.Service {
	return c.service
}

// GetIngestor returns the ingest pipeline.
func (c *Container) GetIngestor() *pipeline.Ingestor {
	return c.ingestor
}

// Migrate creates the postgres schema. Other backends need no migration.
func (c *Container) Migrate(ctx context.Context) error {
	pg, ok := c.store.(*postgres.Store)
	if !ok {
		c.logger.Info("Store backend needs no migration", logging.F(logging.FieldStore, c.config.Store.Backend))
		return nil
	}
	return pg.Migrate(ctx)
}

func (c *Container) closeAll() error {
	var errs []error
	if c.gemini != nil {
		errs = append(errs, c.gemini.Close())
	}
	if c.sink != nil {
		errs = append(errs, c.sink.Close())
	}
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	return errors.Join(errs...)
}

// Close releases the store, the audit sink and the AI client.
func (c *Container) Close() error {
	err := c.closeAll()
	c.logger.Info("Container closed")
	return err
}
