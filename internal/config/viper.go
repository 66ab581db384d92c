// Package config provides Viper-based hierarchical configuration management
package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Settlement SettlementConfig `mapstructure:"settlement" yaml:"settlement"`
	Sources    SourcesConfig    `mapstructure:"sources" yaml:"sources"`
	Categories CategoriesConfig `mapstructure:"categories" yaml:"categories"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	AI         AIConfig         `mapstructure:"ai" yaml:"ai"`
	Rates      RatesConfig      `mapstructure:"rates" yaml:"rates"`
	Retry      RetryConfig      `mapstructure:"retry" yaml:"retry"`
	Confidence ConfidenceConfig `mapstructure:"confidence" yaml:"confidence"`
	History    HistoryConfig    `mapstructure:"history" yaml:"history"`
	Audit      AuditConfig      `mapstructure:"audit" yaml:"audit"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type SettlementConfig struct {
	Currency string `mapstructure:"currency" yaml:"currency"`
}

// SourcesConfig points at the bank-source registry file.
type SourcesConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

type CategoriesConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// StoreConfig selects the transaction store backend: "memory", "sheet" or "postgres".
type StoreConfig struct {
	Backend     string `mapstructure:"backend" yaml:"backend"`
	SheetPath   string `mapstructure:"sheet_path" yaml:"sheet_path"`
	DatabaseURL string `mapstructure:"database_url" yaml:"-"` // never serialize credentials
}

type AIConfig struct {
	Enabled              bool   `mapstructure:"enabled" yaml:"enabled"`
	Model                string `mapstructure:"model" yaml:"model"`
	RequestsPerMinute    int    `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	TimeoutSeconds       int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	BatchSize            int    `mapstructure:"batch_size" yaml:"batch_size"`
	FallbackCategoryID   string `mapstructure:"fallback_category_id" yaml:"fallback_category_id"`
	FallbackCategoryName string `mapstructure:"fallback_category_name" yaml:"fallback_category_name"`
	APIKey               string `mapstructure:"api_key" yaml:"-"`
}

type RatesConfig struct {
	Provider       string `mapstructure:"provider" yaml:"provider"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	APIKey         string `mapstructure:"api_key" yaml:"-"`
}

type RetryConfig struct {
	MaxAttempts       int     `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialIntervalMs int     `mapstructure:"initial_interval_ms" yaml:"initial_interval_ms"`
	MaxIntervalMs     int     `mapstructure:"max_interval_ms" yaml:"max_interval_ms"`
	Multiplier        float64 `mapstructure:"multiplier" yaml:"multiplier"`
}

type ConfidenceConfig struct {
	AIWeight            float64 `mapstructure:"ai_weight" yaml:"ai_weight"`
	HistoricalWeight    float64 `mapstructure:"historical_weight" yaml:"historical_weight"`
	MinMatches          int     `mapstructure:"min_matches" yaml:"min_matches"`
	ConsensusBonus      float64 `mapstructure:"consensus_bonus" yaml:"consensus_bonus"`
	ConflictPenalty     float64 `mapstructure:"conflict_penalty" yaml:"conflict_penalty"`
	OverrideBoost       float64 `mapstructure:"override_boost" yaml:"override_boost"`
	SingleMatchDiscount float64 `mapstructure:"single_match_discount" yaml:"single_match_discount"`
}

type HistoryConfig struct {
	Limit          int     `mapstructure:"limit" yaml:"limit"`
	RecencyDays    int     `mapstructure:"recency_days" yaml:"recency_days"`
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold" yaml:"fuzzy_threshold"`
}

// AuditConfig selects where exchange-rate snapshots go: "none", "memory" or "bigquery".
type AuditConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	ProjectID string `mapstructure:"project_id" yaml:"project_id"`
	Dataset   string `mapstructure:"dataset" yaml:"dataset"`
	Table     string `mapstructure:"table" yaml:"table"`
}

// InitializeConfig initializes Viper configuration with hierarchical loading
func InitializeConfig() (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Config file locations
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.ledger-sync")
	v.AddConfigPath(".ledger-sync")
	v.AddConfigPath(".")

	// 3. Environment variables
	v.SetEnvPrefix("LEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Warning: error reading config file %s: %v\n", v.ConfigFileUsed(), err)
		}
	}

	// 5. Credentials come from unprefixed variables
	for key, env := range map[string]string{
		"ai.api_key":         "GEMINI_API_KEY",
		"rates.api_key":      "RATES_API_KEY",
		"store.database_url": "DATABASE_URL",
	} {
		if err := v.BindEnv(key, env); err != nil {
			fmt.Printf("Warning: failed to bind %s environment variable: %v\n", env, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Settlement.Currency = strings.ToUpper(config.Settlement.Currency)

	// 6. Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("settlement.currency", "GBP")

	v.SetDefault("sources.file", "sources.yaml")
	v.SetDefault("categories.file", "categories.yaml")

	v.SetDefault("store.backend", "sheet")
	v.SetDefault("store.sheet_path", "transactions.csv")

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gemini-2.0-flash")
	v.SetDefault("ai.requests_per_minute", 10)
	v.SetDefault("ai.timeout_seconds", 30)
	v.SetDefault("ai.batch_size", 25)
	v.SetDefault("ai.fallback_category_id", "uncategorized")
	v.SetDefault("ai.fallback_category_name", "Uncategorized")

	v.SetDefault("rates.provider", "frankfurter")
	v.SetDefault("rates.base_url", "https://api.frankfurter.app")
	v.SetDefault("rates.timeout_seconds", 10)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval_ms", 500)
	v.SetDefault("retry.max_interval_ms", 5000)
	v.SetDefault("retry.multiplier", 2.0)

	v.SetDefault("confidence.ai_weight", 0.6)
	v.SetDefault("confidence.historical_weight", 0.4)
	v.SetDefault("confidence.min_matches", 2)
	v.SetDefault("confidence.consensus_bonus", 10.0)
	v.SetDefault("confidence.conflict_penalty", -15.0)
	v.SetDefault("confidence.override_boost", 5.0)
	v.SetDefault("confidence.single_match_discount", 0.7)

	v.SetDefault("history.limit", 10)
	v.SetDefault("history.recency_days", 365)
	v.SetDefault("history.fuzzy_threshold", 0.75)

	v.SetDefault("audit.backend", "none")
	v.SetDefault("audit.dataset", "ledger")
	v.SetDefault("audit.table", "exchange_rate_snapshots")
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}
	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}

	if len(config.Settlement.Currency) != 3 {
		return fmt.Errorf("settlement.currency must be an ISO 4217 code, got: %s", config.Settlement.Currency)
	}

	switch config.Store.Backend {
	case "memory":
	case "sheet":
		if config.Store.SheetPath == "" {
			return fmt.Errorf("store.sheet_path required for the sheet backend")
		}
	case "postgres":
		if config.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid store.backend: %s (must be 'memory', 'sheet' or 'postgres')", config.Store.Backend)
	}

	if config.AI.Enabled {
		if config.AI.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY required when AI is enabled")
		}
		if config.AI.RequestsPerMinute < 1 || config.AI.RequestsPerMinute > 1000 {
			return fmt.Errorf("ai.requests_per_minute must be between 1 and 1000, got: %d", config.AI.RequestsPerMinute)
		}
		if config.AI.TimeoutSeconds < 1 || config.AI.TimeoutSeconds > 300 {
			return fmt.Errorf("ai.timeout_seconds must be between 1 and 300, got: %d", config.AI.TimeoutSeconds)
		}
	}
	if config.AI.BatchSize < 1 || config.AI.BatchSize > 200 {
		return fmt.Errorf("ai.batch_size must be between 1 and 200, got: %d", config.AI.BatchSize)
	}
	if config.AI.FallbackCategoryID == "" {
		return fmt.Errorf("ai.fallback_category_id must not be empty")
	}

	if config.Rates.TimeoutSeconds < 1 || config.Rates.TimeoutSeconds > 120 {
		return fmt.Errorf("rates.timeout_seconds must be between 1 and 120, got: %d", config.Rates.TimeoutSeconds)
	}

	if config.Retry.MaxAttempts < 1 || config.Retry.MaxAttempts > 10 {
		return fmt.Errorf("retry.max_attempts must be between 1 and 10, got: %d", config.Retry.MaxAttempts)
	}
	if config.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1, got: %f", config.Retry.Multiplier)
	}

	if err := validateConfidence(config.Confidence); err != nil {
		return err
	}

	if config.History.Limit < 1 {
		return fmt.Errorf("history.limit must be positive, got: %d", config.History.Limit)
	}
	if config.History.RecencyDays < 1 {
		return fmt.Errorf("history.recency_days must be positive, got: %d", config.History.RecencyDays)
	}
	if config.History.FuzzyThreshold <= 0 || config.History.FuzzyThreshold > 1 {
		return fmt.Errorf("history.fuzzy_threshold must be in (0, 1], got: %f", config.History.FuzzyThreshold)
	}

	switch config.Audit.Backend {
	case "none", "memory":
	case "bigquery":
		if config.Audit.ProjectID == "" {
			return fmt.Errorf("audit.project_id required for the bigquery backend")
		}
	default:
		return fmt.Errorf("invalid audit.backend: %s (must be 'none', 'memory' or 'bigquery')", config.Audit.Backend)
	}

	return nil
}

func validateConfidence(c ConfidenceConfig) error {
	if c.AIWeight < 0 || c.AIWeight > 1 || c.HistoricalWeight < 0 || c.HistoricalWeight > 1 {
		return fmt.Errorf("confidence weights must be between 0.0 and 1.0, got: %f/%f", c.AIWeight, c.HistoricalWeight)
	}
	if math.Abs(c.AIWeight+c.HistoricalWeight-1.0) > 1e-9 {
		return fmt.Errorf("confidence weights must sum to 1.0, got: %f", c.AIWeight+c.HistoricalWeight)
	}
	if c.ConsensusBonus < 0 || c.ConsensusBonus > 20 {
		return fmt.Errorf("confidence.consensus_bonus must be between 0 and 20, got: %f", c.ConsensusBonus)
	}
	if c.ConflictPenalty < -20 || c.ConflictPenalty > 0 {
		return fmt.Errorf("confidence.conflict_penalty must be between -20 and 0, got: %f", c.ConflictPenalty)
	}
	if c.OverrideBoost < 0 || c.OverrideBoost > 10 {
		return fmt.Errorf("confidence.override_boost must be between 0 and 10, got: %f", c.OverrideBoost)
	}
	if c.MinMatches < 1 {
		return fmt.Errorf("confidence.min_matches must be at least 1, got: %d", c.MinMatches)
	}
	if c.SingleMatchDiscount <= 0 || c.SingleMatchDiscount >= 1 {
		return fmt.Errorf("confidence.single_match_discount must be in (0, 1), got: %f", c.SingleMatchDiscount)
	}
	return nil
}
