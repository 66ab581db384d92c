// Package root contains the root command for the application
package root

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fjacquet/ledger-sync/internal/config"
	"fjacquet/ledger-sync/internal/container"
	"fjacquet/ledger-sync/internal/logging"
)

// CommonFlags represents the flags that are common to every command
type CommonFlags struct {
	LogLevel  string
	LogFormat string
	Store     string
}

var (
	// Log is the shared logger instance for commands
	Log = logrus.New()

	// AppConfig is the configuration loaded before any subcommand runs.
	AppConfig *config.Config

	// AppContainer holds the wired dependencies of the running command.
	AppContainer *container.Container

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "ledger-sync",
		Short: "Normalize, convert and categorize personal bank transactions.",
		Long: `ledger-sync ingests bank exports (Monzo, Revolut and Yonder CSV, CAMT.053 XML)
into one ledger, converts foreign amounts into the settlement currency and
categorizes transactions from AI suggestions and past history.`,
		Run: func(cmd *cobra.Command, args []string) {
			Log.Info("Welcome to ledger-sync!")
			Log.Info("Use --help to see available commands")
		},
		PersistentPreRunE: initialize,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if AppContainer == nil {
				return
			}
			if err := AppContainer.Close(); err != nil {
				Log.WithError(err).Warn("Failed to close resources")
			}
			AppContainer = nil
		},
		SilenceUsage: true,
	}

	// SharedFlags holds the values of the persistent flags.
	SharedFlags = CommonFlags{}
)

// Init initializes the root command and all flags
func Init() {
	pf := Cmd.PersistentFlags()
	pf.StringVar(&SharedFlags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&SharedFlags.LogFormat, "log-format", "", "Log format (text, json)")
	pf.StringVar(&SharedFlags.Store, "store", "", "Transaction store backend (memory, sheet, postgres)")
}

// ApplyFlags overrides configuration values with the flags that were set.
func ApplyFlags(cfg *config.Config, flags CommonFlags) {
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.LogFormat != "" {
		cfg.Log.Format = flags.LogFormat
	}
	if flags.Store != "" {
		cfg.Store.Backend = flags.Store
	}
}

func initialize(cmd *cobra.Command, args []string) error {
	config.LoadEnv()

	cfg, err := config.InitializeConfig()
	if err != nil {
		return err
	}
	ApplyFlags(cfg, SharedFlags)
	AppConfig = cfg

	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		Log.SetLevel(level)
	}
	var inner logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if cfg.Log.Format == "json" {
		inner = &logrus.JSONFormatter{}
	}
	Log.SetFormatter(&logging.RedactingFormatter{Inner: inner})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := container.NewContainer(ctx, cfg, container.WithLogger(GetLogrusAdapter()))
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	AppContainer = c
	return nil
}

// GetContainer returns the container built for the running command, or nil.
func GetContainer() *container.Container {
	return AppContainer
}

// GetConfig returns the loaded configuration, or nil before initialization.
func GetConfig() *config.Config {
	return AppConfig
}

// GetLogrusAdapter returns the shared logger behind the logging.Logger interface.
func GetLogrusAdapter() logging.Logger {
	return logging.NewLogrusAdapterFromLogger(Log)
}

// RequireContainer returns the container, or an error when the command runs
// without initialization.
func RequireContainer() (*container.Container, error) {
	if AppContainer == nil {
		return nil, fmt.Errorf("container not initialized")
	}
	return AppContainer, nil
}
