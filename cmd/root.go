// Package cmd defines and implements the CLI commands for the verdictcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/verdict-crawler/internal/app"
	"github.com/JakeFAU/verdict-crawler/internal/config"
	"github.com/JakeFAU/verdict-crawler/internal/crawler"
	"github.com/JakeFAU/verdict-crawler/internal/logging"
	"github.com/JakeFAU/verdict-crawler/internal/orchestrator"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use. Tests inject a fake.
type App interface {
	GetLogger() *zap.Logger
	GetConfig() config.Config
	Crawl(ctx context.Context, start, end time.Time, filters crawler.Filters) (orchestrator.Result, error)
	RetryCrawl(ctx context.Context, prior []crawler.FaultRecord, filters crawler.Filters) (orchestrator.Result, error)
	Complete(ctx context.Context, res orchestrator.Result, runErr error) (string, error)
	ServeMetrics(ctx context.Context, addr string)
	Close() error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newLogger builds the process logger from configuration; replaceable in tests.
var newLogger = logging.New

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "verdictcrawler",
		Short: "Crawls a date range of court verdicts into a relational store.",
		Long: `verdictcrawler retrieves the verdicts published for every day of a date
range, stores them, and checkpoints every day that failed so a later
"retry" run can redo exactly that work.`,
		SilenceUsage: true,

		// Runs after flag parsing and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := cmd.ValidateFlagGroups(); err != nil {
				return err
			}
			bindRunFlags(v, cmd.Flags())
			cfg, err := config.Load(v, cfgFile)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.Bool("dev", false, "human-readable development logging")
	flags.String("storage", config.StoragePostgres, "verdict store: postgres or memory")
	mustBind(v, "logging.level", flags.Lookup("log-level"))
	mustBind(v, "logging.development", flags.Lookup("dev"))
	mustBind(v, "storage.provider", flags.Lookup("storage"))

	cmd.AddCommand(newCrawlCmd(), newRetryCmd())
	return cmd
}

func closeApp(ctx context.Context) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return
	}
	logger := appInstance.GetLogger()
	if err := appInstance.Close(); err != nil {
		logger.Warn("Failed to close application services", zap.Error(err))
	}
	_ = logger.Sync()
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag.Name, err))
	}
}

// Execute runs the root command and reports whether it succeeded.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
