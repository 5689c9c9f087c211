// Package app wires configuration into long-lived services and acts as the
// dependency container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/verdict-crawler/internal/checkpoint"
	"github.com/JakeFAU/verdict-crawler/internal/config"
	"github.com/JakeFAU/verdict-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/verdict-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/verdict-crawler/internal/metrics"
	"github.com/JakeFAU/verdict-crawler/internal/notify"
	notifykafka "github.com/JakeFAU/verdict-crawler/internal/notify/kafka"
	notifypubsub "github.com/JakeFAU/verdict-crawler/internal/notify/pubsub"
	"github.com/JakeFAU/verdict-crawler/internal/orchestrator"
	"github.com/JakeFAU/verdict-crawler/internal/storage/gcs"
	"github.com/JakeFAU/verdict-crawler/internal/storage/local"
	"github.com/JakeFAU/verdict-crawler/internal/storage/memory"
	"github.com/JakeFAU/verdict-crawler/internal/storage/postgres"
)

// RunRecorder persists run summaries; only the Postgres provider has one.
type RunRecorder interface {
	RecordRun(ctx context.Context, run postgres.RunRecord) error
}

// App holds the shared, long-lived services for one CLI invocation.
type App struct {
	Logger       *zap.Logger
	Config       config.Config
	Fetcher      crawler.Fetcher
	Store        crawler.VerdictStore
	Runs         RunRecorder
	Checkpoints  *checkpoint.Writer
	Notifier     notify.Notifier
	Orchestrator *orchestrator.Orchestrator

	closers []func() error
}

// New builds every service named by cfg. It fails fast when a backing
// service cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Logger: logger, Config: cfg}

	fetcher, err := collyfetcher.New(collyfetcher.Config{
		ListingURL:    cfg.Source.ListingURL,
		UserAgent:     cfg.Source.UserAgent,
		RespectRobots: cfg.Source.RespectRobots,
		Timeout:       cfg.Crawl.Timeout,
		DateLayout:    cfg.Source.DateLayout,
		Selectors:     cfg.Source.Selectors,
		RateLimit:     cfg.Source.RateLimit,
	}, logger.Named("fetcher"))
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}
	a.Fetcher = fetcher

	if err := a.initStorage(ctx); err != nil {
		return nil, a.abort(err)
	}
	if err := a.initCheckpoints(ctx); err != nil {
		return nil, a.abort(err)
	}
	if err := a.initNotifier(ctx); err != nil {
		return nil, a.abort(err)
	}

	a.Orchestrator = orchestrator.New(a.Fetcher, a.Store, crawler.SystemClock, orchestrator.Config{
		Concurrency:  cfg.Crawl.Concurrency,
		Timeout:      cfg.Crawl.Timeout,
		StoreTimeout: cfg.Crawl.StoreTimeout,
	}, logger.Named("orchestrator"))

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Provider),
		zap.String("notify", cfg.Notify.Provider),
		zap.String("checkpoint_dir", cfg.Checkpoint.Dir),
	)
	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.Config.Storage.Provider {
	case config.StorageMemory:
		a.Logger.Info("using in-memory verdict store, nothing is persisted")
		a.Store = memory.NewVerdictStore()
		return nil
	case config.StoragePostgres:
		pg := a.Config.Storage.Postgres
		pool, err := postgres.Connect(ctx, postgres.Config{
			DSN:             pg.DSN,
			MaxConns:        pg.MaxConns,
			MinConns:        pg.MinConns,
			MaxConnLifetime: pg.MaxConnLifetime,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		store, err := postgres.NewVerdictStore(pool, pg.Table)
		if err != nil {
			return err
		}
		runs, err := postgres.NewRunStore(pool, pg.RunsTable)
		if err != nil {
			return err
		}
		if pg.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			if err := runs.EnsureSchema(ctx); err != nil {
				return err
			}
		}
		a.Store, a.Runs = store, runs
		return nil
	default:
		return fmt.Errorf("unknown storage provider %q", a.Config.Storage.Provider)
	}
}

func (a *App) initCheckpoints(ctx context.Context) error {
	opts := []checkpoint.Option{checkpoint.WithLogger(a.Logger.Named("checkpoint"))}
	m := a.Config.Checkpoint.Mirror
	switch m.Provider {
	case "", config.ProviderNone:
	case config.ProviderLocal:
		mirror, err := local.New(local.Config{BaseDir: m.Dir})
		if err != nil {
			return fmt.Errorf("init local mirror: %w", err)
		}
		opts = append(opts, checkpoint.WithMirror(mirror))
	case config.ProviderGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		mirror, err := gcs.New(client, gcs.Config{Bucket: m.Bucket, Prefix: m.Prefix})
		if err != nil {
			return fmt.Errorf("init gcs mirror: %w", err)
		}
		opts = append(opts, checkpoint.WithMirror(mirror))
	default:
		return fmt.Errorf("unknown checkpoint mirror %q", m.Provider)
	}
	w, err := checkpoint.NewWriter(a.Config.Checkpoint.Dir, opts...)
	if err != nil {
		return err
	}
	a.Checkpoints = w
	return nil
}

func (a *App) initNotifier(ctx context.Context) error {
	n := a.Config.Notify
	switch n.Provider {
	case "", config.ProviderNone:
		a.Notifier = notify.Nop{}
	case config.ProviderKafka:
		k, err := notifykafka.New(n.Kafka.Brokers, n.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("init kafka notifier: %w", err)
		}
		a.Notifier = k
	case config.ProviderPubSub:
		client, err := pubsub.NewClient(ctx, n.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.Notifier = notifypubsub.New(client.Topic(n.PubSub.Topic))
	default:
		return fmt.Errorf("unknown notify provider %q", n.Provider)
	}
	return nil
}

// GetLogger returns the application logger.
func (a *App) GetLogger() *zap.Logger { return a.Logger }

// GetConfig returns the configuration the services were built from.
func (a *App) GetConfig() config.Config { return a.Config }

// Crawl runs a fresh crawl over [start, end].
func (a *App) Crawl(ctx context.Context, start, end time.Time, filters crawler.Filters) (orchestrator.Result, error) {
	return a.Orchestrator.Crawl(ctx, start, end, filters)
}

// RetryCrawl re-runs the units of a previous run's faults.
func (a *App) RetryCrawl(ctx context.Context, prior []crawler.FaultRecord, filters crawler.Filters) (orchestrator.Result, error) {
	return a.Orchestrator.RetryCrawl(ctx, prior, filters)
}

// abort releases whatever was opened before err and returns err.
func (a *App) abort(err error) error {
	if cerr := a.Close(); cerr != nil {
		a.Logger.Warn("cleanup after failed init", zap.Error(cerr))
	}
	return err
}

// Close shuts down every service. The notifier is closed before the clients
// it depends on.
func (a *App) Close() error {
	var errs error
	if a.Notifier != nil {
		errs = multierr.Append(errs, a.Notifier.Close())
		a.Notifier = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i]())
	}
	a.closers = nil
	return errs
}

// ServeMetrics serves /metrics and /healthz on addr until ctx is done.
func (a *App) ServeMetrics(ctx context.Context, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}()
	go func() {
		a.Logger.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}
