package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/verdict-crawler/internal/checkpoint"
	"github.com/JakeFAU/verdict-crawler/internal/crawler"
	"github.com/JakeFAU/verdict-crawler/internal/orchestrator"
)

// errInterrupted is returned when a run stopped on SIGINT/SIGTERM after its
// checkpoint was written.
var errInterrupted = errors.New("crawl interrupted")

// notifySignals derives the run context; replaceable in tests.
var notifySignals = func(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func newCrawlCmd() *cobra.Command {
	var from, to, retryPath string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls every day in [--from, --to], or the failed days of a checkpoint",
		Long: `Crawls one listing per calendar day between --from and --to inclusive
(YYYY-MM-DD). With --retry, crawls only the days recorded in a previous
run's checkpoint instead. Every run ends by writing a checkpoint of the
days that still need work.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer closeApp(cmd.Context())
			if retryPath != "" {
				return runRetry(cmd.Context(), retryPath)
			}
			if from == "" || to == "" {
				return errors.New("either --from and --to, or --retry, is required")
			}
			return runCrawl(cmd.Context(), from, to)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first day to crawl (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day to crawl, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&retryPath, "retry", "", "checkpoint file or directory to retry")
	cmd.MarkFlagsMutuallyExclusive("from", "retry")
	cmd.MarkFlagsMutuallyExclusive("to", "retry")
	cmd.MarkFlagsRequiredTogether("from", "to")
	addRunFlags(cmd)
	return cmd
}

func newRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <checkpoint>",
		Short: "Re-crawls the failed days recorded in a checkpoint file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer closeApp(cmd.Context())
			return runRetry(cmd.Context(), args[0])
		},
	}
	addRunFlags(cmd)
	return cmd
}

// runFlagKeys maps the flags shared by crawl and retry to configuration keys.
var runFlagKeys = map[string]string{
	"concurrency":       "crawl.concurrency",
	"timeout":           "crawl.timeout",
	"checkpoint-dir":    "checkpoint.dir",
	"skip-confidential": "crawl.filters.skip_confidential",
	"include-technical": "crawl.filters.include_technical",
	"full-text":         "crawl.filters.full_text",
}

func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("concurrency", 5, "number of parallel workers (1-10)")
	flags.Duration("timeout", 30*time.Second, "per-request timeout")
	flags.String("checkpoint-dir", "checkpoints", "directory for checkpoint files")
	flags.Bool("skip-confidential", false, "skip verdicts marked confidential")
	flags.Bool("include-technical", false, "include technical verdicts")
	flags.Bool("full-text", false, "fetch and store each verdict's full text")
}

// bindRunFlags binds the executing command's run flags into v. Binding
// happens per invocation because crawl and retry share configuration keys.
func bindRunFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for name, key := range runFlagKeys {
		if f := flags.Lookup(name); f != nil {
			mustBind(v, key, f)
		}
	}
}

func runCrawl(parent context.Context, from, to string) error {
	start, err := crawler.ParseDate(from)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	end, err := crawler.ParseDate(to)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	return execute(parent, func(ctx context.Context, a App) (orchestrator.Result, error) {
		return a.Crawl(ctx, start, end, a.GetConfig().Crawl.Filters)
	})
}

func runRetry(parent context.Context, path string) error {
	a, err := resolveApp(parent)
	if err != nil {
		return err
	}
	cp, resolved, err := checkpoint.Load(path)
	if err != nil {
		// No run starts, so there is no ledger to checkpoint.
		a.GetLogger().Error("cannot load checkpoint for retry", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("load checkpoint: %w", err)
	}
	a.GetLogger().Info("retrying checkpoint",
		zap.String("path", resolved),
		zap.String("previous_run_id", cp.RunID),
		zap.Int("records", len(cp.Faults)),
	)
	return execute(parent, func(ctx context.Context, a App) (orchestrator.Result, error) {
		return a.RetryCrawl(ctx, cp.Faults, a.GetConfig().Crawl.Filters)
	})
}

// execute runs one crawl under signal handling and checkpoints its retry list
// on every exit path.
func execute(parent context.Context, run func(context.Context, App) (orchestrator.Result, error)) error {
	a, err := resolveApp(parent)
	if err != nil {
		return err
	}
	logger := a.GetLogger()

	ctx, stop := notifySignals(parent)
	defer stop()

	if addr := a.GetConfig().Metrics.Addr; addr != "" {
		a.ServeMetrics(ctx, addr)
	}

	res, runErr := run(ctx, a)
	interrupted := ctx.Err() != nil && parent.Err() == nil
	if interrupted {
		logger.Warn("interrupt received, run stopped", zap.String("run_id", res.RunID))
	}

	path, cpErr := a.Complete(context.WithoutCancel(ctx), res, runErr)
	if cpErr == nil {
		logger.Info("retry list checkpointed", zap.String("path", path))
	}

	switch {
	case runErr != nil:
		logger.Error("crawl run failed", zap.Error(runErr))
		return errors.Join(fmt.Errorf("crawl run: %w", runErr), cpErr)
	case cpErr != nil:
		return cpErr
	case interrupted:
		return errInterrupted
	}
	return nil
}
