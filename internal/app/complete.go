package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/verdict-crawler/internal/orchestrator"
	"github.com/JakeFAU/verdict-crawler/internal/storage/postgres"
)

// Complete checkpoints the retry list of a finished (or aborted) run, then
// publishes its faults and records its summary. Only the checkpoint write can
// fail the call; notification and run bookkeeping failures are logged.
func (a *App) Complete(ctx context.Context, res orchestrator.Result, runErr error) (string, error) {
	runID := res.RunID
	if runID == "" {
		runID = a.Orchestrator.RunID()
	}
	faults := a.Orchestrator.RetryList()

	path, err := a.Checkpoints.Write(ctx, runID, faults)
	if err != nil {
		a.Logger.Error("checkpoint serialization failed",
			zap.String("run_id", runID),
			zap.Int("records", len(faults)),
			zap.Error(err),
		)
		return "", fmt.Errorf("write checkpoint: %w", err)
	}

	if err := a.Notifier.NotifyFaults(ctx, runID, faults); err != nil {
		a.Logger.Warn("fault notification failed", zap.String("run_id", runID), zap.Error(err))
	}

	if a.Runs != nil && runID != "" {
		result := "completed"
		switch {
		case runErr != nil:
			result = "error"
		case res.Cancelled:
			result = "cancelled"
		}
		err := a.Runs.RecordRun(ctx, postgres.RunRecord{
			RunID:      runID,
			Mode:       string(res.Mode),
			Result:     result,
			Checkpoint: path,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
			Summary:    res.Summary,
		})
		if err != nil {
			a.Logger.Warn("recording run summary failed", zap.String("run_id", runID), zap.Error(err))
		}
	}
	return path, nil
}
