package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/verdict-crawler/internal/crawler"
)

func TestRecordRunUpsertsSummary(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "")
	require.NoError(t, err)

	started := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	run := RunRecord{
		RunID:      "run-1",
		Mode:       "crawl",
		Result:     "cancelled",
		Checkpoint: "/var/lib/verdicts/faults-20240309T101500.000000000Z.ckpt",
		StartedAt:  started,
		FinishedAt: started.Add(15 * time.Minute),
		Summary:    crawler.Summary{Total: 10, Succeeded: 4, Skipped: 1, Faulted: 2, Cancelled: 3},
	}
	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(run.RunID, run.Mode, run.Result, run.Checkpoint, run.StartedAt, run.FinishedAt, 10, 4, 1, 2, 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "crawl_runs")
	require.NoError(t, err)
	require.Error(t, store.RecordRun(context.Background(), RunRecord{}))

	mock.ExpectExec("INSERT INTO crawl_runs").WillReturnError(errors.New("relation does not exist"))
	err = store.RecordRun(context.Background(), RunRecord{RunID: "run-2"})
	require.ErrorContains(t, err, "run-2")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStoreEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "crawl_runs")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crawl_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = NewRunStore(nil, "")
	require.Error(t, err)
}
