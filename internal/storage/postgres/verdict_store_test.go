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

func sampleRecord() crawler.Record {
	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	return crawler.Record{
		UnitID:    "2024-03-05",
		SourceURL: "https://courts.example/verdicts?date=2024-03-05",
		Verdicts: []crawler.Verdict{
			{
				Reference:    "REF-1",
				CaseNumber:   "C-100/24",
				Court:        "Supreme Court",
				DecisionDate: day,
				Title:        "State v. Doe",
				URL:          "https://courts.example/verdict/REF-1",
				FullText:     "text one",
				ContentHash:  "hash-one",
			},
			{
				Reference:    "REF-2",
				DecisionDate: day,
				Technical:    true,
			},
		},
	}
}

func expectUpsert(mock pgxmock.PgxPoolIface, rec crawler.Record, v crawler.Verdict, fullText, hash any) *pgxmock.ExpectedExec {
	return mock.ExpectExec("INSERT INTO verdicts").
		WithArgs(
			v.Reference,
			rec.UnitID,
			v.CaseNumber,
			v.Court,
			v.DecisionDate,
			v.Title,
			v.URL,
			v.Technical,
			fullText,
			hash,
			rec.SourceURL,
		)
}

func TestStoreRecordUpsertsInOneTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewVerdictStore(mock, "verdicts")
	require.NoError(t, err)

	rec := sampleRecord()
	mock.ExpectBegin()
	expectUpsert(mock, rec, rec.Verdicts[0], nil, nil).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectUpsert(mock, rec, rec.Verdicts[1], nil, nil).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.StoreRecord(context.Background(), rec, crawler.StoreOptions{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordWritesFullTextWhenRequested(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewVerdictStore(mock, "")
	require.NoError(t, err)

	rec := sampleRecord()
	mock.ExpectBegin()
	expectUpsert(mock, rec, rec.Verdicts[0], "text one", "hash-one").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectUpsert(mock, rec, rec.Verdicts[1], nil, nil).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.StoreRecord(context.Background(), rec, crawler.StoreOptions{FullText: true}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewVerdictStore(mock, "verdicts")
	require.NoError(t, err)

	rec := sampleRecord()
	mock.ExpectBegin()
	expectUpsert(mock, rec, rec.Verdicts[0], nil, nil).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectUpsert(mock, rec, rec.Verdicts[1], nil, nil).WillReturnError(errors.New("value too long"))
	mock.ExpectRollback()

	err = store.StoreRecord(context.Background(), rec, crawler.StoreOptions{})
	require.ErrorIs(t, err, crawler.ErrPersistence)
	require.Equal(t, crawler.FaultPersistenceFailure, crawler.Classify(err))
	require.ErrorContains(t, err, "REF-2")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreRecordBeginAndCommitFailures(t *testing.T) {
	t.Parallel()

	t.Run("begin", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store, err := NewVerdictStore(mock, "verdicts")
		require.NoError(t, err)

		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
		err = store.StoreRecord(context.Background(), sampleRecord(), crawler.StoreOptions{})
		require.ErrorIs(t, err, crawler.ErrPersistence)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit", func(t *testing.T) {
		t.Parallel()
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store, err := NewVerdictStore(mock, "verdicts")
		require.NoError(t, err)

		rec := sampleRecord()
		rec.Verdicts = rec.Verdicts[:1]
		mock.ExpectBegin()
		expectUpsert(mock, rec, rec.Verdicts[0], nil, nil).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

		err = store.StoreRecord(context.Background(), rec, crawler.StoreOptions{})
		require.ErrorIs(t, err, crawler.ErrPersistence)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStoreRecordWithoutVerdictsIsNoop(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewVerdictStore(mock, "verdicts")
	require.NoError(t, err)

	require.NoError(t, store.StoreRecord(context.Background(), crawler.Record{UnitID: "2024-01-01"}, crawler.StoreOptions{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchemaCreatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewVerdictStore(mock, "verdicts")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS verdicts").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewVerdictStoreValidatesInput(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewVerdictStore(nil, "verdicts")
	require.Error(t, err)
	_, err = NewVerdictStore(mock, "verdicts; DROP TABLE x")
	require.Error(t, err)
}

func TestConnectRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), Config{})
	require.Error(t, err)
}
