package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/atlas-research/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var runColumnNames = []string{"id", "batch_id", "target", "status", "record", "failure", "failed_in", "usage", "started_at", "finished_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	run := testRun(t, "acme.com", true, time.Now())

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "", "acme.com", pgxmock.AnyArg(), "completed", pgxmock.AnyArg(),
			"", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	saved, err := s.SaveRun(context.Background(), run)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	record := []byte(`{"target":{"input":"acme.com","key":"acme.com","domain":"acme.com","name":"Acme"},"fields":{"industry":"Software"},"lists":{},"people":null,"extracted_at":"0001-01-01T00:00:00Z"}`)

	mock.ExpectQuery(`SELECT id, batch_id, target, status, record, failure, failed_in, usage, started_at, finished_at FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumnNames).AddRow(
			"run-1", "batch-1",
			[]byte(`{"input":"acme.com","key":"acme.com","domain":"acme.com","name":"Acme"}`),
			"completed", &record, "", "",
			[]byte(`{"search_queries":5,"cost_usd":0.02}`),
			now.Add(-time.Minute), now,
		))

	got, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "batch-1", got.BatchID)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	assert.Equal(t, "Acme", got.Target.Name)
	require.NotNil(t, got.Record)
	assert.Equal(t, "Software", got.Record.Value(model.FieldIndustry))
	assert.Equal(t, 5, got.Usage.SearchQueries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "get run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE true AND status = \$1 AND batch_id = \$2 ORDER BY finished_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("failed", "batch-1", 10, 20).
		WillReturnRows(pgxmock.NewRows(runColumnNames))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusFailed, BatchID: "batch-1", Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_FinishedAfter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cutoff := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE true AND finished_at >= \$1 ORDER BY finished_at DESC LIMIT \$2`).
		WithArgs(cutoff, 100).
		WillReturnRows(pgxmock.NewRows(runColumnNames))

	runs, err := s.ListRuns(context.Background(), RunFilter{FinishedAfter: cutoff})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBatch_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now()

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("batch-1", "list.csv", 3, 2, 1, "Bulk_Report_x.xlsx", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveBatch(context.Background(), model.BatchSummary{
		ID: "batch-1", Filename: "list.csv", Total: 3, Succeeded: 2, Failed: 1,
		ReportName: "Bulk_Report_x.xlsx", CreatedAt: now, FinishedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetBatch_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM batches WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetBatch(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
