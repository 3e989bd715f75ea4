package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/atlas-research/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	batch_id    TEXT NOT NULL DEFAULT '',
	target_key  TEXT NOT NULL,
	target      TEXT NOT NULL,
	status      TEXT NOT NULL,
	record      TEXT,
	failure     TEXT NOT NULL DEFAULT '',
	failed_in   TEXT NOT NULL DEFAULT '',
	usage       TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS batches (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	total       INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	report_name TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_target_key ON runs(target_key);
CREATE INDEX IF NOT EXISTS idx_runs_batch_id ON runs(batch_id);
CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.Run) (*model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	cols, err := marshalRun(run)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal run")
	}

	var record any
	if cols.record != nil {
		record = string(cols.record)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, batch_id, target_key, target, status, record, failure, failed_in, usage, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BatchID, run.Target.Key, string(cols.target), string(run.Status), record,
		run.Failure, string(run.FailedIn), string(cols.usage), run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

const sqliteRunColumns = `id, batch_id, target, status, record, failure, failed_in, usage, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", id)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.TargetKey != "" {
		query += ` AND target_key = ?`
		args = append(args, filter.TargetKey)
	}
	if filter.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, filter.BatchID)
	}
	if !filter.FinishedAfter.IsZero() {
		query += ` AND finished_at >= ?`
		args = append(args, filter.FinishedAfter.UTC())
	}
	query += ` ORDER BY finished_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveBatch(ctx context.Context, b model.BatchSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, filename, total, succeeded, failed, report_name, created_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET succeeded = excluded.succeeded, failed = excluded.failed,
		   report_name = excluded.report_name, finished_at = excluded.finished_at`,
		b.ID, b.Filename, b.Total, b.Succeeded, b.Failed, b.ReportName, b.CreatedAt.UTC(), b.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save batch %s", b.ID)
}

func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*model.BatchSummary, error) {
	var b model.BatchSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, total, succeeded, failed, report_name, created_at, finished_at FROM batches WHERE id = ?`,
		id,
	).Scan(&b.ID, &b.Filename, &b.Total, &b.Succeeded, &b.Failed, &b.ReportName, &b.CreatedAt, &b.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: batch %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get batch %s", id)
	}
	return &b, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r                     model.Run
		target, usage         string
		status, failedIn      string
		record                sql.NullString
		startedAt, finishedAt time.Time
	)
	err := row.Scan(&r.ID, &r.BatchID, &target, &status, &record, &r.Failure, &failedIn, &usage, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	var rec []byte
	if record.Valid {
		rec = []byte(record.String)
	}
	if err := unmarshalRun(&r, []byte(target), rec, []byte(usage)); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal run")
	}
	r.Status = model.RunStatus(status)
	r.FailedIn = model.Phase(failedIn)
	r.StartedAt = startedAt.UTC()
	r.FinishedAt = finishedAt.UTC()
	return &r, nil
}

// runColumns holds the JSON-encoded columns of a run row.
type runColumns struct {
	target []byte
	record []byte
	usage  []byte
}

func marshalRun(r model.Run) (runColumns, error) {
	var cols runColumns
	var err error
	if cols.target, err = json.Marshal(r.Target); err != nil {
		return cols, err
	}
	if r.Record != nil {
		if cols.record, err = json.Marshal(r.Record); err != nil {
			return cols, err
		}
	}
	cols.usage, err = json.Marshal(r.Usage)
	return cols, err
}

func unmarshalRun(r *model.Run, target, record, usage []byte) error {
	if err := json.Unmarshal(target, &r.Target); err != nil {
		return err
	}
	if len(record) > 0 {
		r.Record = &model.ExtractionRecord{}
		if err := json.Unmarshal(record, r.Record); err != nil {
			return err
		}
	}
	return json.Unmarshal(usage, &r.Usage)
}
