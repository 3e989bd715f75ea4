package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/atlas-research/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run": `INSERT INTO runs (id, batch_id, target_key, target, status, record, failure, failed_in, usage, started_at, finished_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"get_run":    `SELECT ` + pgRunColumns + ` FROM runs WHERE id = $1`,
	"get_batch":  `SELECT id, filename, total, succeeded, failed, report_name, created_at, finished_at FROM batches WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	batch_id    TEXT NOT NULL DEFAULT '',
	target_key  TEXT NOT NULL,
	target      JSONB NOT NULL,
	status      TEXT NOT NULL,
	record      JSONB,
	failure     TEXT NOT NULL DEFAULT '',
	failed_in   TEXT NOT NULL DEFAULT '',
	usage       JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS batches (
	id          TEXT PRIMARY KEY,
	filename    TEXT NOT NULL,
	total       INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	report_name TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_target_key ON runs(target_key);
CREATE INDEX IF NOT EXISTS idx_runs_batch_id ON runs(batch_id);
CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.Run) (*model.Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	cols, err := marshalRun(run)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal run")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, batch_id, target_key, target, status, record, failure, failed_in, usage, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.BatchID, run.Target.Key, cols.target, string(run.Status), cols.record,
		run.Failure, string(run.FailedIn), cols.usage, run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

const pgRunColumns = `id, batch_id, target, status, record, failure, failed_in, usage, started_at, finished_at`

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanPgRun(s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.TargetKey != "" {
		query += fmt.Sprintf(` AND target_key = $%d`, argIdx)
		args = append(args, filter.TargetKey)
		argIdx++
	}
	if filter.BatchID != "" {
		query += fmt.Sprintf(` AND batch_id = $%d`, argIdx)
		args = append(args, filter.BatchID)
		argIdx++
	}
	if !filter.FinishedAfter.IsZero() {
		query += fmt.Sprintf(` AND finished_at >= $%d`, argIdx)
		args = append(args, filter.FinishedAfter.UTC())
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY finished_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) SaveBatch(ctx context.Context, b model.BatchSummary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batches (id, filename, total, succeeded, failed, report_name, created_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET succeeded = $4, failed = $5, report_name = $6, finished_at = $8`,
		b.ID, b.Filename, b.Total, b.Succeeded, b.Failed, b.ReportName, b.CreatedAt.UTC(), b.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save batch %s", b.ID)
}

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*model.BatchSummary, error) {
	var b model.BatchSummary
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, total, succeeded, failed, report_name, created_at, finished_at FROM batches WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Filename, &b.Total, &b.Succeeded, &b.Failed, &b.ReportName, &b.CreatedAt, &b.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get batch %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get batch %s", id)
	}
	return &b, nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		r                     model.Run
		target, usage         []byte
		record                *[]byte
		status, failedIn      string
		startedAt, finishedAt time.Time
	)
	if err := row.Scan(&r.ID, &r.BatchID, &target, &status, &record, &r.Failure, &failedIn, &usage, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	var rec []byte
	if record != nil {
		rec = *record
	}
	if err := unmarshalRun(&r, target, rec, usage); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal run")
	}
	r.Status = model.RunStatus(status)
	r.FailedIn = model.Phase(failedIn)
	r.StartedAt = startedAt.UTC()
	r.FinishedAt = finishedAt.UTC()
	return &r, nil
}
