// Package store persists finished research runs and batch summaries.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sells-group/atlas-research/internal/model"
)

// ErrNotFound is returned, wrapped, when a run or batch does not exist.
var ErrNotFound = errors.New("not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status    model.RunStatus `json:"status,omitempty"`
	TargetKey string          `json:"target_key,omitempty"`
	BatchID   string          `json:"batch_id,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`

	// FinishedAfter keeps runs that finished at or after this instant.
	FinishedAfter time.Time `json:"finished_after,omitempty"`
}

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return 100
	}
	return f.Limit
}

// Store defines persistence for terminal research outcomes. Only terminal,
// non-cancelled outcomes are ever written.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run model.Run) (*model.Run, error)
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Batches
	SaveBatch(ctx context.Context, summary model.BatchSummary) error
	GetBatch(ctx context.Context, id string) (*model.BatchSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Pool is the subset of pgxpool.Pool used by PostgresStore; pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IsNotFound reports whether err carries ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
