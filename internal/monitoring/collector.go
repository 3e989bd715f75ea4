// Package monitoring summarizes recent research runs and raises alerts when
// failure rate or spend crosses configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/store"
)

// maxSampledRuns bounds how many runs one snapshot reads.
const maxSampledRuns = 10000

// MetricsSnapshot is a point-in-time view of research health.
type MetricsSnapshot struct {
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	FailRate  float64 `json:"fail_rate"`
	CostUSD   float64 `json:"cost_usd"`

	// Per-run averages.
	AvgCostUSD float64 `json:"avg_cost_usd"`
	AvgTokens  int64   `json:"avg_tokens"`

	// FailedByPhase counts failures by the phase they happened in.
	FailedByPhase map[model.Phase]int `json:"failed_by_phase"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister reads persisted runs.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect summarizes runs that finished within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		FailedByPhase: make(map[model.Phase]int),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		FinishedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:         maxSampledRuns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var tokens int64
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusCompleted:
			snap.Completed++
		case model.RunStatusFailed:
			snap.Failed++
			snap.FailedByPhase[r.FailedIn]++
		}
		snap.CostUSD += r.Usage.CostUSD
		tokens += r.Usage.InputTokens + r.Usage.OutputTokens
	}

	snap.Total = len(runs)
	if snap.Total > 0 {
		snap.AvgCostUSD = snap.CostUSD / float64(snap.Total)
		snap.AvgTokens = tokens / int64(snap.Total)
	}
	if finished := snap.Completed + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}
	return snap, nil
}
