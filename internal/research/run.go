package research

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/atlas-research/internal/model"
)

// run is the per-target session state: current phase, event sequence and
// usage. It is owned by the goroutine executing Engine.Run.
type run struct {
	ctx        context.Context
	target     model.Target
	phase      model.Phase
	failedIn   model.Phase
	seq        int
	events     chan<- model.Event
	candidates []string
	read       map[string]bool
	usage      model.Usage
	started    time.Time
	log        *zap.Logger
}

func newRun(ctx context.Context, target model.Target, events chan<- model.Event) *run {
	return &run{
		ctx:     ctx,
		target:  target,
		phase:   model.PhaseInitializing,
		events:  events,
		read:    make(map[string]bool),
		started: time.Now().UTC(),
		log:     zap.L().With(zap.String("target", target.Label())),
	}
}

// advance moves to next. Illegal transitions are programming errors; they
// are logged and ignored.
func (r *run) advance(next model.Phase) bool {
	if !r.phase.CanAdvance(next) {
		r.log.Error("research: illegal phase transition",
			zap.String("from", string(r.phase)),
			zap.String("to", string(next)),
		)
		return false
	}
	r.log.Debug("research: phase", zap.String("phase", string(next)))
	r.phase = next
	return true
}

// emit sends a log event tagged with the current phase. Delivery stops once
// the run's context is done.
func (r *run) emit(cat model.Category, format string, args ...any) {
	r.seq++
	ev := model.LogEvent{
		Seq:       r.seq,
		Target:    r.target.Label(),
		Phase:     r.phase,
		Category:  cat,
		Content:   fmt.Sprintf(format, args...),
		Timestamp: time.Now().UTC(),
	}
	if r.events == nil {
		return
	}
	select {
	case r.events <- model.LogEventOf(ev):
	case <-r.ctx.Done():
	}
}

// fail moves the run to failed and emits the reason.
func (r *run) fail(reason string) model.Outcome {
	from := r.phase
	if r.ctx.Err() != nil {
		reason = "cancelled"
	}
	if r.advance(model.PhaseFailed) {
		r.failedIn = from
	}
	r.emit(model.CategoryError, "Research failed during %s: %s", from, reason)
	r.log.Warn("research: target failed", zap.String("phase", string(from)), zap.String("reason", reason))
	return r.outcome(nil, reason)
}

func (r *run) outcome(rec *model.ExtractionRecord, failure string) model.Outcome {
	return model.Outcome{
		Target:     r.target,
		Phase:      r.phase,
		Record:     rec,
		Failure:    failure,
		FailedIn:   r.failedIn,
		Cancelled:  r.ctx.Err() != nil && r.phase == model.PhaseFailed,
		Usage:      r.usage,
		StartedAt:  r.started,
		FinishedAt: time.Now().UTC(),
	}
}
