// Package research drives one target through the research phases:
// searching, browsing, extracting and finalizing. Progress is reported as an
// ordered stream of events and the run ends in a single Outcome.
package research

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sells-group/atlas-research/internal/cost"
	"github.com/sells-group/atlas-research/internal/extract"
	"github.com/sells-group/atlas-research/internal/model"
	"github.com/sells-group/atlas-research/internal/scrape"
	"github.com/sells-group/atlas-research/internal/search"
)

// Searcher runs one field query across the configured providers.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (search.Answer, error)
}

// Fetcher reads candidate pages.
type Fetcher interface {
	SkipReason(targetURL string) string
	Scrape(ctx context.Context, targetURL string) (*scrape.Result, error)
}

// Extractor turns evidence into a record and re-asks for single fields.
type Extractor interface {
	Extract(ctx context.Context, ev extract.Evidence) (*extract.Result, error)
	ExtractField(ctx context.Context, target model.Target, field model.FieldName, serp string, pages []model.CrawledPage) (*extract.FieldValue, error)
}

// LogoFinder resolves a logo URL for a domain.
type LogoFinder interface {
	Find(ctx context.Context, domain string) (string, error)
}

// Config tunes one research run.
type Config struct {
	QueryFields     []string
	MinPages        int
	MaxCandidates   int
	MaxFieldRetries int
	RetryPages      int
	LogoTimeout     time.Duration
	// Model prices Claude usage in the cost estimate.
	Model string
}

func (c Config) withDefaults() Config {
	if len(c.QueryFields) == 0 {
		c.QueryFields = search.DefaultFields
	}
	if c.MinPages <= 0 {
		c.MinPages = 3
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 10
	}
	if c.MaxFieldRetries < 0 {
		c.MaxFieldRetries = 0
	}
	if c.RetryPages <= 0 {
		c.RetryPages = 2
	}
	if c.LogoTimeout <= 0 {
		c.LogoTimeout = 15 * time.Second
	}
	return c
}

// Deps are the engine's collaborators. Logos and Cost may be nil.
type Deps struct {
	Searcher  Searcher
	Fetcher   Fetcher
	Extractor Extractor
	Logos     LogoFinder
	Cost      *cost.Calculator
	// Gate bounds how many targets run at once across the process.
	Gate *semaphore.Weighted
}

// Engine runs the phase state machine. It is safe for concurrent use; all
// per-target state lives in the run.
type Engine struct {
	deps Deps
	cfg  Config
}

// New creates an Engine.
func New(deps Deps, cfg Config) *Engine {
	if deps.Gate == nil {
		deps.Gate = semaphore.NewWeighted(1)
	}
	return &Engine{deps: deps, cfg: cfg.withDefaults()}
}

// eventBuffer is the channel capacity used by Start.
const eventBuffer = 64

// Start runs target in its own goroutine. The event channel is closed after
// the outcome has been sent; callers must drain events or cancel ctx.
func (e *Engine) Start(ctx context.Context, target model.Target) (<-chan model.Event, <-chan model.Outcome) {
	events := make(chan model.Event, eventBuffer)
	out := make(chan model.Outcome, 1)
	go func() {
		defer close(events)
		out <- e.Run(ctx, target, events)
		close(out)
	}()
	return events, out
}

// Run drives target to a terminal phase, sending log events to events in
// order. events may be nil. Run never panics on provider errors; every
// failure ends in an Outcome.
func (e *Engine) Run(ctx context.Context, target model.Target, events chan<- model.Event) model.Outcome {
	r := newRun(ctx, target, events)

	if err := e.deps.Gate.Acquire(ctx, 1); err != nil {
		return r.fail("cancelled while waiting for capacity")
	}
	defer e.deps.Gate.Release(1)

	r.advance(model.PhaseSearching)
	r.emit(model.CategoryStatus, "Connection established. Researching %s", target.Label())
	ev, err := e.searchPhase(r)
	if err != nil {
		return r.fail(err.Error())
	}

	r.advance(model.PhaseBrowsing)
	if err := e.browsePhase(r, &ev); err != nil {
		return r.fail(err.Error())
	}

	r.advance(model.PhaseExtracting)
	rec, err := e.extractPhase(r, ev)
	if err != nil {
		return r.fail(err.Error())
	}

	r.advance(model.PhaseFinalizing)
	final := e.finalizePhase(r, rec)
	r.emit(model.CategoryStatus, "Research complete for %s", target.Label())
	r.advance(model.PhaseCompleted)
	return r.outcome(&final, "")
}
