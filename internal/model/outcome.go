package model

import "time"

// Usage tallies external consumption for one target.
type Usage struct {
	SearchQueries     int     `json:"search_queries" yaml:"search_queries"`
	PerplexityQueries int     `json:"perplexity_queries" yaml:"perplexity_queries"`
	PagesRead         int     `json:"pages_read" yaml:"pages_read"`
	FirecrawlPages    int     `json:"firecrawl_pages" yaml:"firecrawl_pages"`
	ReaderTokens      int     `json:"reader_tokens" yaml:"reader_tokens"`
	InputTokens       int64   `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens      int64   `json:"output_tokens" yaml:"output_tokens"`
	CacheReadTokens   int64   `json:"cache_read_tokens" yaml:"cache_read_tokens"`
	CacheWriteTokens  int64   `json:"cache_write_tokens" yaml:"cache_write_tokens"`
	CostUSD           float64 `json:"cost_usd" yaml:"cost_usd"`
}

// Outcome is the terminal result of one research run: a record when the run
// completed, a failure reason otherwise.
type Outcome struct {
	Target     Target            `json:"target"`
	Phase      Phase             `json:"phase"`
	Record     *ExtractionRecord `json:"record,omitempty"`
	Failure    string            `json:"failure,omitempty"`
	FailedIn   Phase             `json:"failed_in,omitempty"`
	Cancelled  bool              `json:"cancelled,omitempty"`
	Usage      Usage             `json:"usage"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Persistable reports whether the outcome is terminal and was not cut short
// by cancellation.
func (o Outcome) Persistable() bool {
	return o.Phase.Terminal() && !o.Cancelled
}

// Succeeded reports whether the run reached completed with a record.
func (o Outcome) Succeeded() bool {
	return o.Phase == PhaseCompleted && o.Record != nil
}

// Err returns a TargetFailure for failed outcomes, nil otherwise.
func (o Outcome) Err() error {
	if o.Succeeded() {
		return nil
	}
	return &TargetFailure{Target: o.Target.Label(), Phase: o.FailedIn, Reason: o.Failure}
}
