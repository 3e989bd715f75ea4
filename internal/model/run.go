package model

import "time"

// RunStatus is the persisted status of a finished research run.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is a persisted research outcome. Only terminal outcomes are stored.
type Run struct {
	ID         string            `json:"id"`
	BatchID    string            `json:"batch_id,omitempty"`
	Target     Target            `json:"target"`
	Status     RunStatus         `json:"status"`
	Record     *ExtractionRecord `json:"record,omitempty"`
	Failure    string            `json:"failure,omitempty"`
	FailedIn   Phase             `json:"failed_in,omitempty"`
	Usage      Usage             `json:"usage"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// RunFromOutcome converts a terminal outcome into a persistable run.
func RunFromOutcome(o Outcome, batchID string) Run {
	r := Run{
		BatchID:    batchID,
		Target:     o.Target,
		Status:     RunStatusCompleted,
		Record:     o.Record,
		Failure:    o.Failure,
		FailedIn:   o.FailedIn,
		Usage:      o.Usage,
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
	}
	if !o.Succeeded() {
		r.Status = RunStatusFailed
	}
	return r
}

// BatchSummary is the persisted record of a completed batch.
type BatchSummary struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	ReportName string    `json:"report_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}
