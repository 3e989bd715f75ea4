package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// RecordStatus is the lifecycle of one BatchRecord.
type RecordStatus string

const (
	RecordPending RecordStatus = "pending"
	RecordRunning RecordStatus = "running"
	RecordDone    RecordStatus = "done"
	RecordFailed  RecordStatus = "failed"
)

// BatchStatus is the lifecycle of a BatchJob.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchCancelled BatchStatus = "cancelled"
)

// BatchRecord is one target inside a BatchJob.
type BatchRecord struct {
	Index   int          `json:"index"`
	Target  Target       `json:"target"`
	Status  RecordStatus `json:"status"`
	Outcome *Outcome     `json:"outcome,omitempty"`
}

// BatchJob is a confirmed, ordered set of targets. Only the sequential
// driver mutates it, and Processed never decreases.
type BatchJob struct {
	ID         string        `json:"id"`
	Filename   string        `json:"filename"`
	Records    []BatchRecord `json:"records"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Status     BatchStatus   `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
}

// NewBatchJob builds a job with every record pending.
func NewBatchJob(id, filename string, targets []Target) *BatchJob {
	records := make([]BatchRecord, len(targets))
	for i, t := range targets {
		records[i] = BatchRecord{Index: i, Target: t, Status: RecordPending}
	}
	return &BatchJob{
		ID:        id,
		Filename:  filename,
		Records:   records,
		Total:     len(targets),
		Status:    BatchRunning,
		CreatedAt: time.Now().UTC(),
	}
}

// Next returns the index of the next record to process, or -1 when done.
func (j *BatchJob) Next() int {
	if j.Processed >= j.Total {
		return -1
	}
	return j.Processed
}

// Begin marks record i running. Records must be started in order.
func (j *BatchJob) Begin(i int) error {
	if i != j.Processed || i >= j.Total {
		return eris.Errorf("batch: record %d is not next (processed %d of %d)", i, j.Processed, j.Total)
	}
	j.Records[i].Status = RecordRunning
	return nil
}

// Finish records the outcome of record i and returns the progress tuple.
func (j *BatchJob) Finish(i int, o Outcome) (Progress, error) {
	if i != j.Processed || i >= j.Total {
		return Progress{}, eris.Errorf("batch: record %d is not next (processed %d of %d)", i, j.Processed, j.Total)
	}
	rec := &j.Records[i]
	rec.Outcome = &o
	rec.Status = RecordDone
	if !o.Succeeded() {
		rec.Status = RecordFailed
	}
	j.Processed++
	if j.Processed == j.Total {
		j.Status = BatchCompleted
		j.FinishedAt = time.Now().UTC()
	}
	return Progress{
		Current: j.Processed,
		Total:   j.Total,
		Target:  rec.Target.Label(),
		Status:  string(rec.Status),
	}, nil
}

// Done reports whether every record has been processed.
func (j *BatchJob) Done() bool {
	return j.Processed == j.Total
}

// Outcomes returns the outcomes of processed records in input order.
func (j *BatchJob) Outcomes() []Outcome {
	out := make([]Outcome, 0, j.Processed)
	for _, r := range j.Records {
		if r.Outcome != nil {
			out = append(out, *r.Outcome)
		}
	}
	return out
}

// Counts returns succeeded and failed totals.
func (j *BatchJob) Counts() (succeeded, failed int) {
	for _, r := range j.Records {
		switch r.Status {
		case RecordDone:
			succeeded++
		case RecordFailed:
			failed++
		}
	}
	return succeeded, failed
}

// BatchResult is the terminal summary of a completed batch.
type BatchResult struct {
	JobID      string    `json:"job_id"`
	Filename   string    `json:"filename"`
	Count      int       `json:"count"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes"`
	ReportName string    `json:"report_name,omitempty"`
}

// UploadState tracks the upload → analyze → confirm handshake.
type UploadState string

const (
	UploadUploaded UploadState = "uploaded"
	UploadAnalyzed UploadState = "analyzed"
	UploadConsumed UploadState = "consumed"
)

// Upload is a stored record source and its handshake state.
type Upload struct {
	Filename   string      `json:"filename"`
	State      UploadState `json:"state"`
	Targets    []Target    `json:"targets,omitempty"`
	Skipped    int         `json:"skipped"`
	UploadedAt time.Time   `json:"uploaded_at"`
	AnalyzedAt time.Time   `json:"analyzed_at,omitempty"`
}
