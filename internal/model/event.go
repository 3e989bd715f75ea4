package model

import "time"

// Category classifies a LogEvent for display.
type Category string

const (
	CategorySearch  Category = "search"
	CategoryBrowse  Category = "browse"
	CategoryExtract Category = "extract"
	CategoryStatus  Category = "status"
	CategoryError   Category = "error"
)

// LogEvent is one timestamped unit of progress narrative. Phase is the
// machine state that produced it; Content is for humans only.
type LogEvent struct {
	Seq       int       `json:"seq"`
	Target    string    `json:"target"`
	Phase     Phase     `json:"phase"`
	Category  Category  `json:"category"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Progress reports batch advancement after a target finishes.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Target  string `json:"target"`
	Status  string `json:"status"`
}

// EventKind distinguishes the payloads carried on an event stream.
type EventKind string

const (
	EventLog      EventKind = "log"
	EventProgress EventKind = "progress"
)

// Event is the unit carried on the ordered channel between the orchestration
// components and the streaming session.
type Event struct {
	Kind     EventKind `json:"kind"`
	Log      *LogEvent `json:"log,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
}

// LogEventOf wraps a LogEvent.
func LogEventOf(e LogEvent) Event {
	return Event{Kind: EventLog, Log: &e}
}

// ProgressEventOf wraps a Progress tuple.
func ProgressEventOf(p Progress) Event {
	return Event{Kind: EventProgress, Progress: &p}
}
