// Package audit records the document lifecycle: every upload, ingest,
// removal and reindex, with its outcome and the request that caused it.
package audit

import "time"

// Action describes what was done.
type Action string

const (
	ActionUpload  Action = "upload"
	ActionIngest  Action = "ingest"
	ActionRemove  Action = "remove"
	ActionReindex Action = "reindex"
)

// Outcome is the result of an action.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// Entry is a single audit trail record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    Action    `json:"action"`
	Document  string    `json:"document,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Summary   string    `json:"summary"`
	Detail    string    `json:"detail,omitempty"`
}
