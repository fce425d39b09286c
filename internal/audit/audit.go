// Package audit records every relevance validation and every compliance
// violation. The write contract is a narrow Sink so hosts can swap in their
// own durable writer; the bundled stores also serve the validation audit
// query used by callers.
package audit

import (
	"context"
	"time"
)

// Entry is one validation audit record; one is written per pipeline run,
// regardless of outcome.
type Entry struct {
	ID              string    `json:"id"`
	TraceID         string    `json:"trace_id,omitempty"`
	ContactID       string    `json:"contact_id,omitempty"`
	ActionID        string    `json:"action_id"`
	ActionKind      string    `json:"action_kind"`
	Tier            string    `json:"tier"`
	IsRelevant      bool      `json:"is_relevant"`
	ConfidenceScore float64   `json:"confidence_score"`
	Reasoning       string    `json:"reasoning"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
}

// Violation is one compliance violation report.
type Violation struct {
	ID         string    `json:"id"`
	TraceID    string    `json:"trace_id,omitempty"`
	ActionID   string    `json:"action_id"`
	Severity   string    `json:"severity"`
	Reason     string    `json:"reason"`
	ReportedAt time.Time `json:"reported_at"`
}

// Sink is the durable audit writer contract.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	RecordViolation(ctx context.Context, v Violation) error
}

// Filter narrows a validation audit query. Zero values match everything.
type Filter struct {
	ContactID  string
	ActionKind string
	Since      time.Time
	Until      time.Time
	Limit      int
}

// Store is a Sink that can also be queried and closed.
type Store interface {
	Sink
	Validations(ctx context.Context, f Filter) ([]Entry, error)
	Close() error
}

// NopSink discards everything; for hosts that disable auditing.
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) error        { return nil }
func (NopSink) RecordViolation(context.Context, Violation) error { return nil }
