package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyNormal   Urgency = "normal"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// IntentGeneralInquiry is the fallback intent the bus tries once when no
// agent matches the requested intent.
const IntentGeneralInquiry = "general_inquiry"

// PerformanceMetrics is a rolling view of an agent's recent behavior,
// maintained by the registry and read by the bus during selection.
type PerformanceMetrics struct {
	SuccessRate       float64 `json:"success_rate"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	AvgConfidence     float64 `json:"avg_confidence"`
	TotalRequests     int64   `json:"total_requests"`
}

// Capability describes what a registered agent can do.
type Capability struct {
	AgentID             string             `json:"agent_id"`
	AgentName           string             `json:"agent_name"`
	Version             string             `json:"version"`
	SupportedIntents    []string           `json:"supported_intents"`
	SupportedTasks      []string           `json:"supported_tasks,omitempty"`
	RequiredPermissions []string           `json:"required_permissions,omitempty"`
	Industries          []string           `json:"industries,omitempty"`
	IsActive            bool               `json:"is_active"`
	Metrics             PerformanceMetrics `json:"metrics"`
}

// SupportsIntent reports whether the capability declares the given intent.
func (c *Capability) SupportsIntent(intent string) bool {
	for _, i := range c.SupportedIntents {
		if i == intent {
			return true
		}
	}
	return false
}

// SupportsIndustry reports whether the capability serves the given industry.
// An empty industry filter or an empty Industries list matches everything.
func (c *Capability) SupportsIndustry(industry string) bool {
	if industry == "" || len(c.Industries) == 0 {
		return true
	}
	for _, i := range c.Industries {
		if i == industry {
			return true
		}
	}
	return false
}

// HealthStatus is a transient snapshot of one agent's health. It is refreshed
// by the registry's health checks and never persisted.
type HealthStatus struct {
	AgentID        string    `json:"agent_id"`
	IsHealthy      bool      `json:"is_healthy"`
	Status         string    `json:"status"`
	LastChecked    time.Time `json:"last_checked"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// Request is a single routed unit of work. It is immutable once dispatched;
// a follow-up is always a new Request derived via FollowUp.
type Request struct {
	ID                  string         `json:"id"`
	TraceID             string         `json:"trace_id"`
	Intent              string         `json:"intent"`
	Input               string         `json:"input"`
	InteractionID       string         `json:"interaction_id,omitempty"`
	Context             map[string]any `json:"context,omitempty"`
	Urgency             Urgency        `json:"urgency,omitempty"`
	OrchestrationMethod string         `json:"orchestration_method,omitempty"`
	SourceAgentID       string         `json:"source_agent_id,omitempty"`
}

// NewRequest creates a request with fresh ID and trace ID.
func NewRequest(intent, input string) *Request {
	return &Request{
		ID:      uuid.NewString(),
		TraceID: uuid.NewString(),
		Intent:  intent,
		Input:   input,
		Urgency: UrgencyNormal,
	}
}

// Response is produced once per routed request.
type Response struct {
	RequestID        string         `json:"request_id"`
	TraceID          string         `json:"trace_id"`
	Success          bool           `json:"success"`
	Content          string         `json:"content,omitempty"`
	Confidence       float64        `json:"confidence"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	AgentID          string         `json:"agent_id,omitempty"`
	RequiresFollowUp bool           `json:"requires_follow_up,omitempty"`
	NextIntent       string         `json:"next_intent,omitempty"`
	// OrchestrationMethod records the bus-wide routing mode in effect when
	// this response was produced.
	OrchestrationMethod string         `json:"orchestration_method,omitempty"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	Data                map[string]any `json:"data,omitempty"`
}

// FollowUp derives the next request in a workflow chain from a response that
// asked for one. The original request is never mutated: the follow-up gets a
// fresh ID, keeps the trace, and records which agent produced it.
func FollowUp(resp *Response) *Request {
	return &Request{
		ID:            uuid.NewString(),
		TraceID:       resp.TraceID,
		Intent:        resp.NextIntent,
		Input:         resp.Content,
		SourceAgentID: resp.AgentID,
		Urgency:       UrgencyNormal,
	}
}

// Handle is the invocation surface every registered agent implements,
// in-process or remote.
type Handle interface {
	ExecuteTask(ctx context.Context, req *Request) (*Response, error)
}

// Pinger is optionally implemented by handles that support cheap liveness
// probes; the registry's health checker uses it when present.
type Pinger interface {
	Ping(ctx context.Context) error
}
