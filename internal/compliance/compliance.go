// Package compliance is the last gate before agent-proposed actions leave the
// system. It never validates relevance itself; it checks that the relevance
// pipeline already did, and refuses responses carrying actions that skipped it.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/agentbus/agentbus/internal/agent"
	"github.com/agentbus/agentbus/internal/audit"
	"github.com/agentbus/agentbus/internal/metrics"
)

// ErrComplianceViolation marks responses rejected by EnsureCompliance.
var ErrComplianceViolation = errors.New("response contains unvalidated actions")

const severityCritical = "Critical"

// Result reports the per-action outcome of a response check.
type Result struct {
	TraceID            string
	TotalActions       int
	ValidatedActions   int
	UnvalidatedActions int
	Violations         []Violation
	IsCompliant        bool
}

// Violation names one action that failed the check and why.
type Violation struct {
	ActionID string
	Kind     string
	Reason   string
}

// Checker verifies that actions attached to responses carry complete
// validation metadata. Violations are reported to the audit sink and counted.
type Checker struct {
	sink    audit.Sink
	metrics *metrics.Metrics
}

func NewChecker(sink audit.Sink, m *metrics.Metrics) *Checker {
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Checker{sink: sink, metrics: m}
}

// IsActionValidated reports whether an action carries the full validation
// contract: a non-empty reason, a confidence score inside [0, 1], and an
// approval request ID whenever approval is required.
func IsActionValidated(action *agent.Action) bool {
	if action == nil {
		return false
	}
	if action.ValidationReason == "" {
		return false
	}
	if action.ConfidenceScore < 0 || action.ConfidenceScore > 1 {
		return false
	}
	if action.RequiresApproval && action.ApprovalRequestID == "" {
		return false
	}
	return true
}

// ValidateResponse checks every action and reports violations. The check is
// read-only: the response and its actions are never mutated here.
func (c *Checker) ValidateResponse(ctx context.Context, resp *agent.Response, actions []*agent.Action) Result {
	result := Result{IsCompliant: true}
	if resp != nil {
		result.TraceID = resp.TraceID
	}
	result.TotalActions = len(actions)

	for _, action := range actions {
		if IsActionValidated(action) {
			result.ValidatedActions++
			continue
		}
		result.UnvalidatedActions++
		result.IsCompliant = false
		result.Violations = append(result.Violations, Violation{
			ActionID: action.ID,
			Kind:     action.Kind,
			Reason:   violationReason(action),
		})
	}

	for _, viol := range result.Violations {
		c.report(ctx, result.TraceID, viol)
	}
	return result
}

// EnsureCompliance is ValidateResponse with teeth: a non-compliant response
// comes back as an error the bus can refuse to deliver.
func (c *Checker) EnsureCompliance(ctx context.Context, resp *agent.Response, actions []*agent.Action) error {
	result := c.ValidateResponse(ctx, resp, actions)
	if result.IsCompliant {
		return nil
	}
	return fmt.Errorf("trace %s: %d of %d actions unvalidated: %w",
		result.TraceID, result.UnvalidatedActions, result.TotalActions, ErrComplianceViolation)
}

func (c *Checker) report(ctx context.Context, traceID string, viol Violation) {
	if c.metrics != nil {
		c.metrics.ComplianceViolations.Inc()
	}
	rec := audit.Violation{
		ID:         uuid.NewString(),
		TraceID:    traceID,
		ActionID:   viol.ActionID,
		Severity:   severityCritical,
		Reason:     fmt.Sprintf("%s: %s", viol.Kind, viol.Reason),
		ReportedAt: time.Now(),
	}
	if err := c.sink.RecordViolation(ctx, rec); err != nil {
		log.Printf("compliance: audit sink unavailable, keeping violation locally: %+v: %v", rec, err)
	}
}

func violationReason(action *agent.Action) string {
	if action == nil {
		return "nil action"
	}
	switch {
	case action.ValidationReason == "":
		return "missing validation reason"
	case action.ConfidenceScore < 0 || action.ConfidenceScore > 1:
		return fmt.Sprintf("confidence score %.2f outside [0, 1]", action.ConfidenceScore)
	case action.RequiresApproval && action.ApprovalRequestID == "":
		return "approval required but no approval request recorded"
	default:
		return "unvalidated action"
	}
}
