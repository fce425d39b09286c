package relevance

import (
	"context"
	"testing"
	"time"

	"github.com/agentbus/agentbus/internal/agent"
)

func TestValidateActionsStampsMetadata(t *testing.T) {
	v := newTestValidator(nil, &fakeContacts{contact: activeContact()}, nil)
	rv := NewResponseValidator(v)

	good := localAction()
	stale := localAction()
	stale.ID = "act-2"
	stale.ExpiresAt = time.Now().Add(-time.Minute)

	resp := &agent.Response{TraceID: "trace-7"}
	actions := []*agent.Action{&good, &stale}

	results := rv.ValidateActions(context.Background(), resp, actions, "c-1", "")
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	if good.ValidationReason == "" {
		t.Error("validated action must carry a reason")
	}
	if good.RequiresApproval {
		t.Errorf("high-confidence relevant action should not need approval: %+v", good)
	}
	if good.TraceID != "trace-7" {
		t.Errorf("trace = %q, want inherited from the response", good.TraceID)
	}

	if !stale.RequiresApproval {
		t.Error("a non-relevant action must require approval before execution")
	}
	if stale.ApprovalRequestID == "" {
		t.Error("approval-required action must carry an approval request ID")
	}
}

func TestValidateActionsLowConfidenceRequiresApproval(t *testing.T) {
	// Inconclusive local validations fail closed with confidence 0.3,
	// which is under the approval cutoff.
	contact := activeContact()
	contact.LastInteractionAt = time.Now().Add(-30 * time.Minute)
	v := newTestValidator(nil, &fakeContacts{contact: contact}, nil)
	rv := NewResponseValidator(v)

	action := localAction()
	rv.ValidateActions(context.Background(), nil, []*agent.Action{&action}, "c-1", "")

	if !action.RequiresApproval || action.ApprovalRequestID == "" {
		t.Errorf("action = %+v", action)
	}
	if action.ConfidenceScore != 0.3 {
		t.Errorf("confidence = %f, want 0.3", action.ConfidenceScore)
	}
}

func TestValidateActionsPreservesApprovalID(t *testing.T) {
	v := newTestValidator(nil, nil, nil)
	rv := NewResponseValidator(v)

	action := agent.Action{} // invalid, will fail validation
	action.ApprovalRequestID = "appr-1"

	rv.ValidateActions(context.Background(), nil, []*agent.Action{&action}, "c-1", "")
	if action.ApprovalRequestID != "appr-1" {
		t.Errorf("existing approval request must be kept, got %q", action.ApprovalRequestID)
	}
}
