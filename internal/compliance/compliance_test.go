package compliance

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/agentbus/agentbus/internal/agent"
	"github.com/agentbus/agentbus/internal/audit"
)

type recordingSink struct {
	mu         sync.Mutex
	violations []audit.Violation
	err        error
}

func (s *recordingSink) Record(context.Context, audit.Entry) error { return nil }

func (s *recordingSink) RecordViolation(_ context.Context, v audit.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.violations = append(s.violations, v)
	return nil
}

func (s *recordingSink) recorded() []audit.Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Violation(nil), s.violations...)
}

func validatedAction() *agent.Action {
	return &agent.Action{
		ID:               "act-1",
		Kind:             "send_email",
		ValidationReason: "within validity window",
		ConfidenceScore:  0.8,
	}
}

func TestIsActionValidated(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*agent.Action)
		want   bool
	}{
		{"fully validated", func(*agent.Action) {}, true},
		{"missing reason", func(a *agent.Action) { a.ValidationReason = "" }, false},
		{"confidence below zero", func(a *agent.Action) { a.ConfidenceScore = -0.1 }, false},
		{"confidence above one", func(a *agent.Action) { a.ConfidenceScore = 1.1 }, false},
		{"confidence at bounds", func(a *agent.Action) { a.ConfidenceScore = 1.0 }, true},
		{"zero confidence with reason", func(a *agent.Action) { a.ConfidenceScore = 0 }, true},
		{
			"approval required without request",
			func(a *agent.Action) { a.RequiresApproval = true },
			false,
		},
		{
			"approval required with request",
			func(a *agent.Action) { a.RequiresApproval = true; a.ApprovalRequestID = "appr-1" },
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := validatedAction()
			tt.mutate(action)
			if got := IsActionValidated(action); got != tt.want {
				t.Errorf("IsActionValidated = %v, want %v", got, tt.want)
			}
		})
	}

	if IsActionValidated(nil) {
		t.Error("nil action must not be validated")
	}
}

func TestValidateResponseCompliant(t *testing.T) {
	sink := &recordingSink{}
	c := NewChecker(sink, nil)

	result := c.ValidateResponse(context.Background(),
		&agent.Response{TraceID: "trace-1"},
		[]*agent.Action{validatedAction(), validatedAction()})

	if !result.IsCompliant {
		t.Errorf("result = %+v", result)
	}
	if result.TotalActions != 2 || result.ValidatedActions != 2 || result.UnvalidatedActions != 0 {
		t.Errorf("counts = %+v", result)
	}
	if len(sink.recorded()) != 0 {
		t.Error("compliant responses must not report violations")
	}
}

func TestValidateResponseViolations(t *testing.T) {
	sink := &recordingSink{}
	c := NewChecker(sink, nil)

	bad := validatedAction()
	bad.ID = "act-bad"
	bad.ValidationReason = ""

	result := c.ValidateResponse(context.Background(),
		&agent.Response{TraceID: "trace-1"},
		[]*agent.Action{validatedAction(), bad})

	if result.IsCompliant {
		t.Error("response with an unvalidated action must not be compliant")
	}
	if result.ValidatedActions != 1 || result.UnvalidatedActions != 1 {
		t.Errorf("counts = %+v", result)
	}
	if len(result.Violations) != 1 || result.Violations[0].ActionID != "act-bad" {
		t.Errorf("violations = %+v", result.Violations)
	}

	reported := sink.recorded()
	if len(reported) != 1 {
		t.Fatalf("reported = %d, want 1", len(reported))
	}
	if reported[0].Severity != "Critical" {
		t.Errorf("severity = %q, want Critical", reported[0].Severity)
	}
	if reported[0].TraceID != "trace-1" {
		t.Errorf("trace = %q", reported[0].TraceID)
	}
}

func TestValidateResponseReadOnly(t *testing.T) {
	c := NewChecker(nil, nil)
	bad := &agent.Action{ID: "act-1", Kind: "send_email"}

	c.ValidateResponse(context.Background(), nil, []*agent.Action{bad})

	if bad.ValidationReason != "" || bad.RequiresApproval {
		t.Error("the compliance check must never mutate actions")
	}
}

func TestEnsureCompliance(t *testing.T) {
	c := NewChecker(nil, nil)

	if err := c.EnsureCompliance(context.Background(), nil, []*agent.Action{validatedAction()}); err != nil {
		t.Fatalf("compliant response must pass: %v", err)
	}

	bad := validatedAction()
	bad.ConfidenceScore = 2.0
	err := c.EnsureCompliance(context.Background(), &agent.Response{TraceID: "t-1"}, []*agent.Action{bad})
	if !errors.Is(err, ErrComplianceViolation) {
		t.Errorf("err = %v, want ErrComplianceViolation", err)
	}
	if !strings.Contains(err.Error(), "1 of 1") {
		t.Errorf("err = %v", err)
	}
}

func TestViolationReasons(t *testing.T) {
	noReason := validatedAction()
	noReason.ValidationReason = ""
	if got := violationReason(noReason); got != "missing validation reason" {
		t.Errorf("reason = %q", got)
	}

	badScore := validatedAction()
	badScore.ConfidenceScore = 1.5
	if got := violationReason(badScore); !strings.Contains(got, "outside [0, 1]") {
		t.Errorf("reason = %q", got)
	}

	noApproval := validatedAction()
	noApproval.RequiresApproval = true
	if got := violationReason(noApproval); !strings.Contains(got, "no approval request") {
		t.Errorf("reason = %q", got)
	}
}

func TestSinkFailureDoesNotFailCheck(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	c := NewChecker(sink, nil)

	bad := &agent.Action{ID: "act-1", Kind: "x"}
	result := c.ValidateResponse(context.Background(), nil, []*agent.Action{bad})
	if result.IsCompliant {
		t.Error("check result must not depend on the sink")
	}
}

func TestEmptyActionsCompliant(t *testing.T) {
	c := NewChecker(nil, nil)
	result := c.ValidateResponse(context.Background(), &agent.Response{}, nil)
	if !result.IsCompliant || result.TotalActions != 0 {
		t.Errorf("result = %+v", result)
	}
}
