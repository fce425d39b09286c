package relevance

import (
	"context"

	"github.com/google/uuid"

	"github.com/agentbus/agentbus/internal/agent"
)

// ResponseValidator validates the actions attached to an agent response and
// stamps the validation metadata onto them. It is a thin façade over the
// Validator: all tier logic lives there, this type only adapts shapes and
// applies results.
type ResponseValidator struct {
	validator *Validator
}

func NewResponseValidator(v *Validator) *ResponseValidator {
	return &ResponseValidator{validator: v}
}

// ValidateActions runs the pipeline for every action in place. Each action
// receives its ValidationReason and ConfidenceScore; low-confidence verdicts
// additionally get RequiresApproval and a fresh ApprovalRequestID so the
// compliance gate can let them through once a human signs off. After this
// call the actions are frozen.
func (rv *ResponseValidator) ValidateActions(ctx context.Context, resp *agent.Response, actions []*agent.Action, contactID, orgID string) []*agent.RelevanceResult {
	cfg := rv.validator.Config()

	results := make([]*agent.RelevanceResult, len(actions))
	for i, action := range actions {
		if action.TraceID == "" && resp != nil {
			action.TraceID = resp.TraceID
		}
		res := rv.validator.Validate(ctx, Request{
			Action:    *action,
			ContactID: contactID,
			OrgID:     orgID,
		})
		results[i] = res

		action.ValidationReason = res.Reasoning
		action.ConfidenceScore = res.ConfidenceScore
		if res.ConfidenceScore < cfg.ApprovalBelow || !res.IsRelevant {
			action.RequiresApproval = true
			if action.ApprovalRequestID == "" {
				action.ApprovalRequestID = uuid.NewString()
			}
		}
	}
	return results
}
