package agent

import "time"

// ActionScope controls how much of the relevance pipeline an action must
// pass through before it may execute.
type ActionScope string

const (
	// ScopeLocal marks low-risk actions confined to a single contact; the
	// validator may skip the LLM tier for these.
	ScopeLocal ActionScope = "local"
	// ScopeCrossContact marks high-risk actions that touch more than one
	// contact; every validation tier runs for these.
	ScopeCrossContact ActionScope = "cross_contact"
)

// Action is any agent-proposed action: a recommendation, a resource
// assignment, a scheduled follow-up. One struct carries the shared
// validation fields; Kind plus Params hold the variant-specific payload.
//
// The validation pipeline is the only writer of ValidationReason,
// RequiresApproval and ApprovalRequestID; once validation completes the
// action is frozen. An action is compliant iff ValidationReason is non-empty,
// ConfidenceScore is within [0,1], and approval, when required, carries an
// ApprovalRequestID.
type Action struct {
	ID                string            `json:"id"`
	Kind              string            `json:"kind"`
	Description       string            `json:"description"`
	Priority          int               `json:"priority"`
	ConfidenceScore   float64           `json:"confidence_score"`
	ValidationReason  string            `json:"validation_reason,omitempty"`
	RequiresApproval  bool              `json:"requires_approval,omitempty"`
	ApprovalRequestID string            `json:"approval_request_id,omitempty"`
	Params            map[string]string `json:"params,omitempty"`
	SuggestedTiming   time.Time         `json:"suggested_timing,omitempty"`
	TraceID           string            `json:"trace_id,omitempty"`
	Scope             ActionScope       `json:"scope"`
	ContactID         string            `json:"contact_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	ExpiresAt         time.Time         `json:"expires_at,omitempty"`
}

// Expired reports whether the action has an expiry in the past.
func (a *Action) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// RelevanceResult is the immutable outcome of one validation pipeline run.
type RelevanceResult struct {
	ActionID        string    `json:"action_id"`
	IsRelevant      bool      `json:"is_relevant"`
	ConfidenceScore float64   `json:"confidence_score"`
	Reasoning       string    `json:"reasoning"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
	Alternatives    []Action  `json:"alternatives,omitempty"`
}

// ContactContext is the current relationship snapshot the validator reads.
// It is produced by an external lookup collaborator.
type ContactContext struct {
	ContactID         string            `json:"contact_id"`
	OrgID             string            `json:"org_id,omitempty"`
	RelationshipState string            `json:"relationship_state"`
	LifecycleStage    string            `json:"lifecycle_stage,omitempty"`
	Sentiment         float64           `json:"sentiment"`
	LastInteractionAt time.Time         `json:"last_interaction_at"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}
