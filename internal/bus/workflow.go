package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentbus/agentbus/internal/agent"
)

// Workflow lifecycle states.
const (
	StateProcessing = "Processing"
	StateCompleted  = "Completed"
	StateError      = "Error"
)

// WorkflowStep is one append-only history entry.
type WorkflowStep struct {
	StepName     string    `json:"step_name"`
	AgentID      string    `json:"agent_id"`
	IsCompleted  bool      `json:"is_completed"`
	Result       string    `json:"result,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// WorkflowState tracks one caller-identified workflow run. Terminal once
// IsCompleted is set or CurrentState is Error.
type WorkflowState struct {
	WorkflowID         string            `json:"workflow_id"`
	TraceID            string            `json:"trace_id"`
	CurrentState       string            `json:"current_state"`
	PendingRequests    []*agent.Request  `json:"pending_requests,omitempty"`
	CompletedResponses []*agent.Response `json:"completed_responses,omitempty"`
	ExecutionHistory   []WorkflowStep    `json:"execution_history,omitempty"`
	IsCompleted        bool              `json:"is_completed"`
	ErrorMessage       string            `json:"error_message,omitempty"`
	StartedAt          time.Time         `json:"started_at"`
	CompletedAt        time.Time         `json:"completed_at,omitempty"`
}

func (w *WorkflowState) terminal() bool {
	return w.IsCompleted || w.CurrentState == StateError
}

// snapshot returns a copy whose slices are detached from the live state.
// Requests and responses are immutable once recorded, so sharing the
// elements themselves is safe.
func (w *WorkflowState) snapshot() *WorkflowState {
	cp := *w
	cp.PendingRequests = append([]*agent.Request(nil), w.PendingRequests...)
	cp.CompletedResponses = append([]*agent.Response(nil), w.CompletedResponses...)
	cp.ExecutionHistory = append([]WorkflowStep(nil), w.ExecutionHistory...)
	return &cp
}

// WorkflowStore owns all workflow states, keyed by workflow ID. It is an
// explicitly injected dependency of the bus so its lifecycle and locking are
// visible to the host rather than hidden in a package global.
type WorkflowStore struct {
	mu     sync.RWMutex
	states map[string]*WorkflowState
}

func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{states: make(map[string]*WorkflowState)}
}

// Put stores the state, overwriting any prior run under the same ID.
func (s *WorkflowStore) Put(state *WorkflowState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.WorkflowID] = state
}

// Get returns a snapshot of the state, or false when the ID is unknown.
func (s *WorkflowStore) Get(workflowID string) (*WorkflowState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[workflowID]
	if !ok {
		return nil, false
	}
	return state.snapshot(), true
}

// PruneTerminal drops terminal workflows whose completion is older than
// retention. Returns how many were removed.
func (s *WorkflowStore) PruneTerminal(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, state := range s.states {
		if state.terminal() && !state.CompletedAt.IsZero() && state.CompletedAt.Before(cutoff) {
			delete(s.states, id)
			removed++
		}
	}
	return removed
}

// ExecuteWorkflow runs a workflow to completion, following RequiresFollowUp
// chains hop by hop within this single call. The chain stops when an agent
// asks for no further work, a hop fails, ctx is cancelled, or the hop bound
// is reached. Within one workflow the hops are strictly sequential; distinct
// workflow IDs share nothing and interleave freely.
func (b *Bus) ExecuteWorkflow(ctx context.Context, workflowID string, initial *agent.Request) (*WorkflowState, error) {
	if workflowID == "" {
		return nil, fmt.Errorf("workflow: id is required")
	}
	if initial == nil {
		return nil, fmt.Errorf("workflow %q: initial request is required", workflowID)
	}

	state := &WorkflowState{
		WorkflowID:      workflowID,
		TraceID:         initial.TraceID,
		CurrentState:    StateProcessing,
		PendingRequests: []*agent.Request{initial},
		StartedAt:       time.Now(),
	}
	// Workflow IDs are caller-assigned; a reused ID replaces the prior run.
	// The store only ever holds detached snapshots so concurrent lookups
	// never observe a hop in progress.
	b.workflows.Put(state.snapshot())

	hops := 0
	for len(state.PendingRequests) > 0 {
		if hops >= b.maxHops {
			b.finishWorkflow(state, StateError, fmt.Sprintf("workflow exceeded %d hops", b.maxHops))
			break
		}
		if err := ctx.Err(); err != nil {
			b.finishWorkflow(state, StateError, fmt.Sprintf("workflow cancelled: %v", err))
			break
		}

		req := state.PendingRequests[0]
		state.PendingRequests = state.PendingRequests[1:]
		hops++

		resp, err := b.RouteRequest(ctx, req)
		now := time.Now()

		if err != nil {
			state.ExecutionHistory = append(state.ExecutionHistory, WorkflowStep{
				StepName:     stepName(hops, req.Intent),
				ErrorMessage: err.Error(),
				CompletedAt:  now,
			})
			b.finishWorkflow(state, StateError, err.Error())
			break
		}

		state.CompletedResponses = append(state.CompletedResponses, resp)
		state.ExecutionHistory = append(state.ExecutionHistory, WorkflowStep{
			StepName:     stepName(hops, req.Intent),
			AgentID:      resp.AgentID,
			IsCompleted:  resp.Success,
			Result:       resp.Content,
			ErrorMessage: resp.ErrorMessage,
			CompletedAt:  now,
		})

		if !resp.Success {
			b.finishWorkflow(state, StateError, resp.ErrorMessage)
			break
		}

		if resp.RequiresFollowUp && resp.NextIntent != "" {
			// The cancellation check at the top of the loop lets the hop
			// that was already running finish before we stop scheduling.
			state.PendingRequests = append(state.PendingRequests, agent.FollowUp(resp))
			b.workflows.Put(state.snapshot())
			continue
		}

		b.finishWorkflow(state, StateCompleted, "")
		break
	}

	if b.metrics != nil {
		b.metrics.WorkflowHops.Observe(float64(hops))
		outcome := "completed"
		if state.CurrentState == StateError {
			outcome = "error"
		}
		b.metrics.WorkflowsFinished.WithLabelValues(outcome).Inc()
	}

	b.workflows.Put(state.snapshot())
	return state.snapshot(), nil
}

// WorkflowState is a pure lookup with no side effects; calling it twice with
// no intervening mutation yields equal snapshots.
func (b *Bus) WorkflowState(workflowID string) (*WorkflowState, bool) {
	return b.workflows.Get(workflowID)
}

func (b *Bus) finishWorkflow(state *WorkflowState, result, errMessage string) {
	state.CurrentState = result
	state.ErrorMessage = errMessage
	state.IsCompleted = result == StateCompleted
	state.CompletedAt = time.Now()
}

func stepName(hop int, intent string) string {
	return fmt.Sprintf("step-%d:%s", hop, intent)
}
