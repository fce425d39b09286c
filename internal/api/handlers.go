package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentbus/agentbus/internal/agent"
	"github.com/agentbus/agentbus/internal/audit"
	"github.com/agentbus/agentbus/internal/bus"
	"github.com/agentbus/agentbus/internal/relevance"
)

func (s *Server) listAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Capabilities())
}

func (s *Server) agentHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Health())
}

func (s *Server) unregisterAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if !s.registry.Unregister(agentID) {
		http.Error(w, "unknown agent", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type routeRequestBody struct {
	Intent        string         `json:"intent"`
	Input         string         `json:"input"`
	InteractionID string         `json:"interaction_id,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
	Urgency       string         `json:"urgency,omitempty"`
}

func (b routeRequestBody) toRequest() (*agent.Request, error) {
	if b.Intent == "" {
		return nil, errors.New("intent is required")
	}
	req := agent.NewRequest(b.Intent, b.Input)
	req.InteractionID = b.InteractionID
	req.Context = b.Context
	if b.Urgency != "" {
		req.Urgency = agent.Urgency(b.Urgency)
	}
	return req, nil
}

func (s *Server) routeRequest(w http.ResponseWriter, r *http.Request) {
	var body routeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.bus.RouteRequest(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, bus.ErrTimeout) {
			// Retryable: the agent's concurrency slots were all busy.
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type workflowBody struct {
	WorkflowID string           `json:"workflow_id"`
	Request    routeRequestBody `json:"request"`
}

func (s *Server) executeWorkflow(w http.ResponseWriter, r *http.Request) {
	var body workflowBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if body.WorkflowID == "" {
		http.Error(w, "workflow_id is required", http.StatusBadRequest)
		return
	}
	req, err := body.Request.toRequest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state, err := s.bus.ExecuteWorkflow(r.Context(), body.WorkflowID, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) workflowState(w http.ResponseWriter, r *http.Request) {
	state, ok := s.bus.WorkflowState(chi.URLParam(r, "workflowID"))
	if !ok {
		http.Error(w, "unknown workflow", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) setOrchestrationMethod(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Method string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.bus.SetOrchestrationMethod(body.Method); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validateBody struct {
	Action    agent.Action `json:"action"`
	ContactID string       `json:"contact_id"`
	OrgID     string       `json:"org_id,omitempty"`
}

func (s *Server) validateAction(w http.ResponseWriter, r *http.Request) {
	var body validateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	result := s.validator.Validate(r.Context(), relevance.Request{
		Action:    body.Action,
		ContactID: body.ContactID,
		OrgID:     body.OrgID,
	})
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) validateBatch(w http.ResponseWriter, r *http.Request) {
	var bodies []validateBody
	if err := json.NewDecoder(r.Body).Decode(&bodies); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	reqs := make([]relevance.Request, len(bodies))
	for i, b := range bodies {
		reqs[i] = relevance.Request{Action: b.Action, ContactID: b.ContactID, OrgID: b.OrgID}
	}
	writeJSON(w, http.StatusOK, s.validator.ValidateBatch(r.Context(), reqs))
}

func (s *Server) suggestAlternatives(w http.ResponseWriter, r *http.Request) {
	var body validateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	alts := s.validator.SuggestAlternatives(r.Context(), body.Action, body.ContactID, body.OrgID)
	if alts == nil {
		alts = []agent.Action{}
	}
	writeJSON(w, http.StatusOK, alts)
}

type complianceBody struct {
	Response *agent.Response `json:"response"`
	Actions  []*agent.Action `json:"actions"`
	// Validate runs the relevance pipeline over the actions first, stamping
	// validation metadata before the compliance check.
	Validate  bool   `json:"validate,omitempty"`
	ContactID string `json:"contact_id,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
}

func (s *Server) checkCompliance(w http.ResponseWriter, r *http.Request) {
	var body complianceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if body.Validate {
		s.responses.ValidateActions(r.Context(), body.Response, body.Actions, body.ContactID, body.OrgID)
	}

	result := s.checker.ValidateResponse(r.Context(), body.Response, body.Actions)
	writeJSON(w, http.StatusOK, struct {
		Result  any             `json:"result"`
		Actions []*agent.Action `json:"actions"`
	}{result, body.Actions})
}

func (s *Server) auditValidations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		ContactID:  q.Get("contact_id"),
		ActionKind: q.Get("action_kind"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		f.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid since (want RFC3339)", http.StatusBadRequest)
			return
		}
		f.Since = t
	}

	entries, err := s.store.Validations(r.Context(), f)
	if err != nil {
		log.Printf("api: audit query: %v", err)
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}
