// Package registry holds registered agents, their declared capabilities and
// their rolling performance metrics. It is the only broadly shared mutable
// state in the control plane: the capability map sits behind an RWMutex and
// metric updates take a per-agent lock so readers never wait on a slow writer.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentbus/agentbus/internal/agent"
)

// metricsAlpha is the exponential weight given to the newest observation.
const metricsAlpha = 0.2

type entry struct {
	mu     sync.Mutex
	cap    agent.Capability
	handle agent.Handle
	health agent.HealthStatus
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds an agent under its ID. Registering over an existing entry is
// only allowed when the previous entry is inactive; an active entry must be
// unregistered first.
func (r *Registry) Register(agentID string, handle agent.Handle, cap agent.Capability) error {
	if agentID == "" {
		return fmt.Errorf("register: agent id is required")
	}
	if handle == nil {
		return fmt.Errorf("register %q: handle is required", agentID)
	}
	if len(cap.SupportedIntents) == 0 {
		return fmt.Errorf("register %q: capability declares no intents", agentID)
	}

	cap.AgentID = agentID
	cap.IsActive = true

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.entries[agentID]; exists {
		prev.mu.Lock()
		active := prev.cap.IsActive
		prev.mu.Unlock()
		if active {
			return fmt.Errorf("agent %q already registered", agentID)
		}
	}

	r.entries[agentID] = &entry{
		cap:    cap,
		handle: handle,
		health: agent.HealthStatus{AgentID: agentID, IsHealthy: true, Status: "registered"},
	}
	return nil
}

// Unregister removes an agent. Returns false when the agent is not known.
// In-flight requests hold their own handle reference and complete normally.
func (r *Registry) Unregister(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[agentID]; !ok {
		return false
	}
	delete(r.entries, agentID)
	return true
}

// Deactivate marks an agent inactive without removing it. Inactive agents are
// excluded from routing candidacy and may be re-registered over.
func (r *Registry) Deactivate(agentID string) bool {
	r.mu.RLock()
	e, ok := r.entries[agentID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	e.cap.IsActive = false
	e.mu.Unlock()
	return true
}

// FindForIntent returns all active capabilities supporting intent, optionally
// filtered by industry ("" matches any). A miss is an empty slice, not an
// error.
func (r *Registry) FindForIntent(intent, industry string) []agent.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]agent.Capability, 0)
	for _, e := range r.entries {
		e.mu.Lock()
		cap := e.cap
		e.mu.Unlock()
		if !cap.IsActive {
			continue
		}
		if !cap.SupportsIntent(intent) || !cap.SupportsIndustry(industry) {
			continue
		}
		result = append(result, cap)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].AgentID < result[j].AgentID
	})
	return result
}

// Handle returns the invocation handle for an agent.
func (r *Registry) Handle(agentID string) (agent.Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[agentID]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// Capability returns a copy of one agent's capability.
func (r *Registry) Capability(agentID string) (agent.Capability, bool) {
	r.mu.RLock()
	e, ok := r.entries[agentID]
	r.mu.RUnlock()
	if !ok {
		return agent.Capability{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cap, true
}

// Capabilities returns a snapshot of every registered capability, sorted by
// agent ID.
func (r *Registry) Capabilities() []agent.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make([]agent.Capability, 0, len(r.entries))
	for _, e := range r.entries {
		e.mu.Lock()
		caps = append(caps, e.cap)
		e.mu.Unlock()
	}
	sort.Slice(caps, func(i, j int) bool {
		return caps[i].AgentID < caps[j].AgentID
	})
	return caps
}

// UpdateMetrics folds one observation into an agent's rolling metrics using
// an exponentially weighted average. Unknown agents are ignored; the caller
// may have raced an unregistration and that is fine.
func (r *Registry) UpdateMetrics(agentID string, responseTime time.Duration, success bool, confidence float64) {
	r.mu.RLock()
	e, ok := r.entries[agentID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m := &e.cap.Metrics
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	ms := float64(responseTime.Milliseconds())

	if m.TotalRequests == 0 {
		m.SuccessRate = outcome
		m.AvgResponseTimeMs = ms
		m.AvgConfidence = confidence
	} else {
		m.SuccessRate = (1-metricsAlpha)*m.SuccessRate + metricsAlpha*outcome
		m.AvgResponseTimeMs = (1-metricsAlpha)*m.AvgResponseTimeMs + metricsAlpha*ms
		if success {
			m.AvgConfidence = (1-metricsAlpha)*m.AvgConfidence + metricsAlpha*confidence
		}
	}
	m.TotalRequests++
}
