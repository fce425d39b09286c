package registry

import (
	"context"
	"time"

	"github.com/agentbus/agentbus/internal/agent"
)

const pingTimeout = 5 * time.Second

// CheckNow probes every registered agent and refreshes its health snapshot.
// Handles that implement agent.Pinger are pinged with a bounded timeout;
// the rest are assumed healthy while active. Probe failures never propagate.
func (r *Registry) CheckNow(ctx context.Context) {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.entries))
	for id, e := range r.entries {
		entries[id] = e
	}
	r.mu.RUnlock()

	for id, e := range entries {
		status := r.probe(ctx, id, e)
		e.mu.Lock()
		e.health = status
		e.mu.Unlock()
	}
}

func (r *Registry) probe(ctx context.Context, agentID string, e *entry) agent.HealthStatus {
	e.mu.Lock()
	handle := e.handle
	active := e.cap.IsActive
	e.mu.Unlock()

	status := agent.HealthStatus{
		AgentID:     agentID,
		LastChecked: time.Now(),
	}

	if !active {
		status.Status = "inactive"
		return status
	}

	pinger, ok := handle.(agent.Pinger)
	if !ok {
		status.IsHealthy = true
		status.Status = "active"
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := pinger.Ping(pingCtx)
	status.ResponseTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		status.Status = "unhealthy"
		status.ErrorMessage = err.Error()
		return status
	}
	status.IsHealthy = true
	status.Status = "healthy"
	return status
}

// Health returns the latest health snapshot for every agent. Staleness is
// bounded by the health-check interval; call CheckNow for fresh data.
func (r *Registry) Health() map[string]agent.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]agent.HealthStatus, len(r.entries))
	for id, e := range r.entries {
		e.mu.Lock()
		out[id] = e.health
		e.mu.Unlock()
	}
	return out
}
