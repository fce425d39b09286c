package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HandlerFunc handles one intent for a mux-built agent.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Mux dispatches requests to intent handlers through a lookup table. It
// implements Handle, so a set of handler funcs becomes an in-process agent.
// An unknown intent is answered with a failed response rather than an error,
// mirroring how a 400 is a response, not a transport failure.
type Mux struct {
	mu       sync.RWMutex
	agentID  string
	handlers map[string]HandlerFunc
}

func NewMux(agentID string) *Mux {
	return &Mux{
		agentID:  agentID,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers fn for intent, replacing any previous handler.
func (m *Mux) Handle(intent string, fn HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[intent] = fn
}

// Intents returns the registered intents, sorted.
func (m *Mux) Intents() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	intents := make([]string, 0, len(m.handlers))
	for intent := range m.handlers {
		intents = append(intents, intent)
	}
	sort.Strings(intents)
	return intents
}

// ExecuteTask implements Handle.
func (m *Mux) ExecuteTask(ctx context.Context, req *Request) (*Response, error) {
	m.mu.RLock()
	fn, ok := m.handlers[req.Intent]
	m.mu.RUnlock()

	if !ok {
		return &Response{
			RequestID:    req.ID,
			TraceID:      req.TraceID,
			Success:      false,
			AgentID:      m.agentID,
			ErrorMessage: fmt.Sprintf("unsupported intent %q", req.Intent),
		}, nil
	}

	start := time.Now()
	resp, err := fn(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.RequestID == "" {
		resp.RequestID = req.ID
	}
	if resp.TraceID == "" {
		resp.TraceID = req.TraceID
	}
	if resp.AgentID == "" {
		resp.AgentID = m.agentID
	}
	if resp.ProcessingTimeMs == 0 {
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()
	}
	return resp, nil
}
