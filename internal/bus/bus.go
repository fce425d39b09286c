// Package bus routes requests to the best-matching registered agent and
// drives multi-hop workflow execution. Every caller gets a structured
// response; the only errors that escape are concurrency-limit timeouts and
// context cancellation, both retryable.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/agentbus/agentbus/internal/agent"
	"github.com/agentbus/agentbus/internal/metrics"
	"github.com/agentbus/agentbus/internal/registry"
)

// ErrTimeout is returned when the wait for an agent's concurrency slot
// exceeds the configured bound. Callers may retry.
var ErrTimeout = errors.New("timed out waiting for agent capacity")

const noAgentsMessage = "No suitable agents available"

// Orchestration methods the bus accepts.
const (
	MethodCustom          = "custom"
	MethodFoundryWorkflow = "foundry_workflow"
	MethodConnectedAgent  = "connected_agent"
)

type Options struct {
	// CallTimeout bounds a single agent invocation. Zero means 30s.
	CallTimeout time.Duration
	// SlotWait bounds the wait for a per-agent concurrency slot. Zero means 30s.
	SlotWait time.Duration
	// MaxInFlightPerAgent caps concurrent invocations per agent. Zero means 8.
	MaxInFlightPerAgent int
	// MaxWorkflowHops bounds the follow-up chain of one workflow. Zero means 20.
	MaxWorkflowHops int
	Metrics         *metrics.Metrics
}

type Bus struct {
	registry    *registry.Registry
	workflows   *WorkflowStore
	limiter     *limiter
	metrics     *metrics.Metrics
	method      atomic.Value // string
	callTimeout time.Duration
	maxHops     int
	cron        *cron.Cron
}

func New(reg *registry.Registry, workflows *WorkflowStore, opts Options) *Bus {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.SlotWait <= 0 {
		opts.SlotWait = 30 * time.Second
	}
	if opts.MaxInFlightPerAgent <= 0 {
		opts.MaxInFlightPerAgent = 8
	}
	if opts.MaxWorkflowHops <= 0 {
		opts.MaxWorkflowHops = 20
	}

	b := &Bus{
		registry:    reg,
		workflows:   workflows,
		limiter:     newLimiter(opts.MaxInFlightPerAgent, opts.SlotWait),
		metrics:     opts.Metrics,
		callTimeout: opts.CallTimeout,
		maxHops:     opts.MaxWorkflowHops,
	}
	b.method.Store(MethodCustom)
	return b
}

// SetOrchestrationMethod switches the process-wide routing mode. The change
// applies to subsequent calls only, never retroactively to in-flight ones.
func (b *Bus) SetOrchestrationMethod(method string) error {
	switch method {
	case MethodCustom, MethodFoundryWorkflow, MethodConnectedAgent:
		b.method.Store(method)
		return nil
	default:
		return fmt.Errorf("unknown orchestration method %q", method)
	}
}

func (b *Bus) OrchestrationMethod() string {
	return b.method.Load().(string)
}

// RouteRequest finds the best agent for the request's intent, invokes it and
// returns its response. A missing agent, an agent error or a call timeout all
// come back as a failed response; the returned error is non-nil only for
// concurrency-slot timeouts (ErrTimeout) and context cancellation.
func (b *Bus) RouteRequest(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("route: request is required")
	}

	start := time.Now()
	resp, err := b.route(ctx, req)
	if b.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "timeout"
		} else if !resp.Success {
			outcome = "failure"
		}
		b.metrics.RequestsRouted.WithLabelValues(req.Intent, outcome).Inc()
		b.metrics.RouteDuration.Observe(time.Since(start).Seconds())
	}
	return resp, err
}

func (b *Bus) route(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	industry := ""
	if v, ok := req.Context["industry"].(string); ok {
		industry = v
	}

	candidates := b.registry.FindForIntent(req.Intent, industry)
	if len(candidates) == 0 && req.Intent != agent.IntentGeneralInquiry {
		// One fallback hop, never more.
		candidates = b.registry.FindForIntent(agent.IntentGeneralInquiry, industry)
	}
	if len(candidates) == 0 {
		return b.failure(req, "", noAgentsMessage), nil
	}

	best := selectBest(candidates)
	if b.metrics != nil {
		b.metrics.AgentSelected.WithLabelValues(best.AgentID).Inc()
	}

	handle, ok := b.registry.Handle(best.AgentID)
	if !ok {
		// Lost a race with unregistration between selection and lookup.
		return b.failure(req, best.AgentID, fmt.Sprintf("agent %q no longer available", best.AgentID)), nil
	}

	if err := b.limiter.acquire(ctx, best.AgentID); err != nil {
		return nil, err
	}
	defer b.limiter.release(best.AgentID)

	start := time.Now()
	resp, err := b.invoke(ctx, handle, req)
	elapsed := time.Since(start)

	// Exactly one metrics update per routed request, success or failure.
	success := err == nil && resp.Success
	confidence := 0.0
	if err == nil {
		confidence = resp.Confidence
	}
	b.registry.UpdateMetrics(best.AgentID, elapsed, success, confidence)

	if err != nil {
		return b.failure(req, best.AgentID, err.Error()), nil
	}

	if resp.ProcessingTimeMs == 0 {
		resp.ProcessingTimeMs = elapsed.Milliseconds()
	}
	if resp.AgentID == "" {
		resp.AgentID = best.AgentID
	}
	resp.OrchestrationMethod = b.OrchestrationMethod()
	return resp, nil
}

// invoke runs the agent under the call timeout. A panic inside the handle is
// contained here and converted into an error.
func (b *Bus) invoke(ctx context.Context, handle agent.Handle, req *agent.Request) (*agent.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	type outcome struct {
		resp *agent.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("agent panic: %v", r)}
			}
		}()
		resp, err := handle.ExecuteTask(callCtx, req)
		if err == nil && resp == nil {
			err = fmt.Errorf("agent returned no response")
		}
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-callCtx.Done():
		// The call may have finished in the same instant; a completed
		// result still counts.
		select {
		case out := <-done:
			return out.resp, out.err
		default:
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("agent call cancelled: %w", err)
		}
		return nil, fmt.Errorf("agent call timed out after %s", b.callTimeout)
	}
}

func (b *Bus) failure(req *agent.Request, agentID, message string) *agent.Response {
	return &agent.Response{
		RequestID:           req.ID,
		TraceID:             req.TraceID,
		Success:             false,
		AgentID:             agentID,
		ErrorMessage:        message,
		OrchestrationMethod: b.OrchestrationMethod(),
	}
}

// selectBest picks the candidate with the highest success rate, breaking
// ties by lowest average response time, then by agent ID so repeated calls
// with equal metrics stay deterministic.
func selectBest(candidates []agent.Capability) agent.Capability {
	sorted := make([]agent.Capability, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Metrics, sorted[j].Metrics
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		if a.AvgResponseTimeMs != b.AvgResponseTimeMs {
			return a.AvgResponseTimeMs < b.AvgResponseTimeMs
		}
		return sorted[i].AgentID < sorted[j].AgentID
	})
	return sorted[0]
}
