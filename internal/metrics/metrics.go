// Package metrics exposes Prometheus collectors for the control plane. The
// HTTP surface that serves them belongs to the host; this package only
// registers and updates collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RequestsRouted       *prometheus.CounterVec
	AgentSelected        *prometheus.CounterVec
	RouteDuration        prometheus.Histogram
	WorkflowsFinished    *prometheus.CounterVec
	WorkflowHops         prometheus.Histogram
	Validations          *prometheus.CounterVec
	ComplianceViolations prometheus.Counter
}

// New registers all collectors on reg and returns them. Pass
// prometheus.DefaultRegisterer for the usual global registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentbus_requests_routed_total",
			Help: "Routed requests by intent and outcome.",
		}, []string{"intent", "outcome"}),
		AgentSelected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentbus_agent_selected_total",
			Help: "Times each agent won selection.",
		}, []string{"agent_id"}),
		RouteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentbus_route_duration_seconds",
			Help:    "End-to-end routing latency including agent execution.",
			Buckets: prometheus.DefBuckets,
		}),
		WorkflowsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentbus_workflows_finished_total",
			Help: "Workflows reaching a terminal state, by outcome.",
		}, []string{"outcome"}),
		WorkflowHops: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentbus_workflow_hops",
			Help:    "Follow-up hops executed per workflow.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20},
		}),
		Validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentbus_action_validations_total",
			Help: "Relevance validations by deciding tier and verdict.",
		}, []string{"tier", "verdict"}),
		ComplianceViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "agentbus_compliance_violations_total",
			Help: "Actions rejected by the compliance gate.",
		}),
	}
}
