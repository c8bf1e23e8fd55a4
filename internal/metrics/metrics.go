// Package metrics exposes the Prometheus telemetry of the evaluation core:
// provider call outcomes, target quarantines, decision emission, and
// persistence drops.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the process's Prometheus collectors. It satisfies the
// executor's and the agent service's metrics interfaces.
type Registry struct {
	reg *prometheus.Registry

	ProviderCalls    *prometheus.CounterVec
	CallLatency      *prometheus.HistogramVec
	Quarantines      *prometheus.CounterVec
	Decisions        *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec
	PersistenceDrops prometheus.Counter
	RateLimited      prometheus.Counter
}

// New builds a registry with every collector registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalbench_provider_calls_total",
			Help: "Provider calls by target, success, and error kind",
		}, []string{"target", "success", "error_kind"}),
		CallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evalbench_call_latency_seconds",
			Help:    "Provider call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"target"}),
		Quarantines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalbench_target_quarantines_total",
			Help: "Targets quarantined during job execution",
		}, []string{"target"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalbench_decisions_total",
			Help: "Decision records emitted per agent",
		}, []string{"agent_id"}),
		DecisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evalbench_decision_duration_seconds",
			Help:    "End-to-end agent execution time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"agent_id"}),
		PersistenceDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evalbench_persistence_drops_total",
			Help: "Decision records dropped from the write-behind buffer",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evalbench_rate_limited_total",
			Help: "Requests rejected by the dispatch rate limiter",
		}),
	}
	reg.MustRegister(
		m.ProviderCalls, m.CallLatency, m.Quarantines,
		m.Decisions, m.DecisionDuration, m.PersistenceDrops, m.RateLimited,
	)
	return m
}

// ObserveCall records one provider call outcome.
func (m *Registry) ObserveCall(targetRef string, success bool, errorKind string, latencySeconds float64) {
	status := "false"
	if success {
		status = "true"
		errorKind = ""
	}
	m.ProviderCalls.WithLabelValues(targetRef, status, errorKind).Inc()
	m.CallLatency.WithLabelValues(targetRef).Observe(latencySeconds)
}

// ObserveQuarantine records a target entering quarantine.
func (m *Registry) ObserveQuarantine(targetRef string) {
	m.Quarantines.WithLabelValues(targetRef).Inc()
}

// ObserveDecision records one emitted decision.
func (m *Registry) ObserveDecision(agentID string, confidence float64, durationSeconds float64) {
	m.Decisions.WithLabelValues(agentID).Inc()
	m.DecisionDuration.WithLabelValues(agentID).Observe(durationSeconds)
}

// Handler serves the scrape endpoint.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
