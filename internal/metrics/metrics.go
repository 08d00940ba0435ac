// Package metrics counts remote traffic and cascade work on a private
// Prometheus registry.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "entitysync"

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Cascade relation label values.
const (
	RelationKeySink    = "key_sink"
	RelationSourceSink = "source_sink"
)

// Metrics holds every collector used by the client and the service.
type Metrics struct {
	registry       *prometheus.Registry
	remoteCalls    *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	cascadePatches *prometheus.CounterVec
	pullFailures   *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

// New creates collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_calls_total",
			Help:      "Remote collection calls by collection, method and outcome.",
		}, []string{"collection", "method", "outcome"}),
		remoteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_call_duration_seconds",
			Help:      "Latency of remote collection calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "method"}),
		cascadePatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_patches_total",
			Help:      "Secondary patches issued to keep links consistent.",
		}, []string{"relation", "outcome"}),
		pullFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pull_failures_total",
			Help:      "Failed full collection pulls.",
		}, []string{"collection"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests served by the configuration service.",
		}, []string{"collection", "method", "code"}),
	}
	m.registry.MustRegister(
		m.remoteCalls,
		m.remoteDuration,
		m.cascadePatches,
		m.pullFailures,
		m.httpRequests,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RemoteCall records one remote call that started at start.
func (m *Metrics) RemoteCall(collection, method string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(collection, method, outcome(err)).Inc()
	m.remoteDuration.WithLabelValues(collection, method).Observe(time.Since(start).Seconds())
}

// CascadePatch records one secondary patch.
func (m *Metrics) CascadePatch(relation string, err error) {
	if m == nil {
		return
	}
	m.cascadePatches.WithLabelValues(relation, outcome(err)).Inc()
}

// PullFailed records a failed full pull.
func (m *Metrics) PullFailed(collection string) {
	if m == nil {
		return
	}
	m.pullFailures.WithLabelValues(collection).Inc()
}

// HTTPRequest records one request served by the configuration service.
func (m *Metrics) HTTPRequest(collection, method, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(collection, method, code).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
