package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors of the link subsystem.
// All recording methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	LinkWrites         *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	CacheRequests      *prometheus.CounterVec
	RepoDuration       *prometheus.HistogramVec
	RepoErrors         *prometheus.CounterVec
	TraversalNodes     *prometheus.HistogramVec
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		LinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "link_writes_total",
				Help:      "Link writes by operation and kind",
			},
			[]string{"operation", "kind"},
		),
		ValidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "link_validation_failures_total",
				Help:      "Rejected link writes by error code",
			},
			[]string{"code"},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "link_cache_requests_total",
				Help:      "Cache lookups by result",
			},
			[]string{"result"},
		),
		RepoDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "link_repository_duration_seconds",
				Help:      "Repository call latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RepoErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "link_repository_errors_total",
				Help:      "Failed repository calls",
			},
			[]string{"operation"},
		),
		TraversalNodes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "link_traversal_nodes",
				Help:      "Nodes visited per traversal",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
			[]string{"traversal"},
		),
	}

	registry.MustRegister(
		m.LinkWrites,
		m.ValidationFailures,
		m.CacheRequests,
		m.RepoDuration,
		m.RepoErrors,
		m.TraversalNodes,
	)

	return m
}

// Registry exposes the registry for scraping or export.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordLinkWrite(operation, kind string) {
	if m == nil {
		return
	}
	m.LinkWrites.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) RecordValidationFailure(code string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues("hit").Inc()
}

func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues("miss").Inc()
}

// ObserveRepository records the latency and outcome of one repository call.
func (m *Metrics) ObserveRepository(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.RepoDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if err != nil {
		m.RepoErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) ObserveTraversal(traversal string, nodes int) {
	if m == nil {
		return
	}
	m.TraversalNodes.WithLabelValues(traversal).Observe(float64(nodes))
}
