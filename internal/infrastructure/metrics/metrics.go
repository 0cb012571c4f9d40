// Package metrics provides Prometheus metrics for the thesis lifecycle service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "thesis"

// Metrics holds all collectors.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Lifecycle
	TransitionsTotal     *prometheus.CounterVec
	EligibilityDecisions *prometheus.CounterVec
	LockContentionTotal  prometheus.Counter

	// Event bus
	EventsPublishedTotal *prometheus.CounterVec
	EventHandlerDuration *prometheus.HistogramVec
	EventHandlerFailures *prometheus.CounterVec

	// Jobs and upstreams
	JobRunsTotal       *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	CalendarFetchTotal *prometheus.CounterVec
}

// New creates collectors on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	m := NewWithRegisterer(reg)
	m.registry = reg
	return m
}

// NewWithRegisterer creates collectors registered on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{}

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.TransitionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Lifecycle operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	m.EligibilityDecisions = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eligibility_decisions_total",
			Help:      "Eligibility evaluations by category and denial reason",
		},
		[]string{"category", "reason"},
	)

	m.LockContentionTotal = f.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lineage_lock_contention_total",
			Help:      "Writes refused because another writer held the lineage",
		},
	)

	m.EventsPublishedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published",
		},
		[]string{"type"},
	)

	m.EventHandlerDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handler_duration_seconds",
			Help:      "Duration of event handler executions",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"type"},
	)

	m.EventHandlerFailures = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Event handler executions that returned an error",
		},
		[]string{"type"},
	)

	m.JobRunsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by status",
		},
		[]string{"job", "status"},
	)

	m.JobDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"job"},
	)

	m.CalendarFetchTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_fetch_total",
			Help:      "Scheduling event fetches by source and status",
		},
		[]string{"source", "status"},
	)

	return m
}

// Handler serves the registry created by New.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordTransition records a lifecycle operation outcome.
func (m *Metrics) RecordTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordEligibility records an eligibility decision. reason is empty when allowed.
func (m *Metrics) RecordEligibility(category, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "allowed"
	}
	m.EligibilityDecisions.WithLabelValues(category, reason).Inc()
}

// RecordLockContention counts a refused write.
func (m *Metrics) RecordLockContention() {
	if m == nil {
		return
	}
	m.LockContentionTotal.Inc()
}

// RecordPublish counts a published event.
func (m *Metrics) RecordPublish(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// RecordHandler records one event handler execution.
func (m *Metrics) RecordHandler(eventType string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.EventHandlerDuration.WithLabelValues(eventType).Observe(d.Seconds())
	if err != nil {
		m.EventHandlerFailures.WithLabelValues(eventType).Inc()
	}
}

// RecordJob records one job run.
func (m *Metrics) RecordJob(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// RecordCalendarFetch records one upstream fetch.
func (m *Metrics) RecordCalendarFetch(source string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.CalendarFetchTotal.WithLabelValues(source, status).Inc()
}
