// Package metrics exposes Prometheus collectors for remote fetches and the
// reference backend.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch results.
const (
	ResultOK         = "ok"
	ResultError      = "error"
	ResultSuperseded = "superseded"
)

// Metrics records remote fetch outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	fetches  *prometheus.CounterVec
	rejected prometheus.Counter
	duration prometheus.Histogram
	requests *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tablesource",
			Name:      "fetch_total",
			Help:      "Remote fetches by result.",
		}, []string{"result"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tablesource",
			Name:      "fetch_rejected_total",
			Help:      "Fetches not sent because the query state failed the single-field rule.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tablesource",
			Name:      "fetch_duration_seconds",
			Help:      "Remote fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tablesource",
			Name:      "backend_requests_total",
			Help:      "Backend HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	if reg != nil {
		reg.MustRegister(m.fetches, m.rejected, m.duration, m.requests)
	}
	return m
}

// ObserveFetch records one completed fetch.
func (m *Metrics) ObserveFetch(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// Rejected records a fetch skipped by validation.
func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// ObserveRequest records one backend request.
func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
