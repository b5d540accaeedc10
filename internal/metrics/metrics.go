// Package metrics holds the Prometheus collectors exported on /metrics.
//
// All methods are safe on a nil *Metrics, so components can take metrics as
// an optional dependency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventhub"

// Sync record outcomes.
const (
	OutcomeUpserted  = "upserted"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	syncRecords      *prometheus.CounterVec
	syncRuns         *prometheus.CounterVec
	syncDuration     *prometheus.SummaryVec
	lastSyncSuccess  *prometheus.GaugeVec
	storeFailures    *prometheus.CounterVec
	materializations *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.syncRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_records_total",
		Help:      "Scraped records processed by the ingest pipeline, by outcome",
	}, []string{"source", "outcome"})
	m.syncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_runs_total",
		Help:      "Completed connector sync runs",
	}, []string{"source"})
	m.syncDuration = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: namespace,
		Name:      "sync_duration_seconds",
		Help:      "Time spent syncing one connector",
	}, []string{"source"})
	m.lastSyncSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_sync_success_timestamp_seconds",
		Help:      "Unix timestamp of the last sync run without failed records",
	}, []string{"source"})
	m.storeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_failures_total",
		Help:      "Store calls that failed or timed out",
	}, []string{"store", "operation"})
	m.materializations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_materializations_total",
		Help:      "Ledger materialization attempts by origin and outcome",
	}, []string{"origin", "outcome"})
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method and status code",
	}, []string{"method", "code"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.syncRecords, m.syncRuns, m.syncDuration, m.lastSyncSuccess,
		m.storeFailures, m.materializations, m.httpRequests,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SyncRecord counts one processed record.
func (m *Metrics) SyncRecord(source, outcome string) {
	if m == nil {
		return
	}
	m.syncRecords.WithLabelValues(source, outcome).Inc()
}

// SyncRun records a finished connector run.
func (m *Metrics) SyncRun(source string, elapsed time.Duration, failed int, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(source).Inc()
	m.syncDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	if failed == 0 {
		m.lastSyncSuccess.WithLabelValues(source).Set(float64(finishedAt.Unix()))
	}
}

// StoreFailure counts a failed store call.
func (m *Metrics) StoreFailure(store, operation string) {
	if m == nil {
		return
	}
	m.storeFailures.WithLabelValues(store, operation).Inc()
}

// Materialization counts a ledger materialization attempt.
func (m *Metrics) Materialization(origin, outcome string) {
	if m == nil {
		return
	}
	m.materializations.WithLabelValues(origin, outcome).Inc()
}

// HTTPRequest counts a served request.
func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
