package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce        sync.Once
	auditRequestsTotal  *prometheus.CounterVec
	auditLatencySeconds *prometheus.HistogramVec
	auditErrorsTotal    *prometheus.CounterVec
	auditIngestTotal    *prometheus.CounterVec
	auditPurgedTotal    prometheus.Counter
	auditExportedRows   prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors for the audit API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		auditRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_requests_total",
			Help: "Total number of audit API requests served.",
		}, []string{"method", "route", "status"})

		auditLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audit_latency_seconds",
			Help:    "Latency distribution for audit API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		auditErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_errors_total",
			Help: "Total number of error responses returned by audit endpoints.",
		}, []string{"method", "route", "status"})

		auditIngestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_entries_ingested_total",
			Help: "Audit entries accepted or rejected at ingestion.",
		}, []string{"outcome"})

		auditPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_entries_purged_total",
			Help: "Audit entries removed by retention cleanup.",
		})

		auditExportedRows = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_exported_rows_total",
			Help: "Rows serialized by CSV exports.",
		})

		prometheus.MustRegister(
			auditRequestsTotal,
			auditLatencySeconds,
			auditErrorsTotal,
			auditIngestTotal,
			auditPurgedTotal,
			auditExportedRows,
		)
	})
}

// AuditRequests exposes the counter for audit API requests.
func AuditRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return auditRequestsTotal
}

// AuditLatency exposes the latency histogram for audit API requests.
func AuditLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return auditLatencySeconds
}

// AuditErrors exposes the counter for audit API error responses.
func AuditErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return auditErrorsTotal
}

// AuditIngest exposes the ingestion outcome counter.
func AuditIngest() *prometheus.CounterVec {
	RegisterMetrics()
	return auditIngestTotal
}

// AuditPurged exposes the retention purge counter.
func AuditPurged() prometheus.Counter {
	RegisterMetrics()
	return auditPurgedTotal
}

// AuditExportedRows exposes the export row counter.
func AuditExportedRows() prometheus.Counter {
	RegisterMetrics()
	return auditExportedRows
}
