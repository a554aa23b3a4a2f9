package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)

	// UpstreamRequests counts INVU attempts by endpoint and outcome
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "invu_requests_total", Help: "INVU API attempts by endpoint and outcome."},
		[]string{"endpoint", "outcome"},
	)
	// UpstreamDuration tracks INVU attempt latency in seconds
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "invu_request_duration_seconds", Help: "INVU API attempt latency in seconds.", Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20}},
		[]string{"endpoint"},
	)

	// SyncRuns counts sync runs by resulting HTTP status
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sync_runs_total", Help: "Sync runs by resulting status."},
		[]string{"kind", "status"},
	)
	// RowsWritten counts rows upserted by kind (daily_sales, orders)
	RowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sync_rows_written_total", Help: "Rows upserted into the store."},
		[]string{"kind"},
	)
)

// RegisterDefault registers collectors on Registry once.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(UpstreamRequests)
		Registry.MustRegister(UpstreamDuration)
		Registry.MustRegister(SyncRuns)
		Registry.MustRegister(RowsWritten)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
