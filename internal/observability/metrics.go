package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registry holds the EduPortal collectors; Gatherer merges it with the default registry.
var registry = prometheus.NewRegistry()

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	enrollmentsTotal      *prometheus.CounterVec
	examAttemptsTotal     *prometheus.CounterVec
	ledgerWritesTotal     *prometheus.CounterVec
	notificationsTotal    *prometheus.CounterVec
	realtimeClientsActive prometheus.Gauge
	uploadRequestsTotal   *prometheus.CounterVec
	uploadLatencySeconds  prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduportal_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eduportal_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduportal_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		enrollmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduportal_enrollments_total",
			Help: "Enrollment attempts partitioned by outcome.",
		}, []string{"outcome"})

		examAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduportal_exam_attempts_total",
			Help: "Exam attempt transitions partitioned by event and outcome.",
		}, []string{"event", "outcome"})

		ledgerWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduportal_ledger_writes_total",
			Help: "Fee transaction and salary writes partitioned by kind.",
		}, []string{"kind"})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduportal_notifications_published_total",
			Help: "Notifications published partitioned by transport.",
		}, []string{"transport"})

		realtimeClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eduportal_realtime_clients_active",
			Help: "Currently connected notification stream clients.",
		})

		uploadRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduportal_material_uploads_total",
			Help: "Study material uploads partitioned by outcome.",
		}, []string{"outcome"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eduportal_material_upload_latency_seconds",
			Help:    "Latency of blob uploads for study materials.",
			Buckets: prometheus.DefBuckets,
		})

		registry.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			enrollmentsTotal,
			examAttemptsTotal,
			ledgerWritesTotal,
			notificationsTotal,
			realtimeClientsActive,
			uploadRequestsTotal,
			uploadLatencySeconds,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// Enrollments counts enrollment outcomes.
func Enrollments() *prometheus.CounterVec {
	RegisterMetrics()
	return enrollmentsTotal
}

// ExamAttempts counts attempt starts and submissions.
func ExamAttempts() *prometheus.CounterVec {
	RegisterMetrics()
	return examAttemptsTotal
}

// LedgerWrites counts financial writes.
func LedgerWrites() *prometheus.CounterVec {
	RegisterMetrics()
	return ledgerWritesTotal
}

// NotificationsPublished counts fan-out publications per transport.
func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

// RealtimeClients tracks connected websocket and SSE clients.
func RealtimeClients() prometheus.Gauge {
	RegisterMetrics()
	return realtimeClientsActive
}

// UploadRequests counts material uploads.
func UploadRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRequestsTotal
}

// UploadLatency observes blob upload latency.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}
