package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the bridge.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	artifactsIngested    prometheus.Counter
	submissionsDelivered prometheus.Counter
	submissionsFailed    *prometheus.CounterVec
	queueDrains          prometheus.Counter
	reportsOpened        prometheus.Counter
	notificationsSent    *prometheus.CounterVec
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	artifactsIngested := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "artifacts_ingested_total",
		Help: "Scanned papers accepted into the store",
	})

	submissionsDelivered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "submissions_delivered_total",
		Help: "Artifacts successfully handed to the LMS",
	})

	submissionsFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "submissions_failed_total",
		Help: "Delivery failures by classification",
	}, []string{"kind"})

	queueDrains := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queue_drains_total",
		Help: "Manual drain passes executed",
	})

	reportsOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reports_opened_total",
		Help: "Student reports issued",
	})

	notificationsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Student notification outcomes",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, artifactsIngested, submissionsDelivered,
		submissionsFailed, queueDrains, reportsOpened, notificationsSent, goroutines)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		artifactsIngested:    artifactsIngested,
		submissionsDelivered: submissionsDelivered,
		submissionsFailed:    submissionsFailed,
		queueDrains:          queueDrains,
		reportsOpened:        reportsOpened,
		notificationsSent:    notificationsSent,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ArtifactIngested counts an accepted intake.
func (m *MetricsService) ArtifactIngested() {
	if m != nil {
		m.artifactsIngested.Inc()
	}
}

// SubmissionDelivered counts a successful LMS hand-off.
func (m *MetricsService) SubmissionDelivered() {
	if m != nil {
		m.submissionsDelivered.Inc()
	}
}

// SubmissionFailed counts a delivery failure by kind ("retryable" or
// "terminal").
func (m *MetricsService) SubmissionFailed(kind string) {
	if m != nil {
		m.submissionsFailed.WithLabelValues(kind).Inc()
	}
}

// QueueDrained counts a manual drain pass.
func (m *MetricsService) QueueDrained() {
	if m != nil {
		m.queueDrains.Inc()
	}
}

// ReportOpened counts an issued report.
func (m *MetricsService) ReportOpened() {
	if m != nil {
		m.reportsOpened.Inc()
	}
}

// NotificationOutcome counts a notification result ("sent", "failed",
// "skipped").
func (m *MetricsService) NotificationOutcome(outcome string) {
	if m != nil {
		m.notificationsSent.WithLabelValues(outcome).Inc()
	}
}
