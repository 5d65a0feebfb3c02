// Package metrics provides Prometheus metrics for the cloudvault client.
// The CLI is short-lived, so metrics live in a private registry and are
// written to a node_exporter textfile on exit instead of being scraped.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cloudvault"

// Metrics holds every client metric. The zero value is not usable; call New.
type Metrics struct {
	registry *prometheus.Registry

	// API request metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	refreshesTotal  *prometheus.CounterVec

	// Upload metrics
	uploadsTotal        *prometheus.CounterVec
	uploadBytesTotal    prometheus.Counter
	uploadDuration      prometheus.Histogram
	admissionRejections *prometheus.CounterVec
}

// New registers the client metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		refreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Total access token refresh attempts",
			},
			[]string{"outcome"},
		),
		uploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Total number of finished uploads",
			},
			[]string{"status"},
		),
		uploadBytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_bytes_total",
				Help:      "Total bytes of successfully uploaded files",
			},
		),
		uploadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_duration_seconds",
				Help:      "Upload duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		admissionRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_admission_rejections_total",
				Help:      "Files refused before upload",
			},
			[]string{"reason"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one API round trip. status is 0 when no response
// arrived.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveRefresh records a token refresh outcome.
func (m *Metrics) ObserveRefresh(outcome string) {
	m.refreshesTotal.WithLabelValues(outcome).Inc()
}

// UploadFinished records an upload reaching a terminal state.
func (m *Metrics) UploadFinished(status string, bytes int64, elapsed time.Duration) {
	m.uploadsTotal.WithLabelValues(status).Inc()
	m.uploadDuration.Observe(elapsed.Seconds())

	if status == "success" {
		m.uploadBytesTotal.Add(float64(bytes))
	}
}

// AdmissionRejected records a file refused before upload.
func (m *Metrics) AdmissionRejected(reason string) {
	m.admissionRejections.WithLabelValues(reason).Inc()
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The write goes through a temp file and rename.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics: writing %s: %w", path, err)
	}

	return nil
}
