package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DownloadsTotal tracks finished downloads by status and container format
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oblivionis_downloads_total",
			Help: "Total number of finished downloads",
		},
		[]string{"status", "format"},
	)

	// DownloadDuration tracks download duration in seconds by format
	DownloadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oblivionis_download_duration_seconds",
			Help:    "Download duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"format"},
	)

	// ActiveDownloads tracks workers currently holding the admission gate
	ActiveDownloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oblivionis_active_downloads",
			Help: "Number of download workers past the admission gate",
		},
	)

	// PendingDownloads tracks workers waiting on the admission gate
	PendingDownloads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oblivionis_pending_downloads",
			Help: "Number of download workers waiting for admission",
		},
	)

	// DownloadBytesTotal tracks total bytes written to disk
	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oblivionis_download_bytes_total",
			Help: "Total bytes downloaded",
		},
	)

	// APIRequestsTotal tracks API requests by request type and status
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oblivionis_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"types", "status"},
	)

	// APIRequestDuration tracks API request duration
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oblivionis_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"types"},
	)

	// StaleResultsTotal tracks search and cover results dropped as superseded
	StaleResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oblivionis_stale_results_total",
			Help: "Results discarded because a newer request superseded them",
		},
		[]string{"queue"},
	)

	// ErrorsTotal tracks errors by type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oblivionis_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

// RecordDownloadQueued records a worker that started waiting for admission
func RecordDownloadQueued() {
	PendingDownloads.Inc()
}

// RecordDownloadStart records a worker that passed the admission gate
func RecordDownloadStart() {
	PendingDownloads.Dec()
	ActiveDownloads.Inc()
}

// RecordDownloadComplete records a completed download
func RecordDownloadComplete(format string, duration time.Duration, bytes int64) {
	DownloadsTotal.WithLabelValues("completed", format).Inc()
	DownloadDuration.WithLabelValues(format).Observe(duration.Seconds())
	DownloadBytesTotal.Add(float64(bytes))
	ActiveDownloads.Dec()
}

// RecordDownloadFailed records a failed download
func RecordDownloadFailed(format string, errorType string) {
	DownloadsTotal.WithLabelValues("failed", format).Inc()
	ErrorsTotal.WithLabelValues(errorType).Inc()
	ActiveDownloads.Dec()
}

// RecordAPIRequest records an API request
func RecordAPIRequest(types string, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(types, status).Inc()
	APIRequestDuration.WithLabelValues(types).Observe(duration.Seconds())
}

// RecordStaleResult records an outcome discarded as stale
func RecordStaleResult(queue string) {
	StaleResultsTotal.WithLabelValues(queue).Inc()
}

// RecordError records an error
func RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ServeMetrics exposes the default registry on addr until ctx is done
func ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
