package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// MonitoringMiddleware handles metrics collection and monitoring
type MonitoringMiddleware struct {
	logger zerolog.Logger
}

// Prometheus metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "endpoint"},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
		},
		[]string{"method", "endpoint"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)

	inspectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inspections_total",
			Help: "Total number of container inspections submitted",
		},
		[]string{"status", "endpoint"},
	)

	inspectionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inspection_request_duration_seconds",
			Help:    "Inspection submission request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"endpoint"},
	)

	uploadedFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploaded_files_total",
			Help: "Total number of uploaded files",
		},
		[]string{"status"},
	)

	uploadedFileSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "uploaded_file_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: []float64{1e6, 10e6, 100e6, 1e9, 10e9, 50e9}, // 1MB to 50GB
		},
	)

	batchInspectionJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batch_inspection_jobs",
			Help: "Number of batch inspection jobs by status",
		},
		[]string{"status"},
	)

	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_exceeded_total",
			Help: "Total number of rate limit exceeded events",
		},
		[]string{"identifier_type"},
	)

	authFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_failures_total",
			Help: "Total number of authentication failures",
		},
		[]string{"reason"},
	)
)

// NewMonitoringMiddleware creates a new monitoring middleware
func NewMonitoringMiddleware(logger zerolog.Logger) *MonitoringMiddleware {
	return &MonitoringMiddleware{
		logger: logger,
	}
}

// Metrics middleware collects HTTP metrics
func (mm *MonitoringMiddleware) Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		activeConnections.Inc()
		defer activeConnections.Dec()

		requestSize := float64(c.Request.ContentLength)
		if requestSize < 0 {
			requestSize = 0
		}

		c.Next()

		duration := time.Since(start).Seconds()
		endpoint := normalizeEndpoint(c.FullPath())
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
		httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration)

		if requestSize > 0 {
			httpRequestSize.WithLabelValues(method, endpoint).Observe(requestSize)
		}

		responseSize := float64(c.Writer.Size())
		if responseSize > 0 {
			httpResponseSize.WithLabelValues(method, endpoint).Observe(responseSize)
		}
	}
}

// InspectionMetrics records inspection-submission-specific metrics: request
// count by outcome and latency, scoped to the /inspections route group.
func (mm *MonitoringMiddleware) InspectionMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		status := "unknown"
		switch {
		case c.Writer.Status() >= 200 && c.Writer.Status() < 300:
			status = "success"
		case c.Writer.Status() >= 400 && c.Writer.Status() < 500:
			status = "client_error"
		case c.Writer.Status() >= 500:
			status = "server_error"
		}

		endpoint := normalizeEndpoint(c.FullPath())
		inspectionsTotal.WithLabelValues(status, endpoint).Inc()
		inspectionDuration.WithLabelValues(endpoint).Observe(duration)
	}
}

// UploadMetrics records upload-specific metrics
func (mm *MonitoringMiddleware) UploadMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isUploadEndpoint(c.FullPath()) {
			c.Next()
			return
		}

		c.Next()

		status := "unknown"
		if c.Writer.Status() >= 200 && c.Writer.Status() < 300 {
			status = "success"

			if fileSize, exists := c.Get("upload_file_size"); exists {
				if size, ok := fileSize.(int64); ok {
					uploadedFileSize.Observe(float64(size))
				}
			}
		} else if c.Writer.Status() >= 400 && c.Writer.Status() < 500 {
			status = "client_error"
		} else if c.Writer.Status() >= 500 {
			status = "server_error"
		}

		uploadedFilesTotal.WithLabelValues(status).Inc()
	}
}

// BatchJobStarted updates batch inspection job metrics when a job moves into
// the given status.
func BatchJobStarted(status string) {
	batchInspectionJobs.WithLabelValues(status).Inc()
}

// BatchJobCompleted moves a batch inspection job's gauge count from
// oldStatus to newStatus (newStatus may be empty when the job is simply
// removed from tracking).
func BatchJobCompleted(oldStatus, newStatus string) {
	batchInspectionJobs.WithLabelValues(oldStatus).Dec()
	if newStatus != "" {
		batchInspectionJobs.WithLabelValues(newStatus).Inc()
	}
}

// RateLimitExceeded records a rate limit rejection, keyed by the kind of
// identifier (ip/user/global) the limiter matched on.
func RateLimitExceeded(identifierType string) {
	rateLimitExceeded.WithLabelValues(identifierType).Inc()
}

// AuthFailure records an authentication failure, keyed by its reason.
func AuthFailure(reason string) {
	authFailures.WithLabelValues(reason).Inc()
}

func normalizeEndpoint(path string) string {
	normalized := path

	patterns := map[string]string{
		"/api/v1/inspections/": "/api/v1/inspections/:id",
		"/api/v1/keys/":        "/api/v1/keys/:id",
		"/api/v1/storage/":     "/api/v1/storage/:key",
	}

	for pattern, replacement := range patterns {
		if len(normalized) > len(pattern) && normalized[:len(pattern)] == pattern {
			normalized = replacement
			break
		}
	}

	return normalized
}

func isUploadEndpoint(path string) bool {
	return path == "/api/v1/storage/upload"
}
