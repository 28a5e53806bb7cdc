package common

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neo_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// RecordsExtracted counts records read from each feed (neo, cad)
	RecordsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neo_records_extracted_total",
			Help: "Records extracted from the source feeds.",
		},
		[]string{"feed"},
	)

	// RecordsWritten counts close approaches written per output format
	RecordsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neo_records_written_total",
			Help: "Close approaches written to exports.",
		},
		[]string{"format"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpDurationSeconds, RecordsExtracted, RecordsWritten)
}

// MetricsMiddleware tracks API performance metrics
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Generate request ID for tracing
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)

		startTime := time.Now()

		c.Next()

		duration := time.Since(startTime)

		// Unmatched routes share one label to bound cardinality
		path := c.FullPath()
		if path == "" {
			path = "other"
		}
		httpRequestsTotal.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpDurationSeconds.WithLabelValues(path, c.Request.Method).Observe(duration.Seconds())

		// Get rows processed (if set by handler)
		rowsProcessed := 0
		if rows, exists := c.Get("rows_processed"); exists {
			if r, ok := rows.(int); ok {
				rowsProcessed = r
			}
		}

		errors := ""
		if len(c.Errors) > 0 {
			errors = c.Errors.String()
		}

		metric := ApiMetric{
			Endpoint:      path,
			Method:        c.Request.Method,
			StatusCode:    c.Writer.Status(),
			DurationMs:    int(duration.Milliseconds()),
			RowsProcessed: rowsProcessed,
			Errors:        errors,
			Timestamp:     startTime,
		}

		// Save metric asynchronously
		if db := GetDB(); db != nil {
			go db.Create(&metric)
		}
	}
}
