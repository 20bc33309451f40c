package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_service_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "order_service_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_service_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation", "status"},
	)

	stockReservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_service_stock_reservations_total",
			Help: "Total number of stock reservation attempts",
		},
		[]string{"result"},
	)

	carrierRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_service_carrier_requests_total",
			Help: "Total number of carrier API calls",
		},
		[]string{"result"},
	)
)

// PrometheusMiddleware collects request counters and latency histograms.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
	}
}

func RecordOrderOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	orderOperations.WithLabelValues(operation, status).Inc()
}

func RecordStockReservation(result string) {
	stockReservations.WithLabelValues(result).Inc()
}

func RecordCarrierRequest(success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	carrierRequests.WithLabelValues(result).Inc()
}
