package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InvestigationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankpilot_investigations_total",
			Help: "Total number of investigation pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	InvestigationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rankpilot_investigation_duration_seconds",
			Help:    "Duration of investigation pipeline runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	SerpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankpilot_serp_requests_total",
			Help: "Total number of search provider requests",
		},
		[]string{"status"},
	)

	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankpilot_fetch_requests_total",
			Help: "Total number of page fetches executed",
		},
		[]string{"status"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rankpilot_fetch_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rankpilot_fetch_bytes_total",
			Help: "Total bytes downloaded across all page fetches",
		},
		[]string{"domain"},
	)
)

// RecordFetch updates the fetch metrics for a completed page fetch.
func RecordFetch(domain string, statusCode int, bytes int, duration time.Duration, failed bool) {
	statusStr := strconv.Itoa(statusCode)
	if failed {
		statusStr = "error"
	}
	FetchRequestsTotal.WithLabelValues(statusStr).Inc()
	FetchDuration.WithLabelValues(domain).Observe(duration.Seconds())
	FetchBytesTotal.WithLabelValues(domain).Add(float64(bytes))
}

// RecordSerp updates the search provider request counter.
func RecordSerp(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	SerpRequestsTotal.WithLabelValues(status).Inc()
}

// RecordInvestigation records a finished pipeline run.
func RecordInvestigation(status string, duration time.Duration) {
	InvestigationsTotal.WithLabelValues(status).Inc()
	InvestigationDuration.Observe(duration.Seconds())
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
