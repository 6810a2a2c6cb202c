package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Question metrics
	questionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_compare_questions_submitted_total",
		Help: "Total number of questions submitted",
	}, []string{"status"})

	// Provider metrics
	providerBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_compare_provider_batch_duration_seconds",
		Help:    "Duration of full provider batches",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	providerResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_compare_provider_responses_total",
		Help: "Total number of provider responses generated",
	}, []string{"provider"})

	// Rating metrics
	ratingsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_compare_ratings_recorded_total",
		Help: "Total number of rating actions",
	}, []string{"rating"})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_compare_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	}, []string{"client_id"})

	// Storage metrics
	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_compare_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})

	// Sync metrics
	syncOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ai_compare_sync_operations_total",
		Help: "Total number of remote sync operations",
	}, []string{"operation", "status"})

	// HTTP metrics
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ai_compare_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "code"})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordQuestionSubmitted records a question submission
func (m *Metrics) RecordQuestionSubmitted(status string) {
	questionsSubmitted.WithLabelValues(status).Inc()
}

// RecordProviderBatch records a completed provider batch
func (m *Metrics) RecordProviderBatch(status string, duration time.Duration) {
	providerBatchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordProviderResponse records one generated provider response
func (m *Metrics) RecordProviderResponse(provider string) {
	providerResponses.WithLabelValues(provider).Inc()
}

// RecordRating records a rating action
func (m *Metrics) RecordRating(rating string) {
	ratingsRecorded.WithLabelValues(rating).Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded(clientID string) {
	rateLimitExceeded.WithLabelValues(clientID).Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string) {
	storageOperations.WithLabelValues(operation, status).Inc()
}

// RecordSyncOperation records a remote sync operation
func (m *Metrics) RecordSyncOperation(operation, status string) {
	syncOperations.WithLabelValues(operation, status).Inc()
}

// RecordHTTPRequest records a served HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, code string, duration time.Duration) {
	httpRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler and records request durations per route
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		m.RecordHTTPRequest(r.Method, path, strconv.Itoa(recorder.status), time.Since(start))
	})
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
