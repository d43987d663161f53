// Package api exposes the SEER HTTP interface: crawl job management, alert
// rule administration, knowledge-graph queries and operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"seer/internal/config"
	"seer/internal/crawl"
	"seer/internal/extraction"
	"seer/internal/graph"
	"seer/internal/middleware"
	"seer/internal/store"
)

// RelationshipExtractor analyzes free text for entity relationships.
type RelationshipExtractor interface {
	Configured() bool
	ExtractRelationships(ctx context.Context, text string) ([]extraction.Relationship, error)
}

// GraphBuilder is the subset of the graph builder the API needs.
type GraphBuilder interface {
	RepopulateFromStore(ctx context.Context) (graph.Summary, error)
	UpsertRelationships(ctx context.Context, rels []extraction.Relationship) graph.Summary
}

// Server handles the HTTP API.
type Server struct {
	crawler   *crawl.Service
	store     *store.Store
	extractor RelationshipExtractor
	graph     GraphBuilder
	logger    *slog.Logger
	startTime time.Time
}

// NewServer creates the API server. The extractor and graph builder may be
// nil; the endpoints that need them then report the feature as unavailable.
func NewServer(crawler *crawl.Service, st *store.Store, extractor RelationshipExtractor, gb GraphBuilder) *Server {
	return &Server{
		crawler:   crawler,
		store:     st,
		extractor: extractor,
		graph:     gb,
		logger:    slog.Default().With("component", "api"),
		startTime: time.Now(),
	}
}

// Routes builds the route table.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /crawl", s.handleSubmitCrawl)
	mux.HandleFunc("POST /crawl/multiple", s.handleSubmitCrawlMultiple)
	mux.HandleFunc("GET /crawl/{job_id}", s.handleJobStatus)
	mux.HandleFunc("GET /crawl/{job_id}/results", s.handleJobResults)
	mux.HandleFunc("POST /crawl/{job_id}/cancel", s.handleJobCancel)

	mux.HandleFunc("POST /analyze_text_for_relationships", s.handleAnalyzeText)

	mux.HandleFunc("GET /threats", s.handleListThreats)
	mux.HandleFunc("GET /threats/{id}", s.handleGetThreat)

	mux.HandleFunc("GET /alerts/rules", s.handleListRules)
	mux.HandleFunc("POST /alerts/rules", s.handleCreateRule)
	mux.HandleFunc("PUT /alerts/rules/{id}", s.handleUpdateRule)
	mux.HandleFunc("DELETE /alerts/rules/{id}", s.handleDeleteRule)
	mux.HandleFunc("POST /alerts/rules/{id}/toggle", s.handleToggleRule)
	mux.HandleFunc("GET /alerts/history", s.handleAlertHistory)
	mux.HandleFunc("POST /alerts/history/{id}/ack", s.handleAcknowledgeAlert)

	mux.HandleFunc("GET /graph/data", s.handleGraphData)
	mux.HandleFunc("POST /graph/populate", s.handleGraphPopulate)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	return mux
}

// Handler wraps the route table with the middleware chain.
func (s *Server) Handler(cfg *config.Config) http.Handler {
	// Applied in reverse order; the last applied runs first.
	var h http.Handler = s.Routes()

	h = recoveryMiddleware(h)
	h = loggingMiddleware(h)
	h = middleware.SecurityHeadersMiddleware(middleware.DefaultSecurityHeadersConfig(), s.logger)(h)
	if cfg != nil {
		h = middleware.RateLimitMiddleware(cfg.RateLimit, s.logger)(h)
	}

	return h
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, `{"status":"error","message":"internal server error"}`, http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response. Every error leaving the API is
// well-formed JSON with a status and message.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{
		"status":  "error",
		"message": message,
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	metrics := s.crawler.Metrics()

	status := "healthy"
	if metrics.Queue.Depth > int(float64(metrics.Queue.Capacity)*0.9) {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"queue_depth":    metrics.Queue.Depth,
		"queue_capacity": metrics.Queue.Capacity,
		"active_jobs":    metrics.ActiveJobs,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

// handleMetrics handles GET /metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	limited, allowed := middleware.GetRateLimitMetrics()

	respondJSON(w, http.StatusOK, map[string]any{
		"pipeline": s.crawler.Metrics(),
		"rate_limit": map[string]uint64{
			"limited": limited,
			"allowed": allowed,
		},
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}
