package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/therealutkarshpriyadarshi/vector/pkg/api/rest/middleware"
	"github.com/therealutkarshpriyadarshi/vector/pkg/index"
	"github.com/therealutkarshpriyadarshi/vector/pkg/observability"
)

// Config holds the REST server configuration
type Config struct {
	Host        string
	Port        int
	CORSEnabled bool
	CORSOrigins []string
	Auth        middleware.AuthConfig
	RateLimit   middleware.RateLimitConfig
}

// Server represents the REST API server, a thin HTTP front end over an
// already-Opened K5 Streamer living in the same process — no separate
// backend connection to manage, since K5 is an in-process library rather
// than a service this server proxies to.
type Server struct {
	config     Config
	handler    *Handler
	httpServer *http.Server
	mux        *http.ServeMux
	log        *observability.Logger
	access     *observability.AccessLogger
	metrics    *observability.Metrics
}

// NewServer creates a new REST API server bound to streamer. log/metrics
// may be nil, in which case a default logger is used and request metrics
// are skipped.
func NewServer(config Config, streamer *index.Streamer, log *observability.Logger, metrics *observability.Metrics) (*Server, error) {
	if log == nil {
		log = observability.NewDefaultLogger()
	}
	log = log.WithField("component", "rest.server")
	handler := NewHandler(streamer, log, metrics)

	server := &Server{
		config:  config,
		handler: handler,
		mux:     http.NewServeMux(),
		log:     log,
		access:  observability.NewAccessLogger(log),
		metrics: metrics,
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.withMiddleware(server.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health and stats endpoints
	s.mux.HandleFunc("/v1/health", s.handler.HealthCheck)
	s.mux.HandleFunc("/v1/stats", s.handler.GetStats)
	s.mux.HandleFunc("/v1/stats/", s.handler.GetStats)

	// Vector operations
	s.mux.HandleFunc("/v1/vectors", s.routeVectors)
	s.mux.HandleFunc("/v1/vectors/", s.routeVectorsWithPath)
	s.mux.HandleFunc("/v1/vectors/search", s.handler.Search)
	s.mux.HandleFunc("/v1/vectors/delete", s.handler.Delete)
	s.mux.HandleFunc("/v1/vectors/batch", s.handler.BatchInsert)

	// Documentation endpoints
	s.mux.HandleFunc("/docs", ServeSwaggerUI)
	s.mux.HandleFunc("/docs/openapi.yaml", ServeDocs)

	// Prometheus scrape endpoint, served off this server's own metrics
	// registry rather than the process-wide default registerer.
	if s.metrics != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
}

// routeVectors handles /v1/vectors endpoint
func (s *Server) routeVectors(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		s.handler.Insert(w, r)
	} else {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// routeVectorsWithPath handles /v1/vectors/{key}, key being the uint64
// primary key of §3 (K5 has no update primitive: a vector is replaced by
// tombstoning the old key and adding a new one).
func (s *Server) routeVectorsWithPath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/vectors/")

	if strings.HasPrefix(path, "search") || strings.HasPrefix(path, "delete") || strings.HasPrefix(path, "batch") {
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodDelete {
		s.handler.Delete(w, r)
	} else {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// withMiddleware wraps the handler with all middleware. Each wrap below
// becomes the new outermost layer, so a request passes through them in the
// reverse of the order they are applied: authentication first, then rate
// limiting (which can key on the auth claims), then CORS, then logging.
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	// Apply middleware in reverse order (last one wraps first)

	// 1. Logging + request-metrics middleware (innermost, runs last)
	handler = s.loggingMiddleware(handler)

	// 2. CORS middleware
	if s.config.CORSEnabled {
		handler = corsMiddleware(s.config.CORSOrigins)(handler)
	}

	// 3. Rate limiting
	rateLimiter := middleware.NewRateLimiter(s.config.RateLimit)
	handler = middleware.RateLimitMiddleware(rateLimiter)(handler)

	// 4. Authentication (outermost, runs first)
	handler = middleware.AuthMiddleware(s.config.Auth)(handler)

	return handler
}

// Start starts the REST API server
func (s *Server) Start() error {
	s.log.Info("starting REST API server", map[string]interface{}{"addr": s.httpServer.Addr})

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down REST API server")
	return s.httpServer.Shutdown(ctx)
}

// loggingMiddleware logs the HTTP requests that reach it via the shared
// AccessLogger and records per-method/status request metrics (§2.1/§3's
// "every ... API layer logs through pkg/observability.Logger"). It is the
// innermost layer, so requests rejected by auth, rate limiting or a CORS
// preflight are not logged or counted here.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		status := strconv.Itoa(wrapped.statusCode)
		s.access.LogAccess(r.Method, r.URL.Path, status, duration, nil)
		if s.metrics != nil {
			s.metrics.RecordRequest(r.URL.Path, status, duration)
		}
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// corsMiddleware adds CORS headers
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Check if origin is allowed
			allowed := false
			if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
				allowed = true
				origin = "*"
			} else {
				for _, allowedOrigin := range allowedOrigins {
					if allowedOrigin == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
