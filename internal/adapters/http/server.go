// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/jobrunner/hospigeo/internal/application"
	"github.com/jobrunner/hospigeo/internal/config"
	"github.com/jobrunner/hospigeo/internal/ports/input"
)

// DatasetSyncer triggers an on-demand dataset import.
type DatasetSyncer interface {
	TriggerSync(ctx context.Context) (application.SyncResult, error)
}

// MetricsExporter serves collected metrics and instruments requests.
type MetricsExporter interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// Services bundles the driving ports served over HTTP. Sync and Metrics are
// optional.
type Services struct {
	Reindex  input.ReindexService
	Spatial  input.SpatialIndexService
	Resolver input.BoundaryResolver
	Repair   input.RepairService
	Health   input.HealthChecker
	Sync     DatasetSyncer
	Metrics  MetricsExporter
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server      *http.Server
	router      *mux.Router
	svc         Services
	limiter     *rate.Limiter
	logger      *slog.Logger
	config      config.ServerConfig
	metricsPath string
}

// NewServer creates a new HTTP server. A non-nil tlsConfig makes Start
// serve HTTPS.
func NewServer(
	cfg config.ServerConfig,
	svc Services,
	metricsPath string,
	tlsConfig *tls.Config,
	logger *slog.Logger,
) *Server {
	s := &Server{
		svc:         svc,
		logger:      logger,
		config:      cfg,
		metricsPath: metricsPath,
	}
	if cfg.RateLimit.Enabled {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.Rate), cfg.RateLimit.Burst)
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		TLSConfig:    tlsConfig,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.svc.Metrics != nil {
		r.Use(s.svc.Metrics.Middleware)
	}

	// Add CORS middleware if configured
	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware)
	}
	if s.limiter != nil {
		r.Use(s.rateLimitMiddleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	if s.svc.Metrics != nil && s.metricsPath != "" {
		r.Handle(s.metricsPath, s.svc.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)

	// Admin endpoints, also mounted without prefix
	for _, admin := range []*mux.Router{r.PathPrefix("/api/admin").Subrouter(), r} {
		admin.HandleFunc("/reindex/status", s.handleReindexStatus).Methods(http.MethodGet)
		admin.HandleFunc("/reindex/history", s.handleReindexHistory).Methods(http.MethodGet)
		admin.HandleFunc("/reindex/{entityType}", s.handleReindex).Methods(http.MethodPost)
		admin.HandleFunc("/indices", s.handleListIndices).Methods(http.MethodGet)
	}

	// Geo endpoints, also mounted as /geo
	for _, geo := range []*mux.Router{r.PathPrefix("/api/geo").Subrouter(), r.PathPrefix("/geo").Subrouter()} {
		geo.HandleFunc("/create-indexes", s.handleCreateIndexes).Methods(http.MethodPost)
		geo.HandleFunc("/create-index/{collection}", s.handleCreateIndex).Methods(http.MethodPost)
		geo.HandleFunc("/index-status", s.handleIndexStatus).Methods(http.MethodGet)
		geo.HandleFunc("/boundaries", s.handleViewport).Methods(http.MethodGet)
		geo.HandleFunc("/repair/{collection}", s.handleRepair).Methods(http.MethodPost)
		if s.svc.Sync != nil {
			geo.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
		}
		geo.HandleFunc("/{boundaryType}/coordinates", s.handleCoordinates).Methods(http.MethodGet)
	}

	// Preflight requests must match a route for the CORS middleware to run
	if s.config.CORS.Enabled() {
		r.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	var err error
	if s.server.TLSConfig != nil {
		s.logger.Info("starting HTTPS server", "address", s.config.Address())
		err = s.server.ListenAndServeTLS("", "")
	} else {
		s.logger.Info("starting HTTP server", "address", s.config.Address())
		err = s.server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				s.writeError(w, http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware rejects requests above the configured rate. Health
// probes are never limited.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r.URL.Path) || s.limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
	})
}

func isProbe(path string) bool {
	return path == "/health" || path == "/health/live" || path == "/health/ready"
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
