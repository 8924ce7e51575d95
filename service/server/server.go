package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/tzwriter/service/config"
	"github.com/brojonat/tzwriter/service/db"
	"github.com/brojonat/tzwriter/service/metrics"
	"github.com/brojonat/tzwriter/service/temporal"
)

// OperationGroupStore is the journal the server reads.
type OperationGroupStore interface {
	GetOperationGroup(ctx context.Context, hash string) (*db.OperationGroup, error)
	ListOperationGroupsBySource(ctx context.Context, params db.ListOperationGroupsBySourceParams) ([]*db.OperationGroup, error)
}

// Server is the HTTP front of the submission service.
type Server struct {
	addr        string
	cfg         *config.Config
	store       OperationGroupStore
	submissions temporal.Submissions
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	logger      *slog.Logger
	server      *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, request metrics and /metrics are disabled.
func New(addr string, cfg *config.Config, store OperationGroupStore, submissions temporal.Submissions, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:        addr,
		cfg:         cfg,
		store:       store,
		submissions: submissions,
		metrics:     m,
		gatherer:    prometheus.DefaultGatherer,
		logger:      logger,
	}
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		if s.metrics != nil {
			h = metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
		}
		mux.Handle(pattern, h)
	}

	// Submission routes
	route("POST /api/v1/operations", "/api/v1/operations",
		handleSubmitOperation(s.submissions, s.logger))
	route("GET /api/v1/operations/{workflow_id}", "/api/v1/operations/{workflow_id}",
		handleGetSubmissionStatus(s.submissions, s.logger))

	// Journal routes
	route("GET /api/v1/operation-groups", "/api/v1/operation-groups",
		handleListOperationGroups(s.store, s.network(), s.logger))
	route("GET /api/v1/operation-groups/{hash}", "/api/v1/operation-groups/{hash}",
		handleGetOperationGroup(s.store, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr, "metrics", s.metrics != nil)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) network() string {
	if s.cfg == nil {
		return ""
	}
	return s.cfg.TezosNetwork
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
