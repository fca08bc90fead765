// Package monitoring exposes a running benchmark over HTTP: Prometheus
// metrics, health checks and a JSON status snapshot.
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kvbench/internal/config"
	"kvbench/internal/logging"
)

// StatusServer serves /metrics, /health and /status for one run
type StatusServer struct {
	cfg      config.MetricsConfig
	source   ProgressSource
	health   *HealthManager
	logger   *logging.Logger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	router   *mux.Router

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewStatusServer builds the router and a private registry holding the run
// collector plus the Go and process collectors
func NewStatusServer(cfg config.MetricsConfig, source ProgressSource, health *HealthManager, logger *logging.Logger, runID string) *StatusServer {
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	if health == nil {
		health = NewHealthManager()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		NewCollector(source),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: MetricPrefix + "_status_requests_total",
		Help: "HTTP requests served by the status server.",
	}, []string{"path", "code"})
	registry.MustRegister(requests)

	s := &StatusServer{
		cfg:      cfg,
		source:   source,
		health:   health,
		logger:   logger,
		registry: registry,
		requests: requests,
	}
	s.router = s.setupRoutes(runID)
	return s
}

func (s *StatusServer) setupRoutes(runID string) *mux.Router {
	router := mux.NewRouter()
	router.Use(s.countRequests)
	if s.logger != nil {
		router.Use(logging.LoggingMiddleware(s.logger, runID))
	}

	router.Handle(s.cfg.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return router
}

// Handler exposes the router, mainly for tests
func (s *StatusServer) Handler() http.Handler { return s.router }

// Registry returns the server's Prometheus registry
func (s *StatusServer) Registry() *prometheus.Registry { return s.registry }

func (s *StatusServer) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		s.requests.WithLabelValues(path, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	health := s.health.CheckHealth(ctx)

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.source.Progress())
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// Start listens on the configured address and serves in the background
func (s *StatusServer) Start() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	server := s.server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) && s.logger != nil {
			s.logger.ErrorContext(context.Background(), "Status server stopped", "error", err)
		}
	}()

	if s.logger != nil {
		s.logger.InfoContext(context.Background(), "Status server listening", "address", listener.Addr().String(), "metrics_path", s.cfg.Path)
	}
	return nil
}

// Addr returns the bound address once started
func (s *StatusServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the server
func (s *StatusServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
