package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/storefront-checkout/logging"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const checkTimeout = 5 * time.Second

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response is the detailed health report
type Response struct {
	Status     Status                     `json:"status"`
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	Components map[string]ComponentHealth `json:"components"`
}

// Checker reports the health of one dependency
type Checker interface {
	Check(ctx context.Context) ComponentHealth
	Name() string
}

// Registry runs registered checkers and serves the health endpoints
type Registry struct {
	version  string
	mu       sync.RWMutex
	checkers []Checker
}

// NewRegistry creates an empty registry reporting version
func NewRegistry(version string) *Registry {
	return &Registry{version: version}
}

// Register adds a checker
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers = append(r.checkers, checker)
}

// Report runs every checker concurrently and folds the results into one status
func (r *Registry) Report(ctx context.Context) Response {
	r.mu.RLock()
	checkers := append([]Checker(nil), r.checkers...)
	r.mu.RUnlock()

	results := make([]ComponentHealth, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}()
	}
	wg.Wait()

	overall := StatusHealthy
	components := make(map[string]ComponentHealth, len(checkers))
	for i, c := range checkers {
		h := results[i]
		components[c.Name()] = h
		if h.Status == StatusUnhealthy {
			overall = StatusUnhealthy
		} else if h.Status == StatusDegraded && overall == StatusHealthy {
			overall = StatusDegraded
		}
	}

	return Response{
		Status:     overall,
		Version:    r.version,
		Timestamp:  time.Now().UTC(),
		Components: components,
	}
}

// Handler serves /, /live and /ready relative to where it is mounted
func (r *Registry) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Get("/", r.healthHandler)
	mux.Get("/live", r.livenessHandler)
	mux.Get("/ready", r.readinessHandler)
	return mux
}

func (r *Registry) healthHandler(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
	defer cancel()

	report := r.Report(ctx)
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func (r *Registry) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (r *Registry) readinessHandler(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
	defer cancel()

	if r.Report(ctx).Status == StatusUnhealthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Server exposes a registry on its own port, for processes without an API surface
type Server struct {
	port     int
	registry *Registry
	logger   log.Logger
	server   *http.Server
}

// NewServer creates a standalone health server
func NewServer(port int, registry *Registry, logger log.Logger) *Server {
	return &Server{port: port, registry: registry, logger: logging.OrNop(logger)}
}

// Start serves the health endpoints under /health in the background
func (s *Server) Start() error {
	mux := chi.NewRouter()
	mux.Mount("/health", s.registry.Handler())

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Health check server error", "error", err)
		}
	}()

	s.logger.Info("Health check server started", "port", s.port)
	return nil
}

// Shutdown gracefully shuts down the health check server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// TemporalChecker checks Temporal server connectivity
type TemporalChecker struct {
	client client.Client
}

// NewTemporalChecker creates a new Temporal health checker
func NewTemporalChecker(c client.Client) *TemporalChecker {
	return &TemporalChecker{client: c}
}

func (t *TemporalChecker) Name() string { return "temporal" }

func (t *TemporalChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	_, err := t.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	return result(err, time.Since(start), StatusUnhealthy, "Connected to Temporal server")
}

// Pinger is anything that can prove a remote dependency answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// CommerceChecker checks the commerce backend. A failing backend degrades
// the service rather than taking it out of rotation.
type CommerceChecker struct {
	backend Pinger
}

// NewCommerceChecker creates a commerce backend health checker
func NewCommerceChecker(backend Pinger) *CommerceChecker {
	return &CommerceChecker{backend: backend}
}

func (c *CommerceChecker) Name() string { return "commerce" }

func (c *CommerceChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := c.backend.Ping(ctx)
	return result(err, time.Since(start), StatusDegraded, "Commerce backend reachable")
}

// RedisChecker checks the shared Redis used for rate limits and idempotency
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a Redis health checker
func NewRedisChecker(c *redis.Client) *RedisChecker {
	return &RedisChecker{client: c}
}

func (r *RedisChecker) Name() string { return "redis" }

func (r *RedisChecker) Check(ctx context.Context) ComponentHealth {
	start := time.Now()
	err := r.client.Ping(ctx).Err()
	return result(err, time.Since(start), StatusDegraded, "Connected to Redis")
}

func result(err error, latency time.Duration, failed Status, ok string) ComponentHealth {
	if err != nil {
		return ComponentHealth{
			Status:  failed,
			Message: fmt.Sprintf("check failed: %v", err),
			Latency: latency.String(),
		}
	}
	return ComponentHealth{
		Status:  StatusHealthy,
		Message: ok,
		Latency: latency.String(),
	}
}
