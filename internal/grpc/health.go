// Package grpcserver exposes the honeypot's gRPC surface: the standard health service.
package grpcserver

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"honeypot-lab/pkg/logger"
)

// ServiceName is the health service name reported alongside the overall status
const ServiceName = "honeypot.v1.Honeypot"

// Checker is a dependency whose reachability decides serving status
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthServer keeps the gRPC health status in line with dependency checks
type HealthServer struct {
	server   *health.Server
	checks   map[string]Checker
	interval time.Duration
	timeout  time.Duration
	logger   *logger.Logger

	mu      sync.RWMutex
	serving bool
}

// NewHealthServer creates a health server that starts out SERVING
func NewHealthServer(checks map[string]Checker, interval time.Duration, log *logger.Logger) *HealthServer {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &HealthServer{
		server:   health.NewServer(),
		checks:   checks,
		interval: interval,
		timeout:  2 * time.Second,
		logger:   log.WithComponent("grpc-health"),
	}
	h.setServing(true)
	return h
}

// Register registers the health service with a gRPC server
func (h *HealthServer) Register(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.server)
}

// Run re-checks dependencies every interval until ctx is done
func (h *HealthServer) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Check pings every dependency once and updates the status.
// It returns the names of the failing dependencies.
func (h *HealthServer) Check(ctx context.Context) []string {
	var failing []string
	for name, c := range h.checks {
		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := c.Ping(pingCtx)
		cancel()
		if err != nil {
			h.logger.Warn().Err(err).Str("dependency", name).Msg("health check failed")
			failing = append(failing, name)
		}
	}
	h.setServing(len(failing) == 0)
	return failing
}

// Serving reports the last computed status
func (h *HealthServer) Serving() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.serving
}

// Shutdown marks every service NOT_SERVING so clients drain before the server stops
func (h *HealthServer) Shutdown() {
	h.server.Shutdown()
	h.mu.Lock()
	h.serving = false
	h.mu.Unlock()
}

func (h *HealthServer) setServing(ok bool) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !ok {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)

	h.mu.Lock()
	changed := h.serving != ok
	h.serving = ok
	h.mu.Unlock()
	if changed {
		h.logger.Info().Str("status", status.String()).Msg("health status changed")
	}
}
