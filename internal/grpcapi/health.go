// Package grpcapi serves the standard gRPC health protocol so load
// balancers and gate controllers can probe the decision engine.
package grpcapi

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is reported alongside the overall ("") status.
const ServiceName = "campusgate.v1.GateService"

const defaultProbeInterval = 10 * time.Second

// Checker reports whether the backing store is usable.
type Checker func(ctx context.Context) error

type HealthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	check    Checker
	interval time.Duration
	logger   *slog.Logger
}

func NewHealthServer(check Checker, interval time.Duration, logger *slog.Logger) *HealthServer {
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &HealthServer{
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		check:    check,
		interval: interval,
		logger:   logger.With("component", "grpc_health"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Serve blocks until Shutdown. It returns nil after a graceful stop.
func (s *HealthServer) Serve(lis net.Listener) error {
	err := s.grpc.Serve(lis)
	if err == grpc.ErrServerStopped {
		return nil
	}
	return err
}

// Run probes the checker until ctx is done.
func (s *HealthServer) Run(ctx context.Context) {
	s.Probe(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

// Probe runs the checker once and publishes the result.
func (s *HealthServer) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		pctx, cancel := context.WithTimeout(ctx, s.interval)
		err := s.check(pctx)
		cancel()
		if err != nil {
			s.logger.Warn("health probe failed", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Shutdown marks every service NOT_SERVING and stops accepting RPCs.
func (s *HealthServer) Shutdown(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}
