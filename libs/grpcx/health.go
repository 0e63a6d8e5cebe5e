package grpcx

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// RegisterHealth installs the standard grpc.health.v1 service on srv. The named service starts
// NOT_SERVING until the first WatchReadiness pass.
func RegisterHealth(srv *grpc.Server, service string) *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return hs
}

// WatchReadiness mirrors the /readyz checks into the health service until ctx is done.
func WatchReadiness(ctx context.Context, logger *slog.Logger, hs *health.Server, service string, every time.Duration, checks ...runtime.ReadyCheck) {
	if every <= 0 {
		every = 10 * time.Second
	}
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if failures := runtime.RunChecks(ctx, 2*time.Second, checks...); len(failures) > 0 {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn("grpc health degraded", "service", service, "failures", failures)
		}
		hs.SetServingStatus(service, status)
	}

	update()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			update()
		}
	}
}
