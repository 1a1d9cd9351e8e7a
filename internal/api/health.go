package api

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"p2pswap/internal/logging"
)

// ServiceName is the gRPC health service name reported for the engine.
const ServiceName = "p2pswap.Engine"

// NewHealthServer creates a gRPC server carrying the standard health
// service. The engine starts NOT_SERVING until WatchHealth reports it ready.
func NewHealthServer(enableReflection bool) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	if enableReflection {
		// Register reflection for grpcurl debugging
		reflection.Register(srv)
	}
	return srv, hs
}

// WatchHealth polls ready and publishes the result until ctx is done, then
// marks everything NOT_SERVING.
func WatchHealth(ctx context.Context, hs *health.Server, ready func() bool, interval time.Duration, logger logging.Logger) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	last := healthpb.HealthCheckResponse_UNKNOWN
	update := func() {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if ready() {
			status = healthpb.HealthCheckResponse_SERVING
		}
		if status != last {
			logger.Infof("Health status for %s: %s", ServiceName, status)
			last = status
		}
		hs.SetServingStatus(ServiceName, status)
		hs.SetServingStatus("", status)
	}

	update()
	ticker := time.NewTicker(interval)
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
