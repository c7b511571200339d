package grpc

import (
	"context"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/tair/heat-service/internal/heat/domain"
	"github.com/tair/heat-service/pkg/logger"
)

// ServiceName is the name reported by the health service for the heat API
const ServiceName = "heat.v1.HeatService"

// DefaultCheckInterval is how often the store is pinged when none is configured
const DefaultCheckInterval = 10 * time.Second

// HealthMonitor publishes store reachability through the standard gRPC health service
type HealthMonitor struct {
	store    domain.Store
	server   *health.Server
	interval time.Duration
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(store domain.Store, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &HealthMonitor{
		store:    store,
		server:   health.NewServer(),
		interval: interval,
	}
}

// Check pings the store once and updates the serving status
func (m *HealthMonitor) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := m.store.Ping(ctx); err != nil {
		logger.Warn(ctx).Err(err).Msg("Store health check failed")
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	m.server.SetServingStatus("", status)
	m.server.SetServingStatus(ServiceName, status)
	return status
}

// Run checks the store until ctx is cancelled
func (m *HealthMonitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so clients drain before the listener closes
func (m *HealthMonitor) Shutdown() {
	m.server.Shutdown()
}

// NewServer creates a gRPC server exposing the health service
func NewServer(monitor *HealthMonitor) *grpc.Server {
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			LoggingInterceptor,
			MetricsInterceptor,
		),
	)

	healthpb.RegisterHealthServer(server, monitor.server)
	reflection.Register(server)
	return server
}
