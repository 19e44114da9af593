package health

import (
	"context"
	"fmt"
	"net"

	"webhook-ingest/backend/pkg/logger"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status
const ServiceName = "webhook-ingest"

// GRPCReporter exposes readiness over the standard grpc.health.v1 protocol
type GRPCReporter struct {
	server *grpchealth.Server
	log    *logger.Logger
}

// NewGRPCReporter creates a reporter that starts out NOT_SERVING
func NewGRPCReporter(log *logger.Logger) *GRPCReporter {
	if log == nil {
		log = logger.GetGlobal()
	}
	r := &GRPCReporter{server: grpchealth.NewServer(), log: log}
	r.Update(false)
	return r
}

// Update publishes the current readiness
func (r *GRPCReporter) Update(healthy bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		status = healthpb.HealthCheckResponse_SERVING
	}
	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(ServiceName, status)
}

// Register attaches the health service to an existing gRPC server
func (r *GRPCReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.server)
}

// Serve listens on addr until ctx is cancelled
func (r *GRPCReporter) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc health listen %s: %w", addr, err)
	}

	s := grpc.NewServer()
	r.Register(s)

	go func() {
		<-ctx.Done()
		r.server.Shutdown()
		s.GracefulStop()
	}()

	r.log.Info("gRPC health server listening", "addr", lis.Addr().String())
	return s.Serve(lis)
}
