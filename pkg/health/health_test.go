package health

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"webhook-ingest/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestCheckerReportsCriticalFailures(t *testing.T) {
	c := NewChecker(logger.Discard())
	dbErr := errors.New("connection refused")
	var dbDown bool
	c.RegisterDatabaseCheck(func(context.Context) error {
		if dbDown {
			return dbErr
		}
		return nil
	})
	c.RegisterSecretCheck(func(context.Context) bool { return true })
	c.RegisterCheck(ComponentAuditSink, false, func(context.Context) (Status, string, error) {
		return StatusDown, "redis unreachable", errors.New("dial tcp")
	})

	status := c.RunChecks(context.Background())
	assert.Equal(t, StatusUp, status[ComponentDatabase].Status)
	assert.Equal(t, StatusDown, status[ComponentAuditSink].Status)
	assert.True(t, c.IsSystemHealthy(), "non-critical components do not affect readiness")

	dbDown = true
	status = c.RunChecks(context.Background())
	assert.Equal(t, StatusDown, status[ComponentDatabase].Status)
	assert.Equal(t, "connection refused", status[ComponentDatabase].Error)
	assert.False(t, c.IsSystemHealthy())
}

func TestMissingSecretIsUnready(t *testing.T) {
	c := NewChecker(logger.Discard())
	c.RegisterSecretCheck(func(context.Context) bool { return false })

	c.RunChecks(context.Background())
	assert.False(t, c.IsSystemHealthy())
}

func TestUncheckedCriticalComponentIsUnready(t *testing.T) {
	c := NewChecker(logger.Discard())
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })
	assert.False(t, c.IsSystemHealthy())
}

func TestGRPCReporterMirrorsReadiness(t *testing.T) {
	reporter := NewGRPCReporter(logger.Discard())

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := grpc.NewServer()
	reporter.Register(s)
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	reporter.Update(true)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
