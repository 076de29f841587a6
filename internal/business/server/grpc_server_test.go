package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/pulsedash/x-connector/internal/config"
)

func freeAddr(t *testing.T) string {
	t.Helper()

	l, err := new(net.ListenConfig).Listen(t.Context(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

func TestStartGRPCServer_HealthCheck(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	addr := freeAddr(t)
	cfg := &config.Config{
		GRPC: config.GRPCServer{
			GRPCServer:      commoncfg.GRPCServer{Address: addr},
			ShutdownTimeout: time.Second,
		},
	}

	done := make(chan error, 1)
	go func() { done <- StartGRPCServer(ctx, cfg) }()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gRPC server did not stop")
	}
}

func TestStartGRPCServer_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	cfg := &config.Config{
		GRPC: config.GRPCServer{
			GRPCServer:      commoncfg.GRPCServer{Address: "localhost:0"},
			ShutdownTimeout: time.Second,
		},
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- StartGRPCServer(ctx, cfg)
	}()

	// give the server a moment to start
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down within timeout")
	}
}

func TestStartGRPCServer_AddressInUse(t *testing.T) {
	l, err := new(net.ListenConfig).Listen(t.Context(), "tcp", "localhost:0")
	require.NoError(t, err)
	defer l.Close()

	cfg := &config.Config{
		GRPC: config.GRPCServer{
			GRPCServer:      commoncfg.GRPCServer{Address: l.Addr().String()},
			ShutdownTimeout: time.Second,
		},
	}

	err = StartGRPCServer(t.Context(), cfg)
	assert.Error(t, err)
}
