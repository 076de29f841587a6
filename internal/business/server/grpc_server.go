package server

import (
	"context"
	"net"

	"github.com/openkcm/common-sdk/pkg/commongrpc"
	"github.com/samber/oops"
	"google.golang.org/grpc/health"

	slogctx "github.com/veqryn/slog-context"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/pulsedash/x-connector/internal/config"
)

// StartGRPCServer serves the gRPC health service until ctx is done. The
// overall status flips to NOT_SERVING before the graceful stop begins.
func StartGRPCServer(ctx context.Context, cfg *config.Config) error {
	listener, err := new(net.ListenConfig).Listen(ctx, "tcp", cfg.GRPC.Address)
	if err != nil {
		return oops.In("gRPC Server").
			WithContext(ctx).
			Wrapf(err, "creating listener")
	}

	srv := commongrpc.NewServer(ctx, &cfg.GRPC.GRPCServer)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)

	served := make(chan struct{})
	go func() {
		defer close(served)

		slogctx.Info(ctx, "Starting gRPC server", "address", listener.Addr().String())

		if err := srv.Serve(listener); err != nil {
			slogctx.Error(ctx, "Failed to serve gRPC endpoint", "error", err)
		}
	}()

	<-ctx.Done()

	healthSrv.Shutdown()
	stopGRPC(ctx, srv, cfg)
	<-served

	slogctx.Info(ctx, "Stopped gRPC server")

	return nil
}

type stoppable interface {
	GracefulStop()
	Stop()
}

func stopGRPC(ctx context.Context, srv stoppable, cfg *config.Config) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.GRPC.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		slogctx.Info(ctx, "Completed graceful shutdown of gRPC server")
	case <-stopCtx.Done():
		srv.Stop()
		slogctx.Warn(ctx, "Forced shutdown of gRPC server after timeout")
	}
}
