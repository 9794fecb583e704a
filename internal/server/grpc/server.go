package grpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/ekisa-team/lector/internal/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// NewServer creates a gRPC server exposing the narrator and the standard
// health service. Eviction runs before every call, as on HTTP.
func NewServer(svc *service.Narrator, logger *slog.Logger) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		loggingInterceptor(logger),
		evictionInterceptor(svc),
	))

	RegisterNarratorServer(s, NewNarratorHandler(svc))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	return s
}

func evictionInterceptor(svc *service.Narrator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		svc.Evict(ctx)
		return handler(ctx, req)
	}
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("gRPC request", "method", info.FullMethod, "code", status.Code(err).String(), "elapsed", time.Since(start))
		return resp, err
	}
}
