package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/exam-importer/internal/common"
)

// NewGRPCServer registers the extraction and health services. Health for
// ServiceName starts NOT_SERVING; the caller flips it once dependencies are up.
func NewGRPCServer(svc ExtractionServer, logger *slog.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append(opts, grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	gs := grpc.NewServer(opts...)

	RegisterExtractionServer(gs, svc)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return gs, hs
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		reqID := common.RequestIDFromContext(ctx)
		if reqID == "" {
			reqID = uuid.New().String()
			ctx = common.WithRequestID(ctx, reqID)
		}
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		if err != nil {
			logger.Warn("grpc.call", "method", info.FullMethod, "req_id", reqID, "code", code.String(), "elapsed_ms", time.Since(start).Milliseconds(), "err", err)
			return resp, err
		}
		logger.Info("grpc.call", "method", info.FullMethod, "req_id", reqID, "code", code.String(), "elapsed_ms", time.Since(start).Milliseconds())
		return resp, nil
	}
}
