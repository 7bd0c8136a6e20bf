package transport

import (
	"sync"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	grpcMiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcZap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpcRecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpcCtxTags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	grpcPrometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name of the chat mirror.
const ServiceName = "ledgerchat.Chat"

// HealthReporter mirrors the network status into a gRPC health server:
// SERVING while connected, NOT_SERVING otherwise.
type HealthReporter struct {
	server *health.Server

	once        sync.Once
	unsubscribe func()
}

// NewHealthReporter seeds the health server from the current status and
// follows later transitions.
func NewHealthReporter(source StatusSource) *HealthReporter {
	r := &HealthReporter{server: health.NewServer()}
	r.set(source.Status())
	r.unsubscribe = source.Subscribe(func(_, next model.NetworkStatus) {
		r.set(next)
	})
	return r
}

// Server returns the health service implementation.
func (r *HealthReporter) Server() *health.Server {
	return r.server
}

// Close stops following the status and reports NOT_SERVING from then on.
func (r *HealthReporter) Close() {
	r.once.Do(func() {
		r.unsubscribe()
		r.server.Shutdown()
	})
}

func (r *HealthReporter) set(status model.NetworkStatus) {
	serving := healthpb.HealthCheckResponse_NOT_SERVING
	if status == model.NetworkConnected {
		serving = healthpb.HealthCheckResponse_SERVING
	}
	r.server.SetServingStatus(ServiceName, serving)
	r.server.SetServingStatus("", serving)
}

// NewGRPCServer builds a gRPC server with the recovery, tags, prometheus and
// logging interceptors, and registers the health service on it.
func NewGRPCServer(reporter *HealthReporter, logger *zap.Logger) *grpc.Server {
	chain := []grpc.UnaryServerInterceptor{
		grpcRecovery.UnaryServerInterceptor(),
		grpcCtxTags.UnaryServerInterceptor(),
		grpcPrometheus.UnaryServerInterceptor,
		grpcZap.UnaryServerInterceptor(logger),
	}
	server := grpc.NewServer(
		grpc.UnaryInterceptor(grpcMiddleware.ChainUnaryServer(chain...)),
	)
	healthpb.RegisterHealthServer(server, reporter.Server())

	grpcPrometheus.EnableHandlingTimeHistogram()
	grpcPrometheus.Register(server)
	return server
}
