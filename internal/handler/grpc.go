package handler

import (
	"log/slog"
	"net"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	grpc_ctxtags "github.com/grpc-ecosystem/go-grpc-middleware/tags"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/Harshitk-cp/hivecast/internal/config"
	"github.com/Harshitk-cp/hivecast/internal/health"
)

// ServiceName is the gRPC health service name of the session service.
const ServiceName = "hivecast.SessionService"

// GRPCServer serves the standard gRPC health protocol backed by the health
// checker.
type GRPCServer struct {
	server *grpc.Server
	health *grpchealth.Server
	log    *slog.Logger
}

// NewGRPCServer creates a new gRPC server
func NewGRPCServer(cfg *config.Config, checker *health.Checker, log *slog.Logger) *GRPCServer {
	if log == nil {
		log = slog.Default()
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_ctxtags.UnaryServerInterceptor(),
			grpc_recovery.UnaryServerInterceptor(),
		)),
		grpc.ChainStreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_ctxtags.StreamServerInterceptor(),
			grpc_recovery.StreamServerInterceptor(),
		)),
	}
	if cfg.GRPC.KeepAliveTime > 0 {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.GRPC.KeepAliveTime,
			Timeout: cfg.GRPC.KeepAliveTimeout,
		}))
	}
	if cfg.GRPC.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.GRPC.MaxConcurrentStreams)))
	}

	s := &GRPCServer{
		server: grpc.NewServer(opts...),
		health: grpchealth.NewServer(),
		log:    log.With("component", "grpc"),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)

	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	if checker != nil {
		checker.OnChange(s.SetStatus)
	}
	return s
}

// SetStatus publishes an overall health status. Only up counts as serving.
func (s *GRPCServer) SetStatus(status health.Status) {
	serving := healthpb.HealthCheckResponse_NOT_SERVING
	if status == health.StatusUp {
		serving = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(ServiceName, serving)
}

// Serve serves on listener until the server stops
func (s *GRPCServer) Serve(listener net.Listener) error {
	s.log.Info("Starting gRPC server", "address", listener.Addr().String())
	return s.server.Serve(listener)
}

// GracefulStop stops the server after pending RPCs finish
func (s *GRPCServer) GracefulStop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
