package grpcsvc

import (
	"errors"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server — gRPC-сервер с MarketplaceService, health и reflection.
type Server struct {
	*grpc.Server
	Health *health.Server
}

// NewServer собирает gRPC-сервер. registerer == nil отключает prometheus-интерсепторы.
func NewServer(service MarketplaceServer, registerer prometheus.Registerer, logger *log.Entry, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	var grpcMetrics *promgrpc.ServerMetrics
	if registerer != nil {
		grpcMetrics = registerServerMetrics(registerer, logger)
		opts = append(opts, grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	}

	server := grpc.NewServer(opts...)
	RegisterMarketplaceServer(server, service)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	// reflection нужен grpcurl и нагрузочным инструментам
	reflection.Register(server)

	if grpcMetrics != nil {
		grpcMetrics.InitializeMetrics(server)
	}

	return &Server{Server: server, Health: healthServer}
}

// MarkNotServing переводит health в NOT_SERVING перед остановкой.
func (s *Server) MarkNotServing() {
	s.Health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.Health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
}

func registerServerMetrics(registerer prometheus.Registerer, logger *log.Entry) *promgrpc.ServerMetrics {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registerer.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("failed to register grpc metrics")
	}
	return grpcMetrics
}
