package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 5 * time.Second

// RunServer runs the REST API and the gRPC health server until ctx is done
func RunServer(ctx context.Context, cfg Config, service *depositService) error {
	if len(cfg.GRPCPort) == 0 {
		return fmt.Errorf("invalid TCP port for gRPC server: '%s'", cfg.GRPCPort)
	}

	if len(cfg.HTTPPort) == 0 {
		return fmt.Errorf("invalid TCP port for HTTP server: '%s'", cfg.HTTPPort)
	}

	go func() {
		if err := runRestServer(ctx, service.Router(), cfg); err != nil {
			log.Errorf("REST server stopped: %v", err)
		}
	}()

	go func() {
		if err := runGRPCServer(ctx, newHealthChecker(service.storage), cfg.GRPCPort); err != nil {
			log.Errorf("gRPC server stopped: %v", err)
		}
	}()

	return nil
}

// healthChecker implements grpc.health.v1. The service is SERVING while the
// contract state can be read from the storage.
type healthChecker struct {
	storage batchHistoryStorage
}

func newHealthChecker(storage batchHistoryStorage) *healthChecker {
	return &healthChecker{storage: storage}
}

func (s *healthChecker) status(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if _, err := s.storage.GetContractState(ctx); err != nil {
		log.Warnf("health check failed: %v", err)
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// Check returns the current status of the server for unary gRPC health requests
func (s *healthChecker) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{
		Status: s.status(ctx),
	}, nil
}

// Watch returns the current status of the server for stream gRPC health requests
func (s *healthChecker) Watch(req *grpc_health_v1.HealthCheckRequest, server grpc_health_v1.Health_WatchServer) error {
	return server.Send(&grpc_health_v1.HealthCheckResponse{
		Status: s.status(server.Context()),
	})
}

func runGRPCServer(ctx context.Context, healthService grpc_health_v1.HealthServer, port string) error {
	listen, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	server := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthService)

	go func() {
		<-ctx.Done()
		server.GracefulStop()
	}()

	log.Info("gRPC Server is serving at ", port)
	return server.Serve(listen)
}

func runRestServer(ctx context.Context, router *gin.Engine, cfg Config) error {
	srv := &http.Server{
		ReadTimeout: cfg.ReadTimeout.Duration,
		Addr:        ":" + cfg.HTTPPort,
		Handler:     router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Restful Server is serving at ", cfg.HTTPPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
