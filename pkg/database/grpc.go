package database

import (
	"context"
	"fmt"
	"net"
	"time"

	"course_messaging_service/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer grpc health check 服務, 供 k8s / docker healthcheck 探測
type HealthServer struct {
	Server *grpc.Server
	Health *health.Server
	Addr   string
}

// StartGRPCHealthServer listen on addr and serve grpc.health.v1, initial status NOT_SERVING
func StartGRPCHealthServer(addr string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc health listen %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.Log.Error("grpc health server stopped", zap.Error(err))
		}
	}()

	return &HealthServer{Server: srv, Health: hs, Addr: lis.Addr().String()}, nil
}

// SetServing flip overall status
func (h *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.Health.SetServingStatus("", status)
}

// Stop graceful stop
func (h *HealthServer) Stop() {
	h.Health.Shutdown()
	h.Server.GracefulStop()
}

// CheckGRPCHealth dial addr and ask grpc.health.v1 for the overall status
func CheckGRPCHealth(ctx context.Context, addr string) (bool, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return false, err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}
