package health

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall
// ("") status.
const ServiceName = "planner.FileStore"

type GRPCServer struct {
	server *grpc.Server
	health *grpchealth.Server
	ln     net.Listener
}

func StartGRPC(addr string) (*GRPCServer, error) {
	if addr == "" {
		return nil, errors.New("grpc health address is empty")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		_ = server.Serve(ln)
	}()
	return &GRPCServer{server: server, health: hs, ln: ln}, nil
}

func (g *GRPCServer) Addr() string {
	return g.ln.Addr().String()
}

func (g *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

func (g *GRPCServer) Stop(ctx context.Context) error {
	g.health.Shutdown()
	done := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		g.server.Stop()
		return ctx.Err()
	}
}
