package health

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const watchInterval = 5 * time.Second

// Checker reports whether a dependency is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type Server struct {
	grpc_health_v1.UnimplementedHealthServer

	checkers map[string]Checker
	timeout  time.Duration
}

func NewServer(timeout time.Duration, checkers map[string]Checker) *Server {
	return &Server{
		checkers: checkers,
		timeout:  timeout,
	}
}

func (s *Server) Check(
	ctx context.Context,
	request *grpc_health_v1.HealthCheckRequest,
) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{
		Status: s.status(ctx, request.GetService()),
	}, nil
}

func (s *Server) Watch(
	request *grpc_health_v1.HealthCheckRequest,
	stream grpc_health_v1.Health_WatchServer) error {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	last := grpc_health_v1.HealthCheckResponse_UNKNOWN
	for {
		current := s.status(stream.Context(), request.GetService())
		if current != last {
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: current}); err != nil {
				return err
			}
			last = current
		}

		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case <-ticker.C:
		}
	}
}

// status checks one named dependency, or all of them for the empty service name.
func (s *Server) status(ctx context.Context, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if service != "" {
		checker, found := s.checkers[service]
		if !found {
			return grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
		}
		if err := checker.Ping(ctx); err != nil {
			return grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		return grpc_health_v1.HealthCheckResponse_SERVING
	}

	for _, checker := range s.checkers {
		if err := checker.Ping(ctx); err != nil {
			return grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
	}

	return grpc_health_v1.HealthCheckResponse_SERVING
}

func RegisterService(server *grpc.Server, healthServer *Server) {
	grpc_health_v1.RegisterHealthServer(server, healthServer)
}
