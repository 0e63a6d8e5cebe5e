package grpcx

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/gobarber/libs/runtime"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ClientOptions configures NewClient. Nil TransportCredentials means plaintext, which is what
// services use inside the cluster network.
type ClientOptions struct {
	TransportCredentials grpc.DialOption
}

// NewClient builds a traced client connection. It does not block: the first RPC establishes the
// connection, so a peer that is still starting does not fail the caller's startup.
func NewClient(addr string, opts ClientOptions, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(UnaryClientRequestIDInterceptor()),
	}
	if opts.TransportCredentials != nil {
		dialOpts = append(dialOpts, opts.TransportCredentials)
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	return grpc.NewClient(addr, append(dialOpts, extra...)...)
}

// HealthCheck reports the peer's grpc.health.v1 status for service as a readiness check.
// Anything but SERVING fails.
func HealthCheck(name string, conn grpc.ClientConnInterface, service string) runtime.ReadyCheck {
	client := healthpb.NewHealthClient(conn)
	return runtime.ReadyCheck{Name: name, Check: func(ctx context.Context) error {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			return err
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("%s is %s", service, resp.GetStatus())
		}
		return nil
	}}
}

// NewServer returns a gRPC server with tracing and request id propagation installed.
func NewServer(extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerRequestIDInterceptor()),
	}
	return grpc.NewServer(append(opts, extra...)...)
}
