package cluster

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthServer wraps grpc's reference health-checking implementation,
// registered on this node's gRPC listener so peers' Monitor can probe it —
// the serving side of the peer_addresses()/HEARTBEAT transport.
type HealthServer struct {
	inner *health.Server
}

func NewHealthServer() *HealthServer {
	return &HealthServer{inner: health.NewServer()}
}

// Register attaches the health service to srv and marks the node serving.
func (h *HealthServer) Register(srv *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(srv, h.inner)
	h.inner.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
}

// SetServing flips the node's reported status, used to fail health checks
// during a graceful drain ahead of shutdown.
func (h *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.inner.SetServingStatus("", status)
}
