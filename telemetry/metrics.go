package telemetry

// Latency bucket profiles for the two very different request shapes this
// node serves: a local SQLite step versus a quorum-bound replication
// proposal.
var (
	GatewayRequestBuckets     = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}
	ReplicationProposeBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	BarrierWaitBuckets        = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}
)

// Pool metrics — spec §9 "Shared resources" and the original's metrics.c
// counters, reintroduced here as first-class instruments.
var (
	PoolOrderedDepth   Gauge     = NoopStat{}
	PoolUnorderedDepth Gauge     = NoopStat{}
	PoolInFlight       Gauge     = NoopStat{}
	PoolBarrierWait    Histogram = NoopStat{}
)

// Gateway metrics, by request kind (helo, heartbeat, open, prepare, exec,
// query, finalize).
var (
	GatewayRequestsTotal   CounterVec   = noopCounterVec{}
	GatewayRequestDuration HistogramVec = noopHistogramVec{}
)

// Replication metrics.
var (
	WALFramesCapturedTotal     Counter    = NoopStat{}
	ReplicationProposalsTotal  CounterVec = noopCounterVec{}
	ReplicationProposeDuration Histogram  = NoopStat{}
)

// Cluster metrics — peer liveness as observed by the gRPC health-check
// transport, not a gossiped membership view.
var (
	ClusterPeersByStatus   GaugeVec = noopGaugeVec{}
	ClusterQuorumAvailable Gauge    = NoopStat{}
)

// InitMetrics registers every instrument above against the registry
// InitializeTelemetry constructed. Must run after InitializeTelemetry.
func InitMetrics() {
	PoolOrderedDepth = NewGauge("pool_ordered_depth", "Current depth of the pool's ordered queue")
	PoolUnorderedDepth = NewGauge("pool_unordered_depth", "Current depth of the pool's unordered queue")
	PoolInFlight = NewGauge("pool_in_flight", "Number of ordered work items currently executing")
	PoolBarrierWait = NewHistogramWithBuckets("pool_barrier_wait_seconds", "Time a BAR item waits for in-flight ordered work to drain", BarrierWaitBuckets)

	GatewayRequestsTotal = NewCounterVec("gateway_requests_total", "Gateway requests by kind and result", []string{"kind", "result"})
	GatewayRequestDuration = NewHistogramVec("gateway_request_duration_seconds", "Gateway request latency by kind", []string{"kind"}, GatewayRequestBuckets)

	WALFramesCapturedTotal = NewCounter("wal_frames_captured_total", "Total WAL-equivalent frames captured by the intercepting VFS")
	ReplicationProposalsTotal = NewCounterVec("replication_proposals_total", "Replication proposals by outcome", []string{"outcome"})
	ReplicationProposeDuration = NewHistogramWithBuckets("replication_propose_duration_seconds", "Propose-to-commit latency", ReplicationProposeBuckets)

	ClusterPeersByStatus = NewGaugeVec("cluster_peers", "Peers by observed health status", []string{"status"})
	ClusterQuorumAvailable = NewGauge("cluster_quorum_available", "1 if enough peers are ALIVE to form quorum, else 0")
}
