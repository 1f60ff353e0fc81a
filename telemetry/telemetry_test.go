package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dqlited/dqlited/cfg"
)

func resetRegistry(t *testing.T) {
	t.Helper()
	original := registry
	registry = nil
	t.Cleanup(func() { registry = original })
}

func TestNoopInstrumentsWithoutRegistry(t *testing.T) {
	resetRegistry(t)

	c := NewCounter("x", "x")
	c.Inc()
	c.Add(1)

	g := NewGauge("y", "y")
	g.Set(1)
	g.Inc()
	g.Dec()
	g.Add(1)

	h := NewHistogramWithBuckets("z", "z", []float64{1, 2})
	h.Observe(1)

	cv := NewCounterVec("cv", "cv", []string{"label"})
	cv.With("a").Inc()

	hv := NewHistogramVec("hv", "hv", []string{"label"}, []float64{1, 2})
	hv.With("a").Observe(1)

	gv := NewGaugeVec("gv", "gv", []string{"label"})
	gv.With("a").Set(1)
}

func TestInitializeTelemetryDisabledLeavesRegistryNil(t *testing.T) {
	resetRegistry(t)

	original := cfg.Config
	cfg.Config = &cfg.Configuration{Prometheus: cfg.PrometheusConfiguration{Enabled: false}}
	t.Cleanup(func() { cfg.Config = original })

	InitializeTelemetry()
	require.Nil(t, registry)
	require.Nil(t, Handler())
}

func TestInitializeTelemetryEnabledBuildsRealInstruments(t *testing.T) {
	resetRegistry(t)

	original := cfg.Config
	cfg.Config = &cfg.Configuration{NodeID: 7, Prometheus: cfg.PrometheusConfiguration{Enabled: true}}
	t.Cleanup(func() { cfg.Config = original })

	InitializeTelemetry()
	require.NotNil(t, registry)
	require.NotNil(t, Handler())

	InitMetrics()
	t.Cleanup(func() {
		PoolOrderedDepth = NoopStat{}
		PoolUnorderedDepth = NoopStat{}
		PoolInFlight = NoopStat{}
		PoolBarrierWait = NoopStat{}
		GatewayRequestsTotal = noopCounterVec{}
		GatewayRequestDuration = noopHistogramVec{}
		WALFramesCapturedTotal = NoopStat{}
		ReplicationProposalsTotal = noopCounterVec{}
		ReplicationProposeDuration = NoopStat{}
		ClusterPeersByStatus = noopGaugeVec{}
		ClusterQuorumAvailable = NoopStat{}
	})

	require.NotPanics(t, func() {
		PoolOrderedDepth.Set(3)
		GatewayRequestsTotal.With("exec", "ok").Inc()
		GatewayRequestDuration.With("exec").Observe(0.01)
		ClusterPeersByStatus.With("ALIVE").Set(1)
		ClusterQuorumAvailable.Set(1)
	})
}
