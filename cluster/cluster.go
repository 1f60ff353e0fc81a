// Package cluster tracks peer liveness over gRPC's standard health-checking
// service — the transport spec §6 leaves available for peer_addresses()
// fan-out and HEARTBEATs, with the consensus protocol and its membership
// machinery explicitly out of scope. This replaces the teacher's gossiped
// SWIM NodeRegistry (incarnation numbers, REMOVED/JOINING admin states, a
// gossip broadcaster) with a simpler pull model: each node polls its known
// peer addresses directly rather than disseminating state through the
// cluster, since there is no membership store here to keep consistent.
package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dqlited/dqlited/telemetry"
)

const (
	defaultCheckInterval = 2 * time.Second
	defaultCheckTimeout  = time.Second
	defaultDeadAfter     = 3
)

const (
	StatusAlive   = "ALIVE"
	StatusSuspect = "SUSPECT"
	StatusDead    = "DEAD"
)

// PeerSource supplies the current set of peer addresses to health-check.
// consensus.Collaborator.PeerAddresses satisfies this directly.
type PeerSource func() []string

// PeerStatus is a point-in-time snapshot of one peer's observed health.
type PeerStatus struct {
	Address   string
	Status    string
	LastCheck time.Time
	Failures  int
}

type peerConn struct {
	conn   *grpc.ClientConn
	client grpc_health_v1.HealthClient
}

// Monitor polls PeerSource's addresses on an interval and tracks a
// three-state view (ALIVE/SUSPECT/DEAD) of each. A peer escalates to DEAD
// only after deadAfter consecutive failed checks, so a single dropped probe
// does not flap the cluster gauges.
type Monitor struct {
	source   PeerSource
	interval time.Duration
	deadAfter int

	mu    sync.Mutex
	conns map[string]*peerConn
	state map[string]*PeerStatus

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewMonitor constructs a Monitor with the default 2s poll interval.
func NewMonitor(source PeerSource) *Monitor {
	return &Monitor{
		source:    source,
		interval:  defaultCheckInterval,
		deadAfter: defaultDeadAfter,
		conns:     make(map[string]*peerConn),
		state:     make(map[string]*PeerStatus),
	}
}

// Start begins polling in a background goroutine. No-op if already running.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.loop()
}

// Stop halts polling and closes every peer connection. Blocks until the
// polling goroutine has exited.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh := m.stopCh
	m.mu.Unlock()

	close(stopCh)
	<-m.doneCh
	m.closeAll()
}

func (m *Monitor) loop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.checkAll()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkAll()
		}
	}
}

func (m *Monitor) checkAll() {
	for _, addr := range m.source() {
		m.check(addr)
	}
	m.updateMetrics()
}

func (m *Monitor) check(addr string) {
	pc, err := m.connFor(addr)
	if err != nil {
		log.Warn().Err(err).Str("peer", addr).Msg("cluster: dial failed")
		m.record(addr, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultCheckTimeout)
	defer cancel()

	resp, err := pc.client.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		log.Debug().Err(err).Str("peer", addr).Msg("cluster: health check failed")
		m.record(addr, false)
		return
	}
	m.record(addr, resp.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING)
}

func (m *Monitor) connFor(addr string) (*peerConn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pc, ok := m.conns[addr]; ok {
		return pc, nil
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	pc := &peerConn{conn: conn, client: grpc_health_v1.NewHealthClient(conn)}
	m.conns[addr] = pc
	return pc, nil
}

func (m *Monitor) record(addr string, healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.state[addr]
	if !ok {
		st = &PeerStatus{Address: addr, Status: StatusSuspect}
		m.state[addr] = st
	}
	st.LastCheck = time.Now()

	if healthy {
		if st.Status != StatusAlive {
			log.Info().Str("peer", addr).Msg("cluster: peer transitioned to ALIVE")
		}
		st.Status = StatusAlive
		st.Failures = 0
		return
	}

	st.Failures++
	switch {
	case st.Failures >= m.deadAfter:
		if st.Status != StatusDead {
			log.Warn().Str("peer", addr).Int("failures", st.Failures).Msg("cluster: peer transitioned to DEAD")
		}
		st.Status = StatusDead
	case st.Status == StatusAlive:
		log.Warn().Str("peer", addr).Msg("cluster: peer transitioned to SUSPECT")
		st.Status = StatusSuspect
	}
}

func (m *Monitor) updateMetrics() {
	m.mu.Lock()
	counts := map[string]int{StatusAlive: 0, StatusSuspect: 0, StatusDead: 0}
	for _, st := range m.state {
		counts[st.Status]++
	}
	total := len(m.state)
	m.mu.Unlock()

	telemetry.ClusterPeersByStatus.With(StatusAlive).Set(float64(counts[StatusAlive]))
	telemetry.ClusterPeersByStatus.With(StatusSuspect).Set(float64(counts[StatusSuspect]))
	telemetry.ClusterPeersByStatus.With(StatusDead).Set(float64(counts[StatusDead]))

	alive := counts[StatusAlive] + 1 // +1: self is never health-checked but always counts
	quorum := (total+1)/2 + 1
	if alive >= quorum {
		telemetry.ClusterQuorumAvailable.Set(1)
	} else {
		telemetry.ClusterQuorumAvailable.Set(0)
	}
}

func (m *Monitor) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, pc := range m.conns {
		pc.conn.Close()
		delete(m.conns, addr)
	}
}

// Snapshot returns a point-in-time copy of every peer's observed status,
// exposed for the admin surface and for tests.
func (m *Monitor) Snapshot() []PeerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]PeerStatus, 0, len(m.state))
	for _, st := range m.state {
		out = append(out, *st)
	}
	return out
}
