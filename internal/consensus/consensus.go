// Package consensus defines the interface the write-scheduling core expects
// from its consensus collaborator — spec §6, explicitly out of scope as an
// implementation: "the Raft-style consensus implementation itself". This
// package names the interface plus a single-node reference implementation
// used for tests and standalone operation. It is not a Raft implementation.
package consensus

import (
	"context"
	"errors"
	"sync"

	"github.com/jizhuozhi/go-future"
)

// ErrNotLeader is returned by Propose on a node that is not currently
// leader; callers report NOT_LEADER to the client per spec §7.
var ErrNotLeader = errors.New("consensus: not leader")

// Collaborator is the set of operations spec §6 requires of the consensus
// layer. OnCommit registers the callback delivered in strict index order;
// the collaborator may call it from any goroutine it chooses — the core is
// responsible for re-marshaling onto its own execution vehicles, exactly as
// spec §6 requires.
type Collaborator interface {
	Propose(ctx context.Context, payload []byte) *future.Future[uint64]
	IsLeader() bool
	LeaderAddress() string
	PeerAddresses() []string
	OnCommit(fn func(index uint64, payload []byte))
}

// SingleNode is a trivial Collaborator: this node is always leader, an
// entry commits as soon as it is proposed (index = 1, 2, 3, ...), and there
// are no peers. It exists so the rest of the system — gateway, replication
// hand-off, VFS — can run and be tested without a real consensus
// implementation wired in, matching spec §1's explicit scoping of the
// consensus algorithm itself out of this core.
type SingleNode struct {
	address string

	mu      sync.Mutex
	nextIdx uint64
	onCommit func(index uint64, payload []byte)
}

// NewSingleNode constructs a reference collaborator advertising address as
// both its own and the (only) leader address.
func NewSingleNode(address string) *SingleNode {
	return &SingleNode{address: address}
}

func (s *SingleNode) Propose(_ context.Context, payload []byte) *future.Future[uint64] {
	p := future.NewPromise[uint64]()

	s.mu.Lock()
	s.nextIdx++
	idx := s.nextIdx
	cb := s.onCommit
	s.mu.Unlock()

	p.Set(idx, nil)
	if cb != nil {
		cb(idx, payload)
	}
	return p.Future()
}

func (s *SingleNode) IsLeader() bool { return true }

func (s *SingleNode) LeaderAddress() string { return s.address }

func (s *SingleNode) PeerAddresses() []string { return nil }

func (s *SingleNode) OnCommit(fn func(index uint64, payload []byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = fn
}
