package replication

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/jizhuozhi/go-future"
	"github.com/stretchr/testify/require"

	"github.com/dqlited/dqlited/internal/consensus"
	dqvfs "github.com/dqlited/dqlited/internal/vfs"
)

func newMemPebble(t *testing.T) *pebble.DB {
	t.Helper()
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type stubApplier struct {
	mu      sync.Mutex
	applied []dqvfs.FrameSet
	err     error
}

func (a *stubApplier) Apply(_ context.Context, fs dqvfs.FrameSet) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, fs)
	return nil
}

func (a *stubApplier) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

type stubHandles struct {
	mu     sync.Mutex
	byDBID map[uint64]Applier
}

func newStubHandles() *stubHandles {
	return &stubHandles{byDBID: make(map[uint64]Applier)}
}

func (s *stubHandles) set(dbID uint64, a Applier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byDBID[dbID] = a
}

func (s *stubHandles) HandleFor(dbID uint64) (Applier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byDBID[dbID]
	return a, ok
}

func (s *stubHandles) NameFor(dbID uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byDBID[dbID]
	return "testdb", ok
}

func sampleFrames() []dqvfs.Frame {
	return []dqvfs.Frame{
		{
			Table: "widgets",
			Op:    dqvfs.OpInsert,
			RowID: 1,
			New:   map[string][]byte{"id": []byte("1"), "name": []byte("gizmo")},
		},
	}
}

func TestProposeAppliesLocallyAndResolves(t *testing.T) {
	node := consensus.NewSingleNode("node-a")
	handles := newStubHandles()
	applier := &stubApplier{}
	handles.set(7, applier)

	r := New(node, handles, newMemPebble(t))

	err := r.Propose(context.Background(), dqvfs.FrameSet{DBID: 7, Frames: sampleFrames()})
	require.NoError(t, err)
	require.Equal(t, 1, applier.count())

	idx, err := r.applied.Get(7)
	require.NoError(t, err)
	require.Equal(t, uint64(1), idx)
}

func TestProposeReturnsErrorFromApply(t *testing.T) {
	node := consensus.NewSingleNode("node-a")
	handles := newStubHandles()
	applyErr := errors.New("apply failed")
	handles.set(7, &stubApplier{err: applyErr})

	r := New(node, handles, newMemPebble(t))

	err := r.Propose(context.Background(), dqvfs.FrameSet{DBID: 7, Frames: sampleFrames()})
	require.ErrorIs(t, err, applyErr)
}

func TestOnCommitSkipsAlreadyAppliedIndex(t *testing.T) {
	node := consensus.NewSingleNode("node-a")
	handles := newStubHandles()
	applier := &stubApplier{}
	handles.set(7, applier)

	r := New(node, handles, newMemPebble(t))

	entry := newEntry(7, sampleFrames())
	payload, err := encode(entry)
	require.NoError(t, err)

	// Simulate a replay of an already-applied index: mark index 5 as
	// applied, then deliver an entry at that same index directly.
	require.NoError(t, r.applied.Set(7, 5))
	r.onCommit(5, payload)

	require.Equal(t, 0, applier.count())
}

func TestOnCommitDropsCorruptedPayload(t *testing.T) {
	node := consensus.NewSingleNode("node-a")
	handles := newStubHandles()
	applier := &stubApplier{}
	handles.set(7, applier)

	r := New(node, handles, newMemPebble(t))

	entry := newEntry(7, sampleFrames())
	payload, err := encode(entry)
	require.NoError(t, err)
	entry.Frames[0].Table = "tampered"
	tampered, err := encode(entry)
	require.NoError(t, err)
	require.NotEqual(t, payload, tampered)

	r.onCommit(1, tampered)
	require.Equal(t, 0, applier.count())
}

type followerCollaborator struct {
	leader string
}

func (f *followerCollaborator) Propose(ctx context.Context, payload []byte) *future.Future[uint64] {
	panic("must not be called on a follower")
}

func (f *followerCollaborator) IsLeader() bool          { return false }
func (f *followerCollaborator) LeaderAddress() string   { return f.leader }
func (f *followerCollaborator) PeerAddresses() []string { return nil }
func (f *followerCollaborator) OnCommit(func(index uint64, payload []byte)) {}

func TestProposeFailsWhenNotLeader(t *testing.T) {
	handles := newStubHandles()
	fc := &followerCollaborator{leader: "node-b"}
	r := New(fc, handles, newMemPebble(t))

	err := r.Propose(context.Background(), dqvfs.FrameSet{DBID: 7, Frames: sampleFrames()})
	require.Error(t, err)
	require.ErrorIs(t, err, consensus.ErrNotLeader)
}
