package replication

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/jizhuozhi/go-future"
	"github.com/rs/zerolog/log"

	"github.com/dqlited/dqlited/internal/consensus"
	"github.com/dqlited/dqlited/internal/vfs"
)

// Applier is the subset of internal/vfs.Handle that Replicator needs to
// apply a committed entry: written this way so tests can stub it without a
// real SQLite connection.
type Applier interface {
	Apply(ctx context.Context, frames vfs.FrameSet) error
}

// HandleLookup resolves a database id to the Applier backing it. Databases
// that are not open on this node (e.g. a follower that has not yet been
// asked to OPEN a given name) are simply skipped by OnCommit — nothing to
// apply into.
type HandleLookup interface {
	HandleFor(dbID uint64) (Applier, bool)
	NameFor(dbID uint64) (string, bool)
}

// EntryPublisher fans a successfully applied entry's frames out to external
// CDC consumers — see the publisher package. Optional: nil (the default)
// means no fan-out, matching a node that never configured a publisher sink.
type EntryPublisher interface {
	PublishApplied(dbID uint64, database string, index uint64, frames []vfs.Frame)
}

// ErrNotLeader mirrors consensus.ErrNotLeader with the current leader hint
// attached, matching spec §7's NOT_LEADER error kind.
type ErrNotLeader struct {
	Leader string
}

func (e ErrNotLeader) Error() string {
	return fmt.Sprintf("replication: not leader, current leader is %q", e.Leader)
}

func (e ErrNotLeader) Unwrap() error { return consensus.ErrNotLeader }

// Replicator implements vfs.Proposer on the leader path and drives
// consensus.Collaborator.OnCommit on every node — spec §4.5.
type Replicator struct {
	collaborator consensus.Collaborator
	handles      HandleLookup
	applied      *appliedIndex
	dedup        *dedupFilter
	publisher    EntryPublisher

	mu      sync.Mutex
	pending map[uint64]*future.Promise[error]
	// results holds the outcome of an index that onCommit has already
	// processed before Propose got a chance to register a waiter for it —
	// possible with a collaborator (such as consensus.SingleNode) that
	// invokes OnCommit synchronously from within Propose itself. Entries
	// are consumed and removed the first time Propose observes them, so
	// this stays bounded as long as every committed index was proposed by
	// this node and awaited exactly once — true of SingleNode. A
	// multi-node collaborator delivering commits this node never proposed
	// would need a bounded/expiring results map instead.
	results map[uint64]error
}

// New constructs a Replicator. appliedDB is a Pebble database dedicated to
// this node's applied-index bookkeeping (see internal/replication.appliedIndex).
func New(collaborator consensus.Collaborator, handles HandleLookup, appliedDB *pebble.DB) *Replicator {
	r := &Replicator{
		collaborator: collaborator,
		handles:      handles,
		applied:      newAppliedIndex(appliedDB),
		dedup:        newDedupFilter(),
		pending:      make(map[uint64]*future.Promise[error]),
		results:      make(map[uint64]error),
	}
	collaborator.OnCommit(r.onCommit)
	return r
}

// SetPublisher installs the optional CDC fan-out hook. Call before traffic
// starts flowing; nil (never called) disables fan-out entirely.
func (r *Replicator) SetPublisher(p EntryPublisher) {
	r.mu.Lock()
	r.publisher = p
	r.mu.Unlock()
}

// Propose implements vfs.Proposer: the leader-only entry point the VFS
// commit hook calls, blocking the caller until the entry commits or is
// rejected — spec §4.4 step 3 and §4.5's leader path.
func (r *Replicator) Propose(ctx context.Context, frames vfs.FrameSet) error {
	if !r.collaborator.IsLeader() {
		return ErrNotLeader{Leader: r.collaborator.LeaderAddress()}
	}

	entry := newEntry(frames.DBID, frames.Frames)
	payload, err := encode(entry)
	if err != nil {
		return err
	}

	idxFuture := r.collaborator.Propose(ctx, payload)
	index, ferr := idxFuture.Get()
	if ferr != nil {
		return fmt.Errorf("replication: propose rejected: %w", ferr)
	}

	r.mu.Lock()
	if appErr, ok := r.results[index]; ok {
		delete(r.results, index)
		r.mu.Unlock()
		return appErr
	}
	p := future.NewPromise[error]()
	r.pending[index] = p
	r.mu.Unlock()

	appErr, ferr := p.Future().Get()
	if ferr != nil {
		return fmt.Errorf("replication: waiting for commit of index %d: %w", index, ferr)
	}
	return appErr
}

// onCommit is registered with the consensus collaborator at construction
// and is called for every committed index, on this node's leader path and
// on every follower — spec §4.5's apply() path, and (when a local waiter is
// registered for this index) the resolution of that waiter's future.
func (r *Replicator) onCommit(index uint64, payload []byte) {
	entry, err := decode(payload)
	if err != nil {
		log.Error().Err(err).Uint64("index", index).Msg("replication: dropping malformed committed entry")
		r.resolve(index, err)
		return
	}
	if err := entry.Verify(); err != nil {
		log.Error().Err(err).Uint64("index", index).Msg("replication: checksum mismatch on committed entry")
		r.resolve(index, err)
		return
	}

	// A cuckoo filter miss is a definite no: this (dbID, index) has never
	// been marked applied, so there is no need to consult pebble before
	// applying. A hit may be a false positive, so it falls through to the
	// exact, pebble-backed check.
	if r.dedup.MaybeApplied(entry.DBID, index) {
		if applied, err := r.applied.Get(entry.DBID); err == nil && index <= applied {
			r.resolve(index, nil)
			return
		}
	}

	if h, ok := r.handles.HandleFor(entry.DBID); ok {
		if err := h.Apply(context.Background(), vfs.FrameSet{DBID: entry.DBID, Frames: entry.Frames}); err != nil {
			log.Error().Err(err).Uint64("db", entry.DBID).Uint64("index", index).Msg("replication: apply failed")
			r.resolve(index, err)
			return
		}
		if err := r.applied.Set(entry.DBID, index); err != nil {
			log.Error().Err(err).Msg("replication: failed to persist applied index")
		}
		r.dedup.MarkApplied(entry.DBID, index)

		r.mu.Lock()
		pub := r.publisher
		r.mu.Unlock()
		if pub != nil {
			name, _ := r.handles.NameFor(entry.DBID)
			pub.PublishApplied(entry.DBID, name, index, entry.Frames)
		}
	}

	r.resolve(index, nil)
}

// resolve delivers the outcome of index to whichever side gets there first:
// a Propose call already waiting on it, or (if Propose has not yet
// registered its waiter — see the results field) a slot for Propose to
// pick up once it does.
func (r *Replicator) resolve(index uint64, err error) {
	r.mu.Lock()
	p, ok := r.pending[index]
	if ok {
		delete(r.pending, index)
	} else {
		r.results[index] = err
	}
	r.mu.Unlock()
	if ok {
		p.Set(err, nil)
	}
}
