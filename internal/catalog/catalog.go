// Package catalog owns the node-wide mapping from database name to the one
// internal/vfs.Handle backing it. Spec §3's "database handle" is scoped to
// a connection's lifetime, but replication entries are keyed by a database
// identity that is shared across every connection on this node that has the
// same database open (all of them see the same file, or the same
// shared-cache in-memory database) — so the handle itself, and the id
// replication entries carry, must be a single node-wide object refcounted
// across connections rather than duplicated per connection.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/dqlited/dqlited/internal/id"
	"github.com/dqlited/dqlited/internal/replication"
	"github.com/dqlited/dqlited/internal/vfs"
)

type entry struct {
	dbID   uint64
	handle *vfs.Handle
	refs   int
}

// Catalog is safe for concurrent use by every gateway connection on a node.
type Catalog struct {
	dataDir string

	mu       sync.Mutex
	proposer vfs.Proposer
	byName   map[string]*entry
	byID     map[uint64]*entry
}

// New constructs an empty Catalog. dataDir roots durable (non-volatile) vfs
// DSNs. Call SetProposer before the first Open — replication.New itself
// needs a HandleLookup (this Catalog) to construct the Replicator that
// becomes that proposer, so the two are wired together after both exist.
func New(dataDir string) *Catalog {
	return &Catalog{
		dataDir: dataDir,
		byName:  make(map[string]*entry),
		byID:    make(map[uint64]*entry),
	}
}

// SetProposer installs the replication hand-off protocol every database
// this node opens will use — spec §4.5, one Replicator per node.
func (c *Catalog) SetProposer(p vfs.Proposer) {
	c.mu.Lock()
	c.proposer = p
	c.mu.Unlock()
}

// Open returns the handle for name, opening it if this is the first
// reference, and increments its refcount. Callers must call Release exactly
// once per successful Open when their connection no longer needs it.
func (c *Catalog) Open(ctx context.Context, name, vfsName string) (dbID uint64, handle *vfs.Handle, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.byName[name]; ok {
		e.refs++
		return e.dbID, e.handle, nil
	}

	newID := id.Next()
	h, err := vfs.Open(ctx, c.dataDir, vfsName, name, newID, c.proposer)
	if err != nil {
		return 0, nil, fmt.Errorf("catalog: open %s: %w", name, err)
	}

	e := &entry{dbID: newID, handle: h, refs: 1}
	c.byName[name] = e
	c.byID[newID] = e
	return newID, h, nil
}

// Release drops one reference to dbID, closing the underlying handle once
// the last connection referencing it releases.
func (c *Catalog) Release(dbID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byID[dbID]
	if !ok {
		return nil
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}

	delete(c.byID, dbID)
	for name, v := range c.byName {
		if v == e {
			delete(c.byName, name)
			break
		}
	}
	return e.handle.Close()
}

// NameFor resolves a database id back to the name it was opened under, used
// by the publisher hook to attach a database name to CDC events (replication
// entries only carry the id).
func (c *Catalog) NameFor(dbID uint64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, e := range c.byName {
		if e.dbID == dbID {
			return name, true
		}
	}
	return "", false
}

// HandleFor implements internal/replication.HandleLookup: it resolves a
// committed entry's database id to the Applier that should receive it.
func (c *Catalog) HandleFor(dbID uint64) (replication.Applier, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[dbID]
	if !ok {
		return nil, false
	}
	return e.handle, true
}
