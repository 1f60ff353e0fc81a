// Package registry implements spec §4.7's sparse id→object maps: database,
// statement, and client registries are all the same shape — ids handed out
// by the process-wide counter in internal/id, stored in a lock-free
// concurrent map, never reused within the process's lifetime (spec §8
// invariant 6). Grounded on the teacher's xsync-backed stores in
// db/memory_stores_xsync.go.
package registry

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/dqlited/dqlited/internal/id"
)

// Registry is a sparse id→T map with monotonically generated uint64 ids. T is typically a pointer type; the zero value of T is never a
// valid stored entry.
type Registry[T any] struct {
	entries *xsync.MapOf[uint64, T]
}

// New constructs an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: xsync.NewMapOf[uint64, T]()}
}

// Insert allocates a fresh id for v and stores it, returning the id.
func (r *Registry[T]) Insert(v T) uint64 {
	newID := id.Next()
	r.entries.Store(newID, v)
	return newID
}

// InsertWithID stores v under an id the caller already obtained from
// internal/id (used when the id must be known before the value can be
// constructed, e.g. a database handle that embeds its own id).
func (r *Registry[T]) InsertWithID(entryID uint64, v T) {
	r.entries.Store(entryID, v)
}

// Get looks up the entry for entryID. ok is false if no such id has ever been
// inserted, or it has since been removed.
func (r *Registry[T]) Get(entryID uint64) (T, bool) {
	return r.entries.Load(entryID)
}

// Remove deletes entryID from the registry. The id is never reissued.
func (r *Registry[T]) Remove(entryID uint64) {
	r.entries.Delete(entryID)
}

// Range calls fn for every entry currently stored, in no particular order.
// Iteration stops early if fn returns false.
func (r *Registry[T]) Range(fn func(entryID uint64, v T) bool) {
	r.entries.Range(fn)
}

// Len reports the number of entries currently stored.
func (r *Registry[T]) Len() int {
	return r.entries.Size()
}

// ErrUnknownID is returned by callers translating a Get miss into a NOTFOUND
// gateway error — spec §7 and the error string format in spec §8 scenario 5.
type ErrUnknownID struct {
	Kind string
	ID   uint64
}

func (e ErrUnknownID) Error() string {
	return fmt.Sprintf("no %s with id %d", e.Kind, e.ID)
}
