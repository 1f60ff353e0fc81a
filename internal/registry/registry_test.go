package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	r := New[string]()

	id1 := r.Insert("first")
	id2 := r.Insert("second")
	require.NotEqual(t, id1, id2)

	v, ok := r.Get(id1)
	require.True(t, ok)
	require.Equal(t, "first", v)

	r.Remove(id1)
	_, ok = r.Get(id1)
	require.False(t, ok)

	v, ok = r.Get(id2)
	require.True(t, ok)
	require.Equal(t, "second", v)
}

func TestIdsAreUniqueAcrossRegistries(t *testing.T) {
	// spec §8 invariant 6: every id handed out by any registry is unique
	// within a process — the counter backing id.Next is process-wide, not
	// per-registry, so two different registries never collide.
	dbs := New[string]()
	stmts := New[string]()

	a := dbs.Insert("db-a")
	b := stmts.Insert("stmt-a")
	require.NotEqual(t, a, b)
}

func TestConcurrentInsertsProduceUniqueIDs(t *testing.T) {
	r := New[int]()
	const n = 200
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = r.Insert(i)
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, v := range ids {
		require.False(t, seen[v], "id %d reused", v)
		seen[v] = true
	}
}

func TestErrUnknownIDMessage(t *testing.T) {
	err := ErrUnknownID{Kind: "stmt", ID: 666}
	require.Equal(t, "no stmt with id 666", err.Error())
}
