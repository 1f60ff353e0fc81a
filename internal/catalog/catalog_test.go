package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dqlited/dqlited/internal/vfs"
)

type noopProposer struct{}

func (noopProposer) Propose(context.Context, vfs.FrameSet) error { return nil }

func TestOpenReusesHandleAndRefcounts(t *testing.T) {
	cat := New(t.TempDir())
	cat.SetProposer(noopProposer{})
	ctx := context.Background()

	id1, h1, err := cat.Open(ctx, "a.db", vfs.VolatileVFS)
	require.NoError(t, err)

	id2, h2, err := cat.Open(ctx, "a.db", vfs.VolatileVFS)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Same(t, h1, h2)

	// Two references outstanding: releasing once must not close the handle
	// out from under the other connection.
	require.NoError(t, cat.Release(id1))
	_, stillOpen := cat.HandleFor(id1)
	require.True(t, stillOpen)

	require.NoError(t, cat.Release(id2))
	_, goneNow := cat.HandleFor(id1)
	require.False(t, goneNow)
}

func TestOpenDistinctNamesGetDistinctIDs(t *testing.T) {
	cat := New(t.TempDir())
	cat.SetProposer(noopProposer{})
	ctx := context.Background()

	id1, _, err := cat.Open(ctx, "b.db", vfs.VolatileVFS)
	require.NoError(t, err)
	id2, _, err := cat.Open(ctx, "c.db", vfs.VolatileVFS)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}

func TestHandleForUnknownIDMisses(t *testing.T) {
	cat := New(t.TempDir())
	_, ok := cat.HandleFor(999999)
	require.False(t, ok)
}

func TestReleaseUnknownIDIsNoop(t *testing.T) {
	cat := New(t.TempDir())
	require.NoError(t, cat.Release(12345))
}
