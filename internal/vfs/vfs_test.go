package vfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProposer struct {
	calls []FrameSet
	err   error
	// failFrom is the number of calls that succeed before err (if set) is
	// returned; zero means err applies to every call.
	failFrom int
}

func (s *stubProposer) Propose(_ context.Context, frames FrameSet) error {
	s.calls = append(s.calls, frames)
	if s.err != nil && len(s.calls) > s.failFrom {
		return s.err
	}
	return nil
}

func TestOpenVolatileAndCaptureInsert(t *testing.T) {
	ctx := context.Background()
	p := &stubProposer{}

	h, err := Open(ctx, t.TempDir(), VolatileVFS, "t.db", 1, p)
	require.NoError(t, err)
	defer h.Close()

	tx, err := h.BeginTx(ctx)
	require.NoError(t, err)
	h.RecordDDL("CREATE TABLE foo (n INT)", "foo")
	_, err = tx.ExecContext(ctx, "CREATE TABLE foo (n INT)")
	require.NoError(t, err)
	require.NoError(t, h.Commit(tx))

	tx, err = h.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO foo(n) VALUES (42)")
	require.NoError(t, err)
	require.NoError(t, h.Commit(tx))

	require.Len(t, p.calls, 2, "CREATE TABLE and INSERT each propose once")
	require.Len(t, p.calls[0].Frames, 1)
	require.Equal(t, OpDDL, p.calls[0].Frames[0].Op)
	require.Equal(t, "foo", p.calls[0].Frames[0].Table)
	require.Len(t, p.calls[1].Frames, 1)
	require.Equal(t, OpInsert, p.calls[1].Frames[0].Op)
	require.Equal(t, "foo", p.calls[1].Frames[0].Table)
}

func TestCommitRolledBackWhenProposeFails(t *testing.T) {
	ctx := context.Background()
	wantErr := fmtError("replication rejected")
	p := &stubProposer{err: wantErr, failFrom: 1}

	h, err := Open(ctx, t.TempDir(), VolatileVFS, "t.db", 1, p)
	require.NoError(t, err)
	defer h.Close()

	tx, err := h.BeginTx(ctx)
	require.NoError(t, err)
	h.RecordDDL("CREATE TABLE foo (n INT)", "foo")
	_, err = tx.ExecContext(ctx, "CREATE TABLE foo (n INT)")
	require.NoError(t, err)
	require.NoError(t, h.Commit(tx))

	tx, err = h.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO foo(n) VALUES (1)")
	require.NoError(t, err)

	err = h.Commit(tx)
	require.ErrorIs(t, err, wantErr)

	var count int
	row := h.conn.QueryRowContext(ctx, "SELECT count(*) FROM foo")
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 0, count, "rejected commit must roll back, not persist")
}

func TestApplyBypassesProposer(t *testing.T) {
	ctx := context.Background()
	p := &stubProposer{}

	h, err := Open(ctx, t.TempDir(), VolatileVFS, "t.db", 1, p)
	require.NoError(t, err)
	defer h.Close()

	tx, err := h.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "CREATE TABLE foo (n INT)")
	require.NoError(t, err)
	require.NoError(t, h.Commit(tx))
	p.calls = nil

	err = h.Apply(ctx, FrameSet{DBID: 1, Frames: []Frame{
		{Table: "foo", Op: OpInsert, RowID: 1, New: map[string][]byte{"n": []byte("7")}},
	}})
	require.NoError(t, err)
	require.Empty(t, p.calls, "apply must not re-enter Propose")

	var n int
	row := h.conn.QueryRowContext(ctx, "SELECT n FROM foo WHERE rowid = 1")
	require.NoError(t, row.Scan(&n))
	require.Equal(t, 7, n)
}

type fmtError string

func (e fmtError) Error() string { return string(e) }
