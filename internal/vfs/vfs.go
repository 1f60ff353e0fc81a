package vfs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// Proposer is the replication hand-off protocol's leader-path entry point,
// consumed here and implemented by internal/replication — see spec §4.5.
// Propose blocks the caller until the entry is acknowledged or rejected,
// which is exactly the suspension spec §4.4 step 3 requires of the VFS.
type Proposer interface {
	Propose(ctx context.Context, frames FrameSet) error
}

// Handle is one open database: a dedicated single connection (SQLite
// serializes WAL writers anyway, and the gateway's ordered work class
// guarantees at most one writer in flight per db id) with the capture hook,
// commit hook, and rollback hook wired to it.
type Handle struct {
	mu sync.Mutex

	db   *sql.DB
	conn *sql.Conn
	raw  *sqlite3.SQLiteConn

	dbID     uint64
	schemas  *schemaCache
	proposer Proposer

	cur      *session
	ctx      context.Context
	applying bool
	lastErr  error
}

// Open opens database dbName under the named vfs ("volatile", or "disk" or
// "" for a durable database rooted at dataDir; any other name fails with
// ErrUnknownVFS), registering
// the capture/commit/rollback hooks on its single dedicated connection.
func Open(ctx context.Context, dataDir, vfsName, dbName string, dbID uint64, proposer Proposer) (*Handle, error) {
	dsn, err := resolveDSN(dataDir, vfsName, dbName)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("vfs: open %s: %w", dbName, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("vfs: acquire connection for %s: %w", dbName, err)
	}

	h := &Handle{
		db:       db,
		conn:     conn,
		dbID:     dbID,
		schemas:  newSchemaCache(),
		proposer: proposer,
		ctx:      ctx,
	}

	err = conn.Raw(func(driverConn interface{}) error {
		raw, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("vfs: unexpected driver connection type %T", driverConn)
		}
		h.raw = raw
		registerCapture(raw, h.schemas, h)
		raw.RegisterCommitHook(h.commitHook)
		raw.RegisterRollbackHook(h.rollbackHook)
		return nil
	})
	if err != nil {
		conn.Close()
		db.Close()
		return nil, err
	}

	return h, nil
}

// append satisfies the appender interface the capture hooks write through,
// forwarding to whichever session is current for the in-flight transaction.
func (h *Handle) append(f Frame) {
	h.mu.Lock()
	cur := h.cur
	h.mu.Unlock()
	if cur != nil {
		cur.append(f)
	}
}

// DBID reports the database id this handle was opened under.
func (h *Handle) DBID() uint64 { return h.dbID }

// RecordDDL marks the in-flight transaction as having executed a
// schema-mutating statement, so the commit hook proposes a synthetic OpDDL
// frame even though no row-level mutation was captured. Call before running
// the statement; a no-op if no transaction is open.
func (h *Handle) RecordDDL(sqlText, table string) {
	h.mu.Lock()
	cur := h.cur
	h.mu.Unlock()
	if cur != nil {
		cur.recordDDL(sqlText, table)
	}
}

// Prepare compiles query against this handle's dedicated connection. The
// returned statement is later re-bound to a per-request transaction via
// sql.Tx.StmtContext for EXEC, or run directly for QUERY.
func (h *Handle) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	return h.conn.PrepareContext(ctx, query)
}

// BeginTx starts a transaction and resets the capture session so this
// transaction's frames are collected independently of any prior one.
func (h *Handle) BeginTx(ctx context.Context) (*sql.Tx, error) {
	h.mu.Lock()
	h.cur = newSession()
	h.ctx = ctx
	h.lastErr = nil
	h.mu.Unlock()

	return h.conn.BeginTx(ctx, nil)
}

// Commit commits tx, running the frames captured since BeginTx through the
// replication hand-off protocol via the commit hook. If replication rejects
// the frames, SQLite converts the commit into a rollback and Commit returns
// the replication error, not a generic SQLite one.
func (h *Handle) Commit(tx *sql.Tx) error {
	err := tx.Commit()
	if err == nil {
		return nil
	}

	h.mu.Lock()
	replicationErr := h.lastErr
	h.mu.Unlock()
	if replicationErr != nil {
		return replicationErr
	}
	return err
}

// commitHook runs synchronously inside SQLite's commit path. Returning
// non-zero converts the in-progress commit into a rollback — SQLite's
// native mechanism for exactly the "roll back the WAL pointer on failure"
// behavior spec §4.4 step 5 describes.
func (h *Handle) commitHook() int {
	h.mu.Lock()
	if h.applying {
		h.mu.Unlock()
		return 0
	}
	cur := h.cur
	ctx := h.ctx
	h.mu.Unlock()
	if cur == nil {
		return 0
	}

	frames := cur.frameSet(h.dbID)
	if frames.Empty() {
		return 0
	}

	if err := h.proposer.Propose(ctx, frames); err != nil {
		h.mu.Lock()
		h.lastErr = err
		h.mu.Unlock()
		return 1
	}

	for _, f := range frames.Frames {
		if f.Op == OpDDL && f.Table != "" {
			h.schemas.invalidate(f.Table)
		}
	}
	return 0
}

func (h *Handle) rollbackHook() {
	h.mu.Lock()
	h.cur = nil
	h.mu.Unlock()
}

// Apply writes a committed replication entry's frames directly into the
// local database, bypassing Propose — spec §4.5's apply() path, used both
// by followers replaying the leader's commits and by the leader itself
// reconciling its own committed entry. The commit hook is suppressed for
// the duration so this does not recursively propose.
func (h *Handle) Apply(ctx context.Context, frames FrameSet) error {
	h.mu.Lock()
	h.applying = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.applying = false
		h.mu.Unlock()
	}()

	tx, err := h.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vfs: apply begin: %w", err)
	}

	for _, f := range frames.Frames {
		if err := applyFrame(ctx, tx, f); err != nil {
			tx.Rollback()
			return fmt.Errorf("vfs: apply frame (table=%s op=%s rowid=%d): %w", f.Table, f.Op, f.RowID, err)
		}
		if f.Op == OpDDL && f.Table != "" {
			h.schemas.invalidate(f.Table)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vfs: apply commit: %w", err)
	}
	return nil
}

func applyFrame(ctx context.Context, tx *sql.Tx, f Frame) error {
	switch f.Op {
	case OpDDL:
		_, err := tx.ExecContext(ctx, f.SQL)
		if err != nil && isIdempotentDDLReplay(err) {
			return nil
		}
		return err
	case OpDelete:
		_, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE rowid = ?", f.Table), f.RowID)
		return err
	case OpInsert, OpUpdate:
		if len(f.New) == 0 {
			return nil
		}
		cols := make([]string, 0, len(f.New))
		placeholders := make([]string, 0, len(f.New))
		args := make([]any, 0, len(f.New))
		for col, val := range f.New {
			cols = append(cols, col)
			placeholders = append(placeholders, "?")
			args = append(args, string(val))
		}
		stmt := fmt.Sprintf("INSERT OR REPLACE INTO %s (rowid, %s) VALUES (?, %s)",
			f.Table, join(cols, ", "), join(placeholders, ", "))
		args = append([]any{f.RowID}, args...)
		_, err := tx.ExecContext(ctx, stmt, args...)
		return err
	default:
		return fmt.Errorf("unknown frame op %v", f.Op)
	}
}

// isIdempotentDDLReplay reports whether err is SQLite complaining that a DDL
// statement's effect already exists — expected when a node replays its own
// proposal via Apply after already running the statement directly through
// the commit hook's native SQLite commit, the same self-apply round trip
// row frames tolerate by construction via INSERT OR REPLACE.
func isIdempotentDDLReplay(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate column name")
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// Close releases the handle's connection and database.
func (h *Handle) Close() error {
	cerr := h.conn.Close()
	derr := h.db.Close()
	if cerr != nil {
		return cerr
	}
	return derr
}
