// Package vfs implements the intercepting VFS layer described in spec §4.4:
// it captures the row-level mutations produced by a commit before they are
// considered durable, hands them to the replication hand-off protocol, and
// suspends the caller until that protocol accepts or rejects them.
//
// mattn/go-sqlite3 does not expose SQLite's C-level sqlite3_vfs registration
// surface to Go, so there is no way to intercept physical WAL frames the way
// the original dqlite VFS does. This package instead intercepts at the
// logical boundary go-sqlite3 does expose — the update hook by default, or
// the preupdate hook (row-level before/after images) when built with the
// sqlite_preupdate_hook tag — plus the commit hook (the same point in the
// transaction lifecycle a WAL append would occur) — and treats the ordered
// sequence of row mutations within one transaction as the "frame set" for
// that commit. See DESIGN.md for the full justification.
package vfs

import (
	"fmt"
	"strconv"

	"github.com/mattn/go-sqlite3"
)

// Op identifies the kind of row mutation a Frame captures.
type Op int

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
	// OpDDL marks a frame carrying a schema-mutating statement's raw SQL
	// text rather than row images — CREATE/ALTER/DROP TABLE and CREATE/DROP
	// INDEX produce no preupdate-hook callbacks, so they would otherwise
	// leave an empty FrameSet and never replicate at all.
	OpDDL
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpDDL:
		return "ddl"
	default:
		return "unknown"
	}
}

// Frame is one row-level mutation captured by the row-change hook, the
// logical equivalent of a physical WAL frame for a single changed row. A
// Frame with Op == OpDDL instead carries a schema-mutating statement: Table
// is the statement's target table when known (empty for a bare CREATE/DROP
// INDEX), and SQL is the raw text to replay verbatim.
type Frame struct {
	Table  string
	Op     Op
	RowID  int64
	Old    map[string][]byte
	New    map[string][]byte
	SQL    string
}

// FrameSet is the payload handed to the replication hand-off protocol for
// one commit: every Frame captured between BEGIN and COMMIT, in the order
// SQLite reported them. Immutable once built.
type FrameSet struct {
	DBID   uint64
	Frames []Frame
}

// Empty reports whether the set carries no mutations — legal for a BAR-only
// commit and, per spec §8, must succeed as a no-op.
func (fs FrameSet) Empty() bool {
	return len(fs.Frames) == 0
}

func sqliteOp(op int) (Op, bool) {
	switch op {
	case sqlite3.SQLITE_INSERT:
		return OpInsert, true
	case sqlite3.SQLITE_UPDATE:
		return OpUpdate, true
	case sqlite3.SQLITE_DELETE:
		return OpDelete, true
	default:
		return 0, false
	}
}

// encodeValue mirrors the teacher's deterministic column-value encoding: a
// stable byte representation suitable for hashing and for the replication
// wire format (msgpack-wrapped in internal/replication), independent of the
// driver's reported Go type.
func encodeValue(v interface{}) []byte {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return val
	case string:
		return []byte(val)
	case int64:
		return []byte(strconv.FormatInt(val, 10))
	case float64:
		return []byte(strconv.FormatFloat(val, 'g', -1, 64))
	case bool:
		if val {
			return []byte("1")
		}
		return []byte("0")
	default:
		return []byte(fmt.Sprintf("%v", val))
	}
}
