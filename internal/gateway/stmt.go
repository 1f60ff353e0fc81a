package gateway

import "database/sql"

// stmtHandle is one prepared statement: spec §3's "Prepared statement" —
// must not outlive its db, enforced here by checking dbID on every use
// rather than by any pointer relationship (the underlying *sql.Stmt is
// already bound to the db's dedicated connection and would simply fail if
// that connection were closed first).
//
// activeRows/activeCols hold an in-progress QUERY cursor across partial
// ROWS chunks — spec §4.6 "awaits a continuation request before producing
// the next chunk". Safe without extra locking: the gateway's one-in-flight
// invariant guarantees no other request touches this stmtHandle
// concurrently.
type stmtHandle struct {
	id       uint64
	dbID     uint64
	sql      string
	stmt     *sql.Stmt
	kind     statementKind
	ddlTable string

	activeRows *sql.Rows
	activeCols []*sql.ColumnType
}
