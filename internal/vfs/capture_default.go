//go:build !sqlite_preupdate_hook

package vfs

import (
	"database/sql/driver"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// registerCapture wires SQLite's plain update hook (always available,
// unlike the preupdate hook) as the default capture mechanism. The update
// hook only reports operation, table, and rowid — no column images — so
// this path re-reads the affected row by rowid for INSERT/UPDATE to recover
// new values. DELETE frames carry Table/Op/RowID only; a replica applying
// them deletes by rowid, which is sufficient since rowid is immutable and
// unique for the lifetime of a row. Build with -tags sqlite_preupdate_hook
// for full before/after images on both INSERT and UPDATE.
func registerCapture(conn *sqlite3.SQLiteConn, schemas *schemaCache, sess appender) {
	conn.RegisterUpdateHook(func(op int, _ string, table string, rowID int64) {
		if strings.HasPrefix(table, "sqlite_") {
			return
		}
		o, ok := sqliteOp(op)
		if !ok {
			return
		}

		frame := Frame{Table: table, Op: o, RowID: rowID}
		if o != OpDelete {
			if vals, err := fetchRow(conn, schemas, table, rowID); err == nil {
				frame.New = vals
			}
		}
		sess.append(frame)
	})
}

func fetchRow(conn *sqlite3.SQLiteConn, schemas *schemaCache, table string, rowID int64) (map[string][]byte, error) {
	schema := schemas.get(table)
	if schema == nil {
		loaded, err := loadSchema(conn, table)
		if err != nil {
			return nil, err
		}
		schemas.set(table, loaded)
		schema = loaded
	}

	rows, err := conn.Query(fmt.Sprintf("SELECT * FROM %s WHERE rowid = ?", table), []driver.Value{rowID})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := rows.Columns()
	dest := make([]driver.Value, len(cols))
	if err := rows.Next(dest); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("vfs: row %d vanished before capture", rowID)
		}
		return nil, err
	}

	out := make(map[string][]byte, len(cols))
	for i, col := range cols {
		if dest[i] != nil {
			out[col] = encodeValue(dest[i])
		}
	}
	return out, nil
}
