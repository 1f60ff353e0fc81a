//go:build sqlite_preupdate_hook

package vfs

import (
	"strings"

	"github.com/mattn/go-sqlite3"
)

// registerCapture wires SQLite's preupdate hook, which reports full
// before/after column images for every row a statement touches. Built only
// with -tags sqlite_preupdate_hook, mirroring the teacher's own gate on this
// feature (mattn/go-sqlite3 compiles it behind a cgo flag).
func registerCapture(conn *sqlite3.SQLiteConn, schemas *schemaCache, sess appender) {
	conn.RegisterPreUpdateHook(func(data sqlite3.SQLitePreUpdateData) {
		if strings.HasPrefix(data.TableName, "sqlite_") {
			return
		}
		op, ok := sqliteOp(data.Op)
		if !ok {
			return
		}

		schema := schemas.get(data.TableName)
		if schema == nil {
			loaded, err := loadSchema(conn, data.TableName)
			if err != nil {
				return
			}
			schemas.set(data.TableName, loaded)
			schema = loaded
		}

		colCount := data.Count()
		oldDest := make([]interface{}, colCount)
		newDest := make([]interface{}, colCount)
		for i := range oldDest {
			oldDest[i] = new(interface{})
			newDest[i] = new(interface{})
		}

		frame := Frame{Table: data.TableName, Op: op}

		switch data.Op {
		case sqlite3.SQLITE_INSERT:
			frame.RowID = data.NewRowID
			if err := data.New(newDest...); err == nil {
				frame.New = valueMap(schema.columns, newDest)
			}
		case sqlite3.SQLITE_UPDATE:
			frame.RowID = data.NewRowID
			if err := data.Old(oldDest...); err == nil {
				frame.Old = valueMap(schema.columns, oldDest)
			}
			if err := data.New(newDest...); err == nil {
				frame.New = valueMap(schema.columns, newDest)
			}
		case sqlite3.SQLITE_DELETE:
			frame.RowID = data.OldRowID
			if err := data.Old(oldDest...); err == nil {
				frame.Old = valueMap(schema.columns, oldDest)
			}
		}

		sess.append(frame)
	})
}

func valueMap(columns []string, values []interface{}) map[string][]byte {
	out := make(map[string][]byte, len(columns))
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		v := values[i]
		if ptr, ok := v.(*interface{}); ok {
			v = *ptr
		}
		if v != nil {
			out[col] = encodeValue(v)
		}
	}
	return out
}
