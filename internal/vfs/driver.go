package vfs

import (
	"database/sql"
	"regexp"

	"github.com/mattn/go-sqlite3"
)

// DriverName is the custom database/sql driver name registered by this
// package, mirroring the teacher's own "sqlite3_marmot" registration.
const DriverName = "sqlite3_dqlited"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("regexp", regexpMatch, true)
		},
	})
}

func regexpMatch(pattern, text string) (bool, error) {
	return regexp.MatchString(pattern, text)
}
