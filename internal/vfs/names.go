package vfs

import (
	"fmt"
	"path/filepath"
)

// VolatileVFS is the in-memory database name the gateway's OPEN request may
// pass as the vfs name, matching the original test suite's
// dqlite__vfs_register("volatile", ...) — see spec §8 scenario 1.
const VolatileVFS = "volatile"

// DurableVFS is the disk-backed vfs name, resolved beneath dataDir; an empty
// vfs name is treated the same way, and any other name is rejected with
// ErrUnknownVFS.
const DurableVFS = "disk"

// ErrUnknownVFS is returned by resolveDSN for a vfs name the gateway does
// not recognize, surfaced to clients as DB_ERROR per spec §4.6.
type ErrUnknownVFS struct{ Name string }

func (e ErrUnknownVFS) Error() string {
	return fmt.Sprintf("vfs: unknown vfs name %q", e.Name)
}

// resolveDSN maps a (vfs name, database name) pair from an OPEN request to a
// go-sqlite3 DSN. The volatile vfs backs every database with a distinct
// shared-cache in-memory database so concurrent connections against the same
// name still see one another's data, matching SQLite's normal :memory:
// semantics for a named vfs.
func resolveDSN(dataDir, vfsName, dbName string) (string, error) {
	switch vfsName {
	case VolatileVFS:
		return fmt.Sprintf("file:%s?mode=memory&cache=shared", dbName), nil
	case DurableVFS, "":
		path := filepath.Join(dataDir, dbName)
		return fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", path), nil
	default:
		return "", ErrUnknownVFS{Name: vfsName}
	}
}
