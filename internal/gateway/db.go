package gateway

import "github.com/dqlited/dqlited/internal/vfs"

// OpenFlags mirrors the subset of SQLite's open flags spec §4.6's OPEN
// request accepts. ReadWrite is mandatory; Create is meaningless without
// it — spec §8 scenario 2 ("flags = CREATE only" is MISUSE).
type OpenFlags uint64

const (
	FlagReadWrite OpenFlags = 1 << iota
	FlagCreate
)

func (f OpenFlags) valid() bool {
	return f&FlagReadWrite != 0
}

// dbHandle is one open database: the registry entry wrapping internal/vfs's
// connection handle, plus the name and vfs it was opened under (spec §3
// "Database handle").
type dbHandle struct {
	id      uint64
	name    string
	vfsName string
	handle  *vfs.Handle
}
