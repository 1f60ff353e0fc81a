// Package gateway implements the per-connection conversational state
// machine described in spec §4.6: one request in flight at a time,
// dispatched to the db/statement registries, the pool, and the replication
// hand-off protocol, producing the wire responses defined in spec §6.
package gateway

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Kind is one of spec §7's error kinds surfaced to clients.
type Kind int

const (
	Protocol Kind = iota
	NotFound
	DBError
	NotLeader
	IO
	Busy
)

func (k Kind) String() string {
	switch k {
	case Protocol:
		return "protocol"
	case NotFound:
		return "not_found"
	case DBError:
		return "db_error"
	case NotLeader:
		return "not_leader"
	case IO:
		return "io"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// SQLITE_MISUSE's numeric code, spec §8 scenario 2.
const sqliteMisuse = 21

// Error is a gateway-surfaced error: a kind, a SQLite-style (code, extended
// code) pair (meaningful only for Kind == DBError; zero otherwise), and a
// human description. Its Error() string follows spec §8 scenario 5's exact
// format: "failed to handle %s: %s".
type Error struct {
	Kind        Kind
	Request     string
	Code        int
	ExtendedCode int
	Message     string
}

func (e Error) Error() string {
	return fmt.Sprintf("failed to handle %s: %s", e.Request, e.Message)
}

func notFoundError(request, kind string, id uint64) Error {
	return Error{
		Kind:    NotFound,
		Request: request,
		Message: fmt.Sprintf("no %s with id %d", kind, id),
	}
}

func misuseError(request, message string) Error {
	return Error{
		Kind:         DBError,
		Request:      request,
		Code:         sqliteMisuse,
		ExtendedCode: sqliteMisuse,
		Message:      message,
	}
}

// dbError wraps err, a SQLite (or driver) error surfaced while handling
// request, into a DBError-kind gateway Error — spec §7 "Errors from SQLite
// are captured and wrapped into DB_ERROR".
func dbError(request string, err error) Error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return Error{
			Kind:         DBError,
			Request:      request,
			Code:         int(sqliteErr.Code),
			ExtendedCode: int(sqliteErr.ExtendedCode),
			Message:      sqliteErr.Error(),
		}
	}
	return Error{
		Kind:    DBError,
		Request: request,
		Code:    1, // SQLITE_ERROR
		Message: err.Error(),
	}
}

func protocolError(request, message string) Error {
	return Error{Kind: Protocol, Request: request, Message: message}
}

func notLeaderError(request, leader string) Error {
	return Error{
		Kind:    NotLeader,
		Request: request,
		Message: fmt.Sprintf("not leader, current leader is %q", leader),
	}
}
