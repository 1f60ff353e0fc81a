// Package publisher fans committed replication entries out to external CDC
// consumers — systems that are not cluster replicas and so never see a
// proposal, only its applied result (spec §1 frames this node's
// replicated-database role as distinct from any downstream consumer of it).
package publisher

import "github.com/dqlited/dqlited/internal/vfs"

// Sink is a destination for CDC events: NATS JetStream, Kafka, or anything
// else that can take a topic/key/value triple.
type Sink interface {
	Publish(topic, key string, value []byte) error
	Close() error
}

// Filter decides whether a table's events reach a given sink.
type Filter interface {
	Match(table string) bool
}

// Operation mirrors vfs.Op for the wire-facing event, kept as its own type
// (rather than reusing vfs.Op directly) so the publisher wire format does
// not silently change if vfs.Op's encoding ever does.
type Operation uint8

const (
	OpInsert Operation = 0
	OpUpdate Operation = 1
	OpDelete Operation = 2
)

func operationFor(op vfs.Op) Operation {
	switch op {
	case vfs.OpInsert:
		return OpInsert
	case vfs.OpDelete:
		return OpDelete
	default:
		return OpUpdate
	}
}

// Event is one row mutation from a committed replication entry, ready to
// hand to a Sink after filtering.
type Event struct {
	DBID     uint64            `msgpack:"d"`
	Database string            `msgpack:"db"`
	Table    string            `msgpack:"tbl"`
	Op       Operation         `msgpack:"op"`
	RowID    int64             `msgpack:"row"`
	Before   map[string][]byte `msgpack:"before"`
	After    map[string][]byte `msgpack:"after"`
	Index    uint64            `msgpack:"idx"`
}

// EventsFromFrames converts one committed entry's frames into the events a
// Registry fans out, called from the replication apply path once an entry
// has actually landed locally.
func EventsFromFrames(dbID uint64, database string, index uint64, frames []vfs.Frame) []Event {
	events := make([]Event, 0, len(frames))
	for _, f := range frames {
		events = append(events, Event{
			DBID:     dbID,
			Database: database,
			Table:    f.Table,
			Op:       operationFor(f.Op),
			RowID:    f.RowID,
			Before:   f.Old,
			After:    f.New,
			Index:    index,
		})
	}
	return events
}
