package gateway

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dqlited/dqlited/internal/catalog"
	"github.com/dqlited/dqlited/internal/consensus"
	"github.com/dqlited/dqlited/internal/pool"
	"github.com/dqlited/dqlited/internal/registry"
	"github.com/dqlited/dqlited/internal/wire"
)

// Gateway is one client connection's state — spec §3 "Gateway state": a db
// registry, a statement registry, and the single in-flight-request slot.
// Confined to whichever goroutine calls HandleRequest; cross-goroutine
// hand-off to the pool happens only through pool.Work items, never by
// sharing a Gateway across goroutines concurrently.
type Gateway struct {
	clientID     uint64
	catalog      *catalog.Catalog
	pool         *pool.Pool
	collaborator consensus.Collaborator

	dbs   *registry.Registry[*dbHandle]
	stmts *registry.Registry[*stmtHandle]

	inFlight atomic.Bool
}

// New constructs a Gateway for one freshly accepted connection.
func New(clientID uint64, cat *catalog.Catalog, p *pool.Pool, collaborator consensus.Collaborator) *Gateway {
	return &Gateway{
		clientID:     clientID,
		catalog:      cat,
		pool:         p,
		collaborator: collaborator,
		dbs:          registry.New[*dbHandle](),
		stmts:        registry.New[*stmtHandle](),
	}
}

// HandleRequest dispatches one request to completion and returns its
// response. A Protocol-kind error means the connection must be closed by
// the caller (spec §4.6 "MUST close the connection"); every other error
// kind has already been folded into a DB_ERROR wire.Message and is returned
// as a nil error so the connection stays open.
func (g *Gateway) HandleRequest(ctx context.Context, msg wire.Message) (wire.Message, error) {
	if !g.inFlight.CompareAndSwap(false, true) {
		return wire.Message{}, protocolError("dispatch", "a request is already in flight on this connection")
	}
	defer g.inFlight.Store(false)

	resp, err := g.dispatch(ctx, msg)
	if err == nil {
		return resp, nil
	}

	gwErr, ok := err.(Error)
	if !ok {
		gwErr = Error{Kind: IO, Request: "dispatch", Message: err.Error()}
	}
	if gwErr.Kind == Protocol {
		return wire.Message{}, gwErr
	}

	log.Debug().Str("kind", gwErr.Kind.String()).Str("request", gwErr.Request).Msg("gateway: request failed")
	return errorResponse(gwErr), nil
}

func (g *Gateway) dispatch(ctx context.Context, msg wire.Message) (wire.Message, error) {
	log.Trace().Uint8("type", msg.Type).Msg("gateway: dispatch")
	switch wire.RequestType(msg.Type) {
	case wire.Helo:
		return g.handleHelo(msg.Body)
	case wire.Heartbeat:
		return g.handleHeartbeat(msg.Body)
	case wire.Open:
		return g.handleOpen(ctx, msg.Body)
	case wire.Prepare:
		return g.handlePrepare(ctx, msg.Body)
	case wire.Exec:
		return g.handleExec(ctx, msg.Body)
	case wire.Query:
		return g.handleQuery(ctx, msg.Body)
	case wire.Finalize:
		return g.handleFinalize(msg.Body)
	default:
		return wire.Message{}, protocolError("dispatch", fmt.Sprintf("unknown request type %d", msg.Type))
	}
}

// errorResponse renders a gateway Error into the wire DB_ERROR envelope.
// Non-DBError kinds carry code 0 — spec §6 only assigns SQLite-code meaning
// to DB_ERROR's code field, but every error kind is surfaced through the
// same response type since the wire protocol defines no other error shape.
func errorResponse(e Error) wire.Message {
	return wire.Message{
		Type: uint8(wire.DBError),
		Body: wire.WriteDBError(e.Code, e.ExtendedCode, e.Message),
	}
}

// Close releases every database this connection still holds open, spec §3
// "Database handle ... destroyed on connection close".
func (g *Gateway) Close() {
	g.dbs.Range(func(dbID uint64, _ *dbHandle) bool {
		if err := g.catalog.Release(dbID); err != nil {
			log.Warn().Err(err).Uint64("db", dbID).Msg("gateway: release on close failed")
		}
		return true
	})
}
