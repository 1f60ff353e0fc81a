package gateway

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dqlited/dqlited/internal/pool"
	"github.com/dqlited/dqlited/internal/replication"
	"github.com/dqlited/dqlited/internal/wire"
)

func (g *Gateway) handleHelo(body []byte) (wire.Message, error) {
	r := wire.NewReader(body)
	if _, err := r.ReadUint64(); err != nil { // client id, currently unused beyond framing
		return wire.Message{}, protocolError("helo", err.Error())
	}

	w := wire.NewWriter()
	w.WriteString(g.collaborator.LeaderAddress())
	return wire.Message{Type: uint8(wire.Welcome), Body: w.Bytes()}, nil
}

func (g *Gateway) handleHeartbeat(body []byte) (wire.Message, error) {
	r := wire.NewReader(body)
	if _, err := r.ReadUint64(); err != nil { // timestamp
		return wire.Message{}, protocolError("heartbeat", err.Error())
	}

	w := wire.NewWriter()
	for _, addr := range g.collaborator.PeerAddresses() {
		w.WriteString(addr)
	}
	w.WriteString("") // NULL terminator, spec §4.6
	return wire.Message{Type: uint8(wire.Servers), Body: w.Bytes()}, nil
}

func (g *Gateway) handleOpen(ctx context.Context, body []byte) (wire.Message, error) {
	r := wire.NewReader(body)
	name, err := r.ReadString()
	if err != nil {
		return wire.Message{}, protocolError("open", err.Error())
	}
	rawFlags, err := r.ReadUint64()
	if err != nil {
		return wire.Message{}, protocolError("open", err.Error())
	}
	vfsName, err := r.ReadString()
	if err != nil {
		return wire.Message{}, protocolError("open", err.Error())
	}

	flags := OpenFlags(rawFlags)
	if !flags.valid() {
		return wire.Message{}, misuseError("open", "bad parameter or other API misuse")
	}

	dbID, handle, err := g.catalog.Open(ctx, name, vfsName)
	if err != nil {
		return wire.Message{}, dbError("open", err)
	}

	g.dbs.InsertWithID(dbID, &dbHandle{id: dbID, name: name, vfsName: vfsName, handle: handle})

	w := wire.NewWriter()
	w.WriteUint64(dbID)
	return wire.Message{Type: uint8(wire.DB), Body: w.Bytes()}, nil
}

func (g *Gateway) handlePrepare(ctx context.Context, body []byte) (wire.Message, error) {
	r := wire.NewReader(body)
	dbID, err := r.ReadUint64()
	if err != nil {
		return wire.Message{}, protocolError("prepare", err.Error())
	}
	sqlText, err := r.ReadString()
	if err != nil {
		return wire.Message{}, protocolError("prepare", err.Error())
	}

	db, ok := g.dbs.Get(dbID)
	if !ok {
		return wire.Message{}, notFoundError("prepare", "db", dbID)
	}

	cls, err := classifyStatement(sqlText)
	if err != nil {
		return wire.Message{}, dbError("prepare", err)
	}

	stmt, err := db.handle.Prepare(ctx, sqlText)
	if err != nil {
		return wire.Message{}, dbError("prepare", err)
	}

	stmtID := g.stmts.Insert(&stmtHandle{dbID: dbID, sql: sqlText, stmt: stmt, kind: cls.kind, ddlTable: cls.table})

	w := wire.NewWriter()
	w.WriteUint64(stmtID)
	return wire.Message{Type: uint8(wire.Stmt), Body: w.Bytes()}, nil
}

func (g *Gateway) handleFinalize(body []byte) (wire.Message, error) {
	r := wire.NewReader(body)
	dbID, err := r.ReadUint64()
	if err != nil {
		return wire.Message{}, protocolError("finalize", err.Error())
	}
	stmtID, err := r.ReadUint64()
	if err != nil {
		return wire.Message{}, protocolError("finalize", err.Error())
	}

	sh, ok := g.stmts.Get(stmtID)
	if !ok || sh.dbID != dbID {
		return wire.Message{}, notFoundError("finalize", "stmt", stmtID)
	}
	sh.stmt.Close()
	g.stmts.Remove(stmtID)

	return wire.Message{Type: uint8(wire.Empty)}, nil
}

// lookupForExec resolves and validates the (db, stmt) pair EXEC and QUERY
// both start from.
func (g *Gateway) lookupForExec(request string, dbID, stmtID uint64) (*dbHandle, *stmtHandle, error) {
	db, ok := g.dbs.Get(dbID)
	if !ok {
		return nil, nil, notFoundError(request, "db", dbID)
	}
	sh, ok := g.stmts.Get(stmtID)
	if !ok || sh.dbID != dbID {
		return nil, nil, notFoundError(request, "stmt", stmtID)
	}
	return db, sh, nil
}

func (g *Gateway) handleExec(ctx context.Context, body []byte) (wire.Message, error) {
	r := wire.NewReader(body)
	dbID, err := r.ReadUint64()
	if err != nil {
		return wire.Message{}, protocolError("exec", err.Error())
	}
	stmtID, err := r.ReadUint64()
	if err != nil {
		return wire.Message{}, protocolError("exec", err.Error())
	}
	params, err := readParams(r)
	if err != nil {
		return wire.Message{}, protocolError("exec", err.Error())
	}

	db, sh, err := g.lookupForExec("exec", dbID, stmtID)
	if err != nil {
		return wire.Message{}, err
	}

	type result struct {
		lastInsertID int64
		rowsAffected int64
		err          error
	}
	done := make(chan result, 1)

	work := pool.NewWork(pool.OrderedClass(uint32(dbID)), uint32(dbID), func(*pool.Work) {
		tx, err := db.handle.BeginTx(ctx)
		if err != nil {
			done <- result{err: err}
			return
		}
		if sh.kind == kindDDL {
			db.handle.RecordDDL(sh.sql, sh.ddlTable)
		}
		res, execErr := tx.StmtContext(ctx, sh.stmt).ExecContext(ctx, cellArgs(params)...)
		if execErr != nil {
			tx.Rollback()
			done <- result{err: execErr}
			return
		}
		if commitErr := db.handle.Commit(tx); commitErr != nil {
			done <- result{err: commitErr}
			return
		}
		lastID, _ := res.LastInsertId()
		affected, _ := res.RowsAffected()

		// "A BAR work item is enqueued on the pool so that after the future
		// resolves, no unordered reads on this database observe a torn
		// state." Submitted before signaling done, not after: the gateway's
		// one-in-flight invariant means the very next request may submit a
		// different database's ordered work the instant done is read, and
		// the pool's ordered-class precondition requires a barrier to have
		// already separated it from this one.
		g.pool.Submit(pool.NewWork(pool.ClassBarrier, uint32(dbID), nil, nil))
		done <- result{lastInsertID: lastID, rowsAffected: affected}
	}, nil)
	g.pool.Submit(work)

	res := <-done
	if res.err != nil {
		return wire.Message{}, execError(res.err)
	}

	w := wire.NewWriter()
	w.WriteInt64(res.lastInsertID)
	w.WriteInt64(res.rowsAffected)
	return wire.Message{Type: uint8(wire.Result), Body: w.Bytes()}, nil
}

// execError turns a failure from the EXEC work callback into a gateway
// Error, recognizing a rejected replication proposal as NOT_LEADER rather
// than a generic DB_ERROR — spec §7.
func execError(err error) error {
	var notLeader replication.ErrNotLeader
	if errors.As(err, &notLeader) {
		return notLeaderError("exec", notLeader.Leader)
	}
	return dbError("exec", err)
}

const maxRowsChunkBytes = 4096

func (g *Gateway) handleQuery(ctx context.Context, body []byte) (wire.Message, error) {
	r := wire.NewReader(body)
	dbID, err := r.ReadUint64()
	if err != nil {
		return wire.Message{}, protocolError("query", err.Error())
	}
	stmtID, err := r.ReadUint64()
	if err != nil {
		return wire.Message{}, protocolError("query", err.Error())
	}
	params, err := readParams(r)
	if err != nil {
		return wire.Message{}, protocolError("query", err.Error())
	}

	_, sh, err := g.lookupForExec("query", dbID, stmtID)
	if err != nil {
		return wire.Message{}, err
	}

	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)

	work := pool.NewWork(pool.OrderedClass(uint32(dbID)), uint32(dbID), func(*pool.Work) {
		body, queryErr := g.streamRows(ctx, sh, params)
		done <- result{body: body, err: queryErr}
	}, nil)
	g.pool.Submit(work)

	res := <-done
	if res.err != nil {
		return wire.Message{}, dbError("query", res.err)
	}
	return wire.Message{Type: uint8(wire.Rows), Body: res.body}, nil
}

// streamRows runs sh's query (or resumes an already-open cursor from a
// prior partial chunk) and serializes rows into a single chunk bounded by
// maxRowsChunkBytes — spec §4.6 "Row streaming".
func (g *Gateway) streamRows(ctx context.Context, sh *stmtHandle, params []wire.Cell) ([]byte, error) {
	if sh.activeRows == nil {
		rows, err := sh.stmt.QueryContext(ctx, cellArgs(params)...)
		if err != nil {
			return nil, err
		}
		sh.activeRows = rows
		cols, err := rows.ColumnTypes()
		if err != nil {
			rows.Close()
			sh.activeRows = nil
			return nil, err
		}
		sh.activeCols = cols
	}

	w := wire.NewWriter()
	rows := sh.activeRows
	for w.Len() < maxRowsChunkBytes {
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				rows.Close()
				sh.activeRows = nil
				return nil, err
			}
			rows.Close()
			sh.activeRows = nil
			wire.WriteRowsTrailer(w, true)
			return w.Bytes(), nil
		}

		cells, err := scanRow(rows, len(sh.activeCols))
		if err != nil {
			rows.Close()
			sh.activeRows = nil
			return nil, err
		}
		wire.WriteRow(w, cells)
	}

	wire.WriteRowsTrailer(w, false)
	return w.Bytes(), nil
}

func scanRow(rows *sql.Rows, n int) ([]wire.Cell, error) {
	dest := make([]any, n)
	ptrs := make([]any, n)
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	cells := make([]wire.Cell, n)
	for i, v := range dest {
		cells[i] = valueToCell(v)
	}
	return cells, nil
}

func valueToCell(v any) wire.Cell {
	switch t := v.(type) {
	case nil:
		return wire.Cell{Type: wire.ColNull}
	case int64:
		return wire.Cell{Type: wire.ColInteger, Int: t}
	case float64:
		return wire.Cell{Type: wire.ColFloat, Flt: t}
	case []byte:
		return wire.Cell{Type: wire.ColBlob, Blob: t}
	case string:
		return wire.Cell{Type: wire.ColText, Text: t}
	default:
		return wire.Cell{Type: wire.ColText, Text: ""}
	}
}
