package gateway

import "github.com/dqlited/dqlited/internal/wire"

// readParams decodes EXEC/QUERY's parameter list, reusing the same 4-bit
// nibble type-header encoding spec §4.6 defines for row streaming: a
// parameter tuple is structurally identical to a one-row result set.
func readParams(r *wire.Reader) ([]wire.Cell, error) {
	n, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	types, err := wire.ReadRowHeader(r, int(n))
	if err != nil {
		return nil, err
	}
	return wire.ReadCells(r, types)
}

// writeParams is readParams' inverse, used by test helpers and any future
// client-side encoder sharing this package's wire types.
func writeParams(w *wire.Writer, params []wire.Cell) {
	w.WriteUint64(uint64(len(params)))
	if len(params) == 0 {
		return
	}
	wire.WriteRow(w, params)
}

func cellArgs(cells []wire.Cell) []any {
	args := make([]any, len(cells))
	for i, c := range cells {
		switch c.Type {
		case wire.ColInteger:
			args[i] = c.Int
		case wire.ColFloat:
			args[i] = c.Flt
		case wire.ColText:
			args[i] = c.Text
		case wire.ColBlob:
			args[i] = c.Blob
		case wire.ColNull:
			args[i] = nil
		}
	}
	return args
}
