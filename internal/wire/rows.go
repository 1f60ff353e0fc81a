package wire

import "fmt"

// ColumnType is a SQLite fundamental datatype code, reused verbatim as the
// wire protocol's 4-bit column-type nibble — spec §8 scenario 4 ("header
// uint64 whose low byte = 1" for SQLITE_INTEGER).
type ColumnType uint8

const (
	ColInteger ColumnType = 1
	ColFloat   ColumnType = 2
	ColText    ColumnType = 3
	ColBlob    ColumnType = 4
	ColNull    ColumnType = 5
)

// columnsPerWord is how many 4-bit nibbles fit in one little-endian uint64
// type-header word.
const columnsPerWord = 16

// rowsDoneMarker and rowsPartMarker are sentinel header words a ROWS body
// writes after its last row: rowsDoneMarker means this is the final chunk,
// rowsPartMarker means the worker yielded a partial response and the
// gateway expects a continuation request before producing the rest — spec
// §4.6 "Row streaming". Neither value is a legal packed column-type word
// for a real row (a row can have at most columnsPerWord columns per word,
// and 0xf is not an assigned ColumnType), so there is no ambiguity with
// real header words of a single-word-wide row.
const (
	rowsPartMarker = uint64(0xffffffffffffffff)
	rowsDoneMarker = uint64(0xeeeeeeeeeeeeeeee)
)

// Cell is one column's value in one row. Exactly one of the typed fields is
// meaningful, selected by Type.
type Cell struct {
	Type ColumnType
	Int  int64
	Flt  float64
	Text string
	Blob []byte
}

// WriteRowHeader packs n columns' types into ceil(n/columnsPerWord) header
// words and appends them to w.
func WriteRowHeader(w *Writer, types []ColumnType) {
	for i := 0; i < len(types); i += columnsPerWord {
		chunk := types[i:min(i+columnsPerWord, len(types))]
		var word uint64
		for j, t := range chunk {
			word |= uint64(t&0xf) << (4 * j)
		}
		w.WriteUint64(word)
	}
}

// WriteRow appends one row's header word(s) and cell payloads to w.
func WriteRow(w *Writer, cells []Cell) {
	types := make([]ColumnType, len(cells))
	for i, c := range cells {
		types[i] = c.Type
	}
	WriteRowHeader(w, types)
	for _, c := range cells {
		switch c.Type {
		case ColInteger:
			w.WriteInt64(c.Int)
		case ColFloat:
			w.WriteFloat64(c.Flt)
		case ColText:
			w.WriteString(c.Text)
		case ColBlob:
			w.WriteBlob(c.Blob)
		case ColNull:
			w.WriteUint64(0)
		default:
			panic(fmt.Sprintf("wire: unknown column type %d", c.Type))
		}
	}
}

// WriteRowsTrailer appends the chunk-boundary marker: done=true for the
// final chunk of a QUERY's results, done=false when the worker is yielding
// a partial response and a FINALIZE-less continuation request will follow.
func WriteRowsTrailer(w *Writer, done bool) {
	if done {
		w.WriteUint64(rowsDoneMarker)
	} else {
		w.WriteUint64(rowsPartMarker)
	}
}

// ReadRowHeader reads n columns' worth of header word(s) from r. Callers
// must already know n (from the PREPARE's result-column count); this
// function does not tell a row header apart from a row-batch trailer.
func ReadRowHeader(r *Reader, n int) ([]ColumnType, error) {
	types := make([]ColumnType, 0, n)
	for len(types) < n {
		word, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		want := min(columnsPerWord, n-len(types))
		for j := 0; j < want; j++ {
			types = append(types, ColumnType((word>>(4*j))&0xf))
		}
	}
	return types, nil
}

// ReadCells reads n cells whose types were already determined by
// ReadRowHeader.
func ReadCells(r *Reader, types []ColumnType) ([]Cell, error) {
	cells := make([]Cell, len(types))
	for i, t := range types {
		cells[i].Type = t
		switch t {
		case ColInteger:
			v, err := r.ReadInt64()
			if err != nil {
				return nil, err
			}
			cells[i].Int = v
		case ColFloat:
			v, err := r.ReadFloat64()
			if err != nil {
				return nil, err
			}
			cells[i].Flt = v
		case ColText:
			v, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			cells[i].Text = v
		case ColBlob:
			v, err := r.ReadBlob()
			if err != nil {
				return nil, err
			}
			cells[i].Blob = v
		case ColNull:
			if _, err := r.ReadUint64(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("wire: unknown column type %d", t)
		}
	}
	return cells, nil
}
