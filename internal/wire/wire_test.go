package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Words: 42, Type: uint8(Query)}
	buf := EncodeHeader(h)
	require.Len(t, buf, 8)

	got, err := DecodeHeader(buf)
	require.NoError(t, err)
	require.Equal(t, h, got)
}

func TestMessageRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteUint64(7)
	w.WriteString("test.db")

	m := Message{Type: uint8(Open), Body: w.Bytes()}
	buf, err := Encode(m)
	require.NoError(t, err)

	got, n, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	require.Equal(t, m.Type, got.Type)
	require.Equal(t, m.Body, got.Body)

	r := NewReader(got.Body)
	id, err := r.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, uint64(7), id)
	name, err := r.ReadString()
	require.NoError(t, err)
	require.Equal(t, "test.db", name)
	require.True(t, r.Done())
}

func TestStringPaddingIsEightByteAligned(t *testing.T) {
	for _, s := range []string{"", "a", "ab", "abcdefgh", "abcdefghi"} {
		w := NewWriter()
		w.WriteString(s)
		require.Equal(t, 0, len(w.Bytes())%8, "body for %q not 8-byte aligned", s)

		r := NewReader(w.Bytes())
		got, err := r.ReadString()
		require.NoError(t, err)
		require.Equal(t, s, got)
		require.True(t, r.Done())
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteFloat64(-3.25)
	r := NewReader(w.Bytes())
	v, err := r.ReadFloat64()
	require.NoError(t, err)
	require.Equal(t, -3.25, v)
}

// TestSingleIntegerRowMatchesScenario4 is spec §8 scenario 4: a QUERY
// returning one row, one INTEGER column with value -12, should produce a
// header whose low byte is 1 and a total body length of 16 bytes.
func TestSingleIntegerRowMatchesScenario4(t *testing.T) {
	w := NewWriter()
	WriteRow(w, []Cell{{Type: ColInteger, Int: -12}})
	body := w.Bytes()

	require.Len(t, body, 16)
	require.Equal(t, byte(ColInteger), body[0])

	r := NewReader(body)
	types, err := ReadRowHeader(r, 1)
	require.NoError(t, err)
	require.Equal(t, []ColumnType{ColInteger}, types)

	cells, err := ReadCells(r, types)
	require.NoError(t, err)
	require.Equal(t, int64(-12), cells[0].Int)
	require.True(t, r.Done())
}

func TestMultiRowWithTrailer(t *testing.T) {
	w := NewWriter()
	WriteRow(w, []Cell{{Type: ColInteger, Int: 1}, {Type: ColText, Text: "a"}})
	WriteRow(w, []Cell{{Type: ColInteger, Int: 2}, {Type: ColText, Text: "bb"}})
	WriteRowsTrailer(w, true)

	r := NewReader(w.Bytes())
	for _, want := range []struct {
		n int64
		s string
	}{{1, "a"}, {2, "bb"}} {
		types, err := ReadRowHeader(r, 2)
		require.NoError(t, err)
		cells, err := ReadCells(r, types)
		require.NoError(t, err)
		require.Equal(t, want.n, cells[0].Int)
		require.Equal(t, want.s, cells[1].Text)
	}

	marker, err := r.ReadUint64()
	require.NoError(t, err)
	require.Equal(t, rowsDoneMarker, marker)
	require.True(t, r.Done())
}

func TestDBErrorRoundTrip(t *testing.T) {
	body := WriteDBError(21, 21, "bad parameter or other API misuse")
	code, ext, desc, err := ReadDBError(body)
	require.NoError(t, err)
	require.Equal(t, 21, code)
	require.Equal(t, 21, ext)
	require.Equal(t, "bad parameter or other API misuse", desc)
}

func TestDecodeReportsShortBody(t *testing.T) {
	buf := EncodeHeader(Header{Words: 2, Type: uint8(Exec)})
	_, _, err := Decode(buf)
	require.Error(t, err)
}
