package wire

import (
	"encoding/binary"
	"math"
)

// Writer builds a message body incrementally. The zero value is ready to
// use. Every Write* method keeps the buffer 8-byte aligned, matching spec
// §6's body encoding.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// WriteUint64 appends v as 8 little-endian bytes.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteInt64 appends v as 8 little-endian bytes (two's complement).
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteFloat64 appends v as 8 little-endian IEEE-754 bytes.
func (w *Writer) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

// WriteString appends an 8-byte length prefix (byte count, not padded) and
// then s's UTF-8 bytes padded with zeros out to the next 8-byte boundary.
func (w *Writer) WriteString(s string) {
	w.WriteUint64(uint64(len(s)))
	w.buf = append(w.buf, s...)
	if pad := (8 - len(s)%8) % 8; pad > 0 {
		w.buf = append(w.buf, make([]byte, pad)...)
	}
}

// WriteBlob appends an 8-byte length prefix and b's bytes, padded like
// WriteString.
func (w *Writer) WriteBlob(b []byte) {
	w.WriteUint64(uint64(len(b)))
	w.buf = append(w.buf, b...)
	if pad := (8 - len(b)%8) % 8; pad > 0 {
		w.buf = append(w.buf, make([]byte, pad)...)
	}
}

// Bytes returns the accumulated, 8-byte-aligned body.
func (w *Writer) Bytes() []byte { return w.buf }

// Len reports how many bytes have been written so far.
func (w *Writer) Len() int { return len(w.buf) }
