package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Reader parses a message body built by Writer, advancing a cursor over an
// immutable byte slice.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps body for sequential parsing.
func NewReader(body []byte) *Reader {
	return &Reader{buf: body}
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return fmt.Errorf("wire: read past end of body at offset %d, need %d have %d", r.pos, n, len(r.buf)-r.pos)
	}
	return nil
}

// ReadUint64 reads the next 8 bytes as a little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// ReadInt64 reads the next 8 bytes as a little-endian two's-complement int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat64 reads the next 8 bytes as a little-endian IEEE-754 float64.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ReadString reads an 8-byte length prefix followed by that many UTF-8
// bytes, then consumes the padding out to the next 8-byte boundary.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint64()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	if pad := (8 - int(n)%8) % 8; pad > 0 {
		if err := r.need(pad); err != nil {
			return "", err
		}
		r.pos += pad
	}
	return s, nil
}

// ReadBlob reads an 8-byte length prefix followed by that many raw bytes,
// then consumes the padding out to the next 8-byte boundary. The returned
// slice is a copy, safe to retain past the Reader's lifetime.
func (r *Reader) ReadBlob() ([]byte, error) {
	n, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	if pad := (8 - int(n)%8) % 8; pad > 0 {
		if err := r.need(pad); err != nil {
			return nil, err
		}
		r.pos += pad
	}
	return out, nil
}

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Done reports whether the body has been fully consumed.
func (r *Reader) Done() bool { return r.pos == len(r.buf) }
