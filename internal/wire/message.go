// Package wire implements the client↔gateway wire protocol described in
// spec §6: a fixed 8-byte header (4-byte little-endian word count, 1-byte
// message type, 3 reserved bytes) followed by a body whose length is an
// exact multiple of 8 bytes. Integers are little-endian uint64, floats are
// little-endian IEEE-754 float64, and strings are length-prefixed UTF-8
// padded out to the next 8-byte boundary.
package wire

import (
	"encoding/binary"
	"fmt"
)

// RequestType identifies a client request — spec §6.
type RequestType uint8

const (
	Helo      RequestType = 1
	Heartbeat RequestType = 2
	Open      RequestType = 3
	Prepare   RequestType = 4
	Exec      RequestType = 5
	Query     RequestType = 6
	Finalize  RequestType = 7
)

func (t RequestType) String() string {
	switch t {
	case Helo:
		return "helo"
	case Heartbeat:
		return "heartbeat"
	case Open:
		return "open"
	case Prepare:
		return "prepare"
	case Exec:
		return "exec"
	case Query:
		return "query"
	case Finalize:
		return "finalize"
	default:
		return fmt.Sprintf("request(%d)", uint8(t))
	}
}

// ResponseType identifies a gateway response — spec §6.
type ResponseType uint8

const (
	Welcome ResponseType = 1
	Servers ResponseType = 2
	DB      ResponseType = 3
	Stmt    ResponseType = 4
	Result  ResponseType = 5
	Rows    ResponseType = 6
	Empty   ResponseType = 7
	DBError ResponseType = 8
)

func (t ResponseType) String() string {
	switch t {
	case Welcome:
		return "welcome"
	case Servers:
		return "servers"
	case DB:
		return "db"
	case Stmt:
		return "stmt"
	case Result:
		return "result"
	case Rows:
		return "rows"
	case Empty:
		return "empty"
	case DBError:
		return "db_error"
	default:
		return fmt.Sprintf("response(%d)", uint8(t))
	}
}

const headerSize = 8

// ErrShortHeader is returned by ReadHeader when fewer than headerSize bytes
// are available.
var ErrShortHeader = fmt.Errorf("wire: short header, need %d bytes", headerSize)

// ErrShortBody is returned when a message's declared word count exceeds the
// bytes actually available.
type ErrShortBody struct {
	Want, Have int
}

func (e ErrShortBody) Error() string {
	return fmt.Sprintf("wire: short body, want %d bytes have %d", e.Want, e.Have)
}

// Header is the 8-byte frame header preceding every message body.
type Header struct {
	Words uint32
	Type  uint8
}

// BodyLen reports the body length in bytes implied by Words.
func (h Header) BodyLen() int { return int(h.Words) * 8 }

// EncodeHeader writes h's wire form into a fresh 8-byte slice.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Words)
	buf[4] = h.Type
	return buf
}

// DecodeHeader parses the first 8 bytes of buf as a Header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, ErrShortHeader
	}
	return Header{
		Words: binary.LittleEndian.Uint32(buf[0:4]),
		Type:  buf[4],
	}, nil
}

// Message is a full frame: header plus body, already paired and ready to
// write or just parsed from a read.
type Message struct {
	Type uint8
	Body []byte
}

// Encode renders m as a complete wire frame (header + body). len(m.Body)
// must already be a multiple of 8; callers build bodies with Writer, which
// guarantees this.
func Encode(m Message) ([]byte, error) {
	if len(m.Body)%8 != 0 {
		return nil, fmt.Errorf("wire: body length %d is not a multiple of 8", len(m.Body))
	}
	words := len(m.Body) / 8
	if words > int(^uint32(0)) {
		return nil, fmt.Errorf("wire: body too large (%d words)", words)
	}
	out := EncodeHeader(Header{Words: uint32(words), Type: m.Type})
	out = append(out, m.Body...)
	return out, nil
}

// Decode parses a complete frame from buf, returning the message and the
// number of bytes consumed. buf may contain trailing bytes belonging to a
// subsequent message; only n bytes are consumed.
func Decode(buf []byte) (m Message, n int, err error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Message{}, 0, err
	}
	bodyLen := h.BodyLen()
	if len(buf) < headerSize+bodyLen {
		return Message{}, 0, ErrShortBody{Want: headerSize + bodyLen, Have: len(buf)}
	}
	body := make([]byte, bodyLen)
	copy(body, buf[headerSize:headerSize+bodyLen])
	return Message{Type: h.Type, Body: body}, headerSize + bodyLen, nil
}
