package wire

// WriteDBError builds a DB_ERROR response body: the SQLite result code as
// one 8-byte word, the extended result code as a second 8-byte word, then
// the UTF-8 description, spec §6 "Error responses carry an integer code ... and a
// UTF-8 description."
func WriteDBError(code int, extendedCode int, description string) []byte {
	w := NewWriter()
	w.WriteInt64(int64(code))
	w.WriteInt64(int64(extendedCode))
	w.WriteString(description)
	return w.Bytes()
}

// ReadDBError parses a DB_ERROR body written by WriteDBError.
func ReadDBError(body []byte) (code, extendedCode int, description string, err error) {
	r := NewReader(body)
	c, err := r.ReadInt64()
	if err != nil {
		return 0, 0, "", err
	}
	ec, err := r.ReadInt64()
	if err != nil {
		return 0, 0, "", err
	}
	desc, err := r.ReadString()
	if err != nil {
		return 0, 0, "", err
	}
	return int(c), int(ec), desc, nil
}
