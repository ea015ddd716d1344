package jsonfield

import (
	"bytes"
	"fmt"
	"strconv"
)

// ID is an int64 identifier written as a JSON number. Decoding also accepts
// the quoted form older peers send.
type ID int64

func (id ID) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(id), 10), nil
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		b = b[1 : len(b)-1]
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("jsonfield: invalid id %q", b)
	}
	*id = ID(n)
	return nil
}
