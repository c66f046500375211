package gmo

import (
	"bytes"
	"encoding/json"
)

// Number holds a numeric field the exchange may send either quoted or bare.
// Values are kept as text so callers decide how leniently to parse them.
type Number string

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Number(s)
		return nil
	}
	*n = Number(b)
	return nil
}

func (n Number) String() string { return string(n) }
