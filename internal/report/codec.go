package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotArray is returned when a stored object does not hold a JSON array.
var ErrNotArray = errors.New("data must be an array")

// Encoding controls how rows are serialised.
type Encoding string

const (
	Pretty  Encoding = "pretty"
	Compact Encoding = "compact"
)

// ParseEncoding validates a configured encoding name. Empty means Pretty.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case "", Pretty:
		return Pretty, nil
	case Compact:
		return Compact, nil
	}
	return "", fmt.Errorf("unknown report encoding %q", s)
}

// Encode serialises rows as a JSON array. A nil slice encodes as [].
func Encode(rows []Row, enc Encoding) ([]byte, error) {
	if rows == nil {
		rows = []Row{}
	}
	if enc == Compact {
		return json.Marshal(rows)
	}
	return json.MarshalIndent(rows, "", "  ")
}

// Decode parses a stored object. Anything other than a JSON array yields ErrNotArray.
func Decode(data []byte) ([]Row, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}
	var rows []Row
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("decoding report rows: %w", err)
	}
	return rows, nil
}
