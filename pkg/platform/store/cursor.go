package store

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// encodeCursor turns a global sequence number into an opaque,
// URL-safe cursor token. Cursors are exclusive lower bounds: a Query
// resumed with this cursor starts strictly after seq.
func encodeCursor(seq int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(seq, 10)))
}

// decodeCursor reverses encodeCursor, returning ErrBadCursor for any
// malformed token so callers never need to distinguish "not found"
// from "not parseable".
func decodeCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	seq, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	return seq, nil
}
