// Package pagination implements the opaque keyset cursor used by the
// message history endpoint. A cursor names a position (created_at, id) in a
// consultation's timeline; pages are fetched strictly before it.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor points just after the oldest message of the previously fetched page.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        int64     `json:"id"`
}

// Encode serializes the cursor into its opaque wire form.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Decode parses an opaque cursor token.
func Decode(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if c.ID == 0 && c.CreatedAt.IsZero() {
		return Cursor{}, ErrInvalidCursor
	}
	return c, nil
}

// ParsePageSize reads the page_size query parameter, clamped to the
// permitted range.
func ParsePageSize(r *http.Request) int {
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if size <= 0 || size > MaxPageSize {
		return DefaultPageSize
	}
	return size
}
