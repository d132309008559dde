// Package pagination implements keyset paging over (created_at DESC, id DESC)
// with opaque cursors.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 500
)

// Params holds the raw limit and cursor from a request.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor marks the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        uuid.UUID `json:"id"`
}

var errMalformed = errors.New("malformed cursor")

// NormalizeLimit clamps limit into [1, MaxLimit], using DefaultLimit for
// non-positive input.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// LimitOrDefault substitutes DefaultLimit for a non-positive limit and leaves
// every other value alone. Services use it; MaxLimit is an HTTP concern.
func LimitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// EncodeCursor returns the opaque form of c.
func EncodeCursor(c Cursor) string {
	c.CreatedAt = c.CreatedAt.UTC()
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// ParseCursor decodes value. A blank value means the first page and yields nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if c.CreatedAt.IsZero() || c.ID == uuid.Nil {
		return nil, errMalformed
	}
	return &c, nil
}

// Trim cuts rows, fetched with limit+1, down to limit. When an extra row was
// present it returns the cursor for the next page, built from the last kept row.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, string) {
	if limit <= 0 || len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, EncodeCursor(key(rows[limit-1]))
}
