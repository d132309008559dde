// Package enums holds the closed string sets stored in the database and
// carried on the wire. Each type lists its members once; IsValid and Parse
// read that list.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// parse matches value against members, ignoring surrounding space.
func parse[T ~string](members []T, kind, value string) (T, error) {
	v := T(strings.TrimSpace(value))
	if slices.Contains(members, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
