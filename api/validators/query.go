package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/packfinderz-rewards/pkg/errors"
)

// ParseQueryInt reads an optional bounded integer such as ?limit=.
// A missing or blank parameter yields def.
func ParseQueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	switch {
	case err != nil:
		return 0, queryError(key, "query parameter must be an integer", nil)
	case int(n) < min || int(n) > max:
		return 0, queryError(key, "query parameter out of range", map[string]any{"min": min, "max": max})
	}
	return int(n), nil
}

func queryError(key, msg string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}
