package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/pressly/goose/v3"
)

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9]+`)

// CreateSQLMigration writes an empty timestamped goose SQL migration into dir
// and returns its path. The name is reduced to lowercase snake case first.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := strings.Trim(unsafeNameChars.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if safe == "" {
		return "", fmt.Errorf("migration name %q is empty once sanitized", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}
	if err := goose.Create(nil, dir, safe, "sql"); err != nil {
		return "", fmt.Errorf("goose create: %w", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*_"+safe+".sql"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("locate created migration %q: %v", safe, err)
	}
	slices.Sort(matches)
	return matches[len(matches)-1], nil
}
