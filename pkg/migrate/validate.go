package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pressly/goose/v3"
)

var timestampedName = regexp.MustCompile(`^\d{14}_[a-z0-9_]+\.sql$`)

// ValidateDir checks that every SQL migration in dir is timestamp-versioned,
// unique, and carries both goose Up and Down sections.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("stat %q: %w", dir, err)
	}
	// goose rejects duplicate versions and unparsable names.
	migrations, err := goose.CollectMigrations(dir, 0, goose.MaxVersion)
	if err != nil {
		return fmt.Errorf("collect migrations in %q: %w", dir, err)
	}
	for _, m := range migrations {
		name := filepath.Base(m.Source)
		if !timestampedName.MatchString(name) {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		body, err := os.ReadFile(m.Source)
		if err != nil {
			return fmt.Errorf("read %q: %w", m.Source, err)
		}
		for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
			if !strings.Contains(string(body), marker) {
				return fmt.Errorf("migration %q missing %q", name, marker)
			}
		}
	}
	return nil
}
