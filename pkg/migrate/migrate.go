// Package migrate applies the goose SQL migrations under DefaultDir. The SQL
// targets Postgres; sqlite databases are built from the gorm models instead.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

var (
	errNoDB  = errors.New("migrate: nil database handle")
	errNoDir = errors.New("migrate: empty migrations dir")
)

func usePostgres(db *sql.DB, dir string) error {
	switch {
	case db == nil:
		return errNoDB
	case dir == "":
		return errNoDir
	}
	return goose.SetDialect("postgres")
}

// Run executes a goose command such as up, down or status.
func Run(ctx context.Context, db *sql.DB, dir, command string, args ...string) error {
	if err := usePostgres(db, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// ParseVersion reads a goose version stamp (YYYYMMDDHHMMSS).
func ParseVersion(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("migrate: version %q is not a positive timestamp", s)
	}
	return v, nil
}

// To walks the schema up or down until it sits at target. Being there
// already is a no-op.
func To(ctx context.Context, db *sql.DB, dir string, target int64) error {
	if err := usePostgres(db, dir); err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case current < target:
		err = goose.UpToContext(ctx, db, dir, target)
	case current > target:
		err = goose.DownToContext(ctx, db, dir, target)
	}
	if err != nil {
		return fmt.Errorf("migrate %d to %d: %w", current, target, err)
	}
	return nil
}
