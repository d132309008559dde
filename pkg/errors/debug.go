package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// LogFields flattens err into structured log fields: its code, the wrapped
// chain, and Postgres diagnostics when a driver error is buried inside. Empty
// values are omitted.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}
	if typed := As(err); typed != nil {
		fields["error_code"] = typed.Code()
	}
	if chain := chainOf(err); len(chain) > 1 {
		fields["error_chain"] = chain
	}
	for k, v := range postgresFields(err) {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

// chainOf walks err depth first, following joined errors too.
func chainOf(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		out = append(out, fmt.Sprintf("%T: %v", e, e))
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

func postgresFields(err error) map[string]string {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return map[string]string{
			"pg_code":       pgxErr.Code,
			"pg_constraint": pgxErr.ConstraintName,
			"pg_table":      pgxErr.TableName,
			"pg_column":     pgxErr.ColumnName,
			"pg_detail":     pgxErr.Detail,
			"pg_message":    pgxErr.Message,
		}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return map[string]string{
			"pg_code":       string(pqErr.Code),
			"pg_constraint": pqErr.Constraint,
			"pg_table":      pqErr.Table,
			"pg_column":     pqErr.Column,
			"pg_detail":     pqErr.Detail,
			"pg_message":    pqErr.Message,
		}
	}
	return nil
}
