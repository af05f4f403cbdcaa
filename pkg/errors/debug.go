package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// LogFields flattens err into structured log fields: the typed code when
// there is one, the wrapped chain, and driver diagnostics from postgres
// (pgx or lib/pq) or sqlite. A nil error yields nil.
func LogFields(err error) map[string]any {
	if err == nil {
		return nil
	}

	fields := map[string]any{
		"error":       err.Error(),
		"error_chain": chain(err),
	}
	if te := As(err); te != nil {
		fields["error_code"] = te.Code()
		fields["retryable"] = IsRetryable(te)
	}
	for k, v := range driverFields(err) {
		fields[k] = v
	}
	return fields
}

func chain(err error) []string {
	var out []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		out = append(out, fmt.Sprintf("%T: %v", e, e))
	}
	return out
}

func driverFields(err error) map[string]any {
	var (
		pgErr   *pgconn.PgError
		pqErr   *pq.Error
		liteErr sqlite3.Error
	)
	switch {
	case errors.As(err, &pgErr):
		return pgFields(pgErr.Code, pgErr.ConstraintName, pgErr.TableName, pgErr.ColumnName, pgErr.Detail, pgErr.Message)
	case errors.As(err, &pqErr):
		return pgFields(string(pqErr.Code), pqErr.Constraint, pqErr.Table, pqErr.Column, pqErr.Detail, pqErr.Message)
	case errors.As(err, &liteErr):
		return map[string]any{
			"sqlite_code":          int(liteErr.Code),
			"sqlite_extended_code": int(liteErr.ExtendedCode),
		}
	}
	return nil
}

func pgFields(code, constraint, table, column, detail, message string) map[string]any {
	fields := map[string]any{"pg_code": code}
	for k, v := range map[string]string{
		"pg_constraint": constraint,
		"pg_table":      table,
		"pg_column":     column,
		"pg_detail":     detail,
		"pg_message":    message,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}
