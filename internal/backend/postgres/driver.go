// Package postgres adapts PostgreSQL to the backend driver contract through
// the pgx stdlib driver.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/fault"
)

const hintSQL = `SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = 'public'
ORDER BY table_name, ordinal_position`

type Driver struct{}

func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) Kind() backend.Kind {
	return backend.KindPostgres
}

func (d *Driver) Connect(ctx context.Context, cfg backend.ConnConfig) (backend.Handle, error) {
	if err := cfg.Validate(backend.KindPostgres); err != nil {
		return nil, err
	}
	return backend.OpenSQLHandle(ctx, backend.KindPostgres, "pgx", buildDSN(cfg), classify, hintSQL)
}

func buildDSN(cfg backend.ConnConfig) string {
	parts := []string{
		"host=" + quoteDSNValue(cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
	}
	if cfg.User != "" {
		parts = append(parts, "user="+quoteDSNValue(cfg.User))
	}
	if cfg.Secret != "" {
		parts = append(parts, "password="+quoteDSNValue(cfg.Secret))
	}
	if cfg.Database != "" {
		parts = append(parts, "dbname="+quoteDSNValue(cfg.Database))
	}

	switch {
	case cfg.TLS.Verify:
		parts = append(parts, "sslmode=verify-full")
	case cfg.TLSEnabled():
		parts = append(parts, "sslmode=require")
	default:
		parts = append(parts, "sslmode=disable")
	}
	if cfg.TLS.CACert != "" {
		parts = append(parts, "sslrootcert="+quoteDSNValue(cfg.TLS.CACert))
	}
	if cfg.TLS.ClientCert != "" {
		parts = append(parts, "sslcert="+quoteDSNValue(cfg.TLS.ClientCert))
		parts = append(parts, "sslkey="+quoteDSNValue(cfg.TLS.ClientKey))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(value string) string {
	if !strings.ContainsAny(value, " '\\") {
		return value
	}
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `'`, `\'`)
	return "'" + value + "'"
}

// classify maps PostgreSQL SQLSTATE codes to fault kinds. Class 08 covers
// connection exceptions raised after the session was established.
func classify(err error) fault.Kind {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fault.KindUnknown
	}
	switch pgErr.Code {
	case "28P01", "28000":
		return fault.KindAuthenticationFailed
	case "42601":
		return fault.KindQuerySyntax
	case "42501":
		return fault.KindPermissionDenied
	case "57014":
		return fault.KindQueryTimeout
	}
	if strings.HasPrefix(pgErr.Code, "08") {
		return fault.KindConnectionLost
	}
	if strings.HasPrefix(pgErr.Code, "42") {
		// Remaining class 42 codes (undefined table/column and friends) read
		// as syntax-level problems from the caller's point of view.
		return fault.KindQuerySyntax
	}
	return fault.KindUnknown
}
