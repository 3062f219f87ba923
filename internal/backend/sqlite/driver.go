// Package sqlite adapts an embedded SQLite database to the backend driver
// contract. ConnConfig.Database is the database file path; host, port and TLS
// fields are unused.
package sqlite

import (
	"context"
	"errors"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/fault"
)

// sqlite_master has no column catalog, so the hint comes from table DDL via
// pragma_table_info.
const hintSQL = `SELECT m.name, p.name, p.type
FROM sqlite_master AS m
JOIN pragma_table_info(m.name) AS p
WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
ORDER BY m.name, p.cid`

type Driver struct{}

func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) Kind() backend.Kind {
	return backend.KindSQLite
}

func (d *Driver) Connect(ctx context.Context, cfg backend.ConnConfig) (backend.Handle, error) {
	if err := cfg.Validate(backend.KindSQLite); err != nil {
		return nil, err
	}
	dsn := strings.TrimSpace(cfg.Database)
	return backend.OpenSQLHandle(ctx, backend.KindSQLite, "sqlite3", dsn, classify, hintSQL)
}

func classify(err error) fault.Kind {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return fault.KindUnknown
	}
	switch sqliteErr.Code {
	case sqlite3.ErrAuth, sqlite3.ErrPerm:
		return fault.KindPermissionDenied
	case sqlite3.ErrInterrupt:
		return fault.KindQueryTimeout
	case sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
		return fault.KindConfigInvalid
	case sqlite3.ErrError:
		// Generic SQL error: SQLite reports parse failures under this code.
		return fault.KindQuerySyntax
	}
	return fault.KindUnknown
}
