// Package mysql adapts MySQL and compatible servers to the backend driver
// contract through go-sql-driver.
package mysql

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/fault"
)

const hintSQL = `SELECT table_name, column_name, data_type
FROM information_schema.columns
WHERE table_schema = DATABASE()
ORDER BY table_name, ordinal_position`

// tlsConfigName registrations are global in go-sql-driver, so each distinct
// connection config gets its own name.
var (
	tlsRegistryMu  sync.Mutex
	tlsRegistrySeq int
)

type Driver struct{}

func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) Kind() backend.Kind {
	return backend.KindMySQL
}

func (d *Driver) Connect(ctx context.Context, cfg backend.ConnConfig) (backend.Handle, error) {
	if err := cfg.Validate(backend.KindMySQL); err != nil {
		return nil, err
	}

	mysqlCfg := gomysql.NewConfig()
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = cfg.Address()
	mysqlCfg.User = cfg.User
	mysqlCfg.Passwd = cfg.Secret
	mysqlCfg.DBName = cfg.Database
	mysqlCfg.ParseTime = true

	if cfg.TLSEnabled() {
		tlsCfg, err := backend.BuildTLSConfig(backend.KindMySQL, cfg)
		if err != nil {
			return nil, err
		}
		name, err := registerTLSConfig(tlsCfg)
		if err != nil {
			return nil, fault.New(fault.KindCertificateInvalid, "mysql.connect", err)
		}
		mysqlCfg.TLSConfig = name
	}

	return backend.OpenSQLHandle(ctx, backend.KindMySQL, "mysql", mysqlCfg.FormatDSN(), classify, hintSQL)
}

func registerTLSConfig(tlsCfg *tls.Config) (string, error) {
	tlsRegistryMu.Lock()
	defer tlsRegistryMu.Unlock()
	tlsRegistrySeq++
	name := fmt.Sprintf("nlbridge-%d", tlsRegistrySeq)
	if err := gomysql.RegisterTLSConfig(name, tlsCfg); err != nil {
		return "", err
	}
	return name, nil
}

// classify maps MySQL server error numbers to fault kinds.
func classify(err error) fault.Kind {
	if errors.Is(err, gomysql.ErrInvalidConn) {
		return fault.KindConnectionLost
	}
	var mysqlErr *gomysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return fault.KindUnknown
	}
	switch mysqlErr.Number {
	case 1045: // ER_ACCESS_DENIED_ERROR
		return fault.KindAuthenticationFailed
	case 1064, 1146, 1054: // parse error, unknown table, unknown column
		return fault.KindQuerySyntax
	case 1044, 1142, 1143, 1227: // db/table/column access denied, privilege check
		return fault.KindPermissionDenied
	case 1317, 3024: // query interrupted, max execution time exceeded
		return fault.KindQueryTimeout
	case 1040, 1203: // too many connections
		return fault.KindConnectionRefused
	case 2006, 2013: // server gone away, lost connection
		return fault.KindConnectionLost
	}
	return fault.KindUnknown
}
