// Package cassandra adapts Cassandra-family stores to the backend driver
// contract through gocql. Translated queries are CQL, not SQL.
package cassandra

import (
	"context"
	"errors"
	"time"

	"github.com/gocql/gocql"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/fault"
)

type Driver struct{}

func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) Kind() backend.Kind {
	return backend.KindCassandra
}

func (d *Driver) Connect(ctx context.Context, cfg backend.ConnConfig) (backend.Handle, error) {
	if err := cfg.Validate(backend.KindCassandra); err != nil {
		return nil, err
	}

	cluster := gocql.NewCluster(cfg.Host)
	cluster.Port = cfg.Port
	cluster.Keyspace = cfg.Database
	cluster.Consistency = gocql.LocalQuorum
	if deadline, ok := ctx.Deadline(); ok {
		cluster.ConnectTimeout = time.Until(deadline)
	}
	if cfg.User != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.User,
			Password: cfg.Secret,
		}
	}
	if cfg.TLSEnabled() {
		tlsCfg, err := backend.BuildTLSConfig(backend.KindCassandra, cfg)
		if err != nil {
			return nil, err
		}
		cluster.SslOpts = &gocql.SslOptions{
			Config:                 tlsCfg,
			EnableHostVerification: cfg.TLS.Verify,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, classifyConnect(err)
	}
	return &handle{session: session}, nil
}

type handle struct {
	session *gocql.Session
}

func (h *handle) Execute(ctx context.Context, query string) (backend.Result, error) {
	start := time.Now()
	iter := h.session.Query(query).WithContext(ctx).Iter()

	columnInfo := iter.Columns()
	columns := make([]string, len(columnInfo))
	for i, col := range columnInfo {
		columns[i] = col.Name
	}

	rows := make([][]any, 0)
	for {
		record := map[string]any{}
		if !iter.MapScan(record) {
			break
		}
		row := make([]any, len(columns))
		for i, name := range columns {
			row[i] = record[name]
		}
		rows = append(rows, backend.NormalizeRow(row))
	}
	if err := iter.Close(); err != nil {
		return backend.Result{}, classifyExecute(err)
	}

	return backend.Result{
		Kind:     backend.KindCassandra,
		Columns:  columns,
		Rows:     rows,
		Duration: time.Since(start),
	}, nil
}

func (h *handle) Ping(ctx context.Context) error {
	if err := h.session.Query("SELECT release_version FROM system.local").WithContext(ctx).Exec(); err != nil {
		return classifyExecute(err)
	}
	return nil
}

func (h *handle) Close() error {
	h.session.Close()
	return nil
}

func classifyConnect(err error) error {
	const op = "cassandra.connect"
	if kind := requestErrKind(err); kind != fault.KindUnknown {
		return fault.New(kind, op, err)
	}
	if errors.Is(err, gocql.ErrNoConnectionsStarted) || errors.Is(err, gocql.ErrNoHosts) {
		return fault.New(fault.KindConnectionRefused, op, err)
	}
	return fault.New(fault.KindConnectionRefused, op, err)
}

func classifyExecute(err error) error {
	const op = "cassandra.execute"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if kind := requestErrKind(err); kind != fault.KindUnknown {
		return fault.New(kind, op, err)
	}
	if errors.Is(err, gocql.ErrConnectionClosed) || errors.Is(err, gocql.ErrSessionClosed) || errors.Is(err, gocql.ErrNoConnections) {
		return fault.New(fault.KindConnectionLost, op, err)
	}
	if errors.Is(err, gocql.ErrTimeoutNoResponse) {
		return fault.New(fault.KindQueryTimeout, op, err)
	}
	return fault.New(fault.KindUnknown, op, err)
}

// requestErrKind maps server-reported CQL error codes to fault kinds.
func requestErrKind(err error) fault.Kind {
	var reqErr gocql.RequestError
	if !errors.As(err, &reqErr) {
		return fault.KindUnknown
	}
	switch reqErr.Code() {
	case gocql.ErrCodeSyntax:
		return fault.KindQuerySyntax
	case gocql.ErrCodeCredentials:
		return fault.KindAuthenticationFailed
	case gocql.ErrCodeUnauthorized:
		return fault.KindPermissionDenied
	case gocql.ErrCodeReadTimeout, gocql.ErrCodeWriteTimeout:
		return fault.KindQueryTimeout
	case gocql.ErrCodeOverloaded, gocql.ErrCodeUnavailable:
		return fault.KindConnectionRefused
	case gocql.ErrCodeInvalid:
		return fault.KindQuerySyntax
	}
	return fault.KindUnknown
}
