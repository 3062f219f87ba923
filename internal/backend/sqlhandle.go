package backend

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/nlbridge/nlbridge/internal/fault"
)

// Classifier maps a driver-native error to a fault kind. Returning
// fault.KindUnknown means the error carries no backend-specific signal and
// the shared fallbacks apply.
type Classifier func(err error) fault.Kind

// SQLHandle adapts a database/sql connection to the Handle contract. All
// three relational drivers (postgres, mysql, sqlite) share it and differ only
// in their DSN construction, error classifier and schema-hint query.
type SQLHandle struct {
	kind     Kind
	db       *sql.DB
	classify Classifier
	hintSQL  string
}

// OpenSQLHandle opens and pings a database/sql connection. On any failure the
// pooled connection is closed before returning, so no descriptor outlives the
// error.
func OpenSQLHandle(ctx context.Context, kind Kind, driverName, dsn string, classify Classifier, hintSQL string) (*SQLHandle, error) {
	op := string(kind) + ".connect"

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fault.New(fault.KindConfigInvalid, op, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, classifyError(op, err, classify, true)
	}
	return &SQLHandle{kind: kind, db: db, classify: classify, hintSQL: hintSQL}, nil
}

func (h *SQLHandle) Execute(ctx context.Context, query string) (Result, error) {
	op := string(h.kind) + ".execute"
	start := time.Now()

	rows, err := h.db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, classifyError(op, err, h.classify, false)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, classifyError(op, err, h.classify, false)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, classifyError(op, err, h.classify, false)
		}
		resultRows = append(resultRows, NormalizeRow(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, classifyError(op, err, h.classify, false)
	}

	return Result{
		Kind:     h.kind,
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func (h *SQLHandle) Ping(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return classifyError(string(h.kind)+".ping", err, h.classify, false)
	}
	return nil
}

func (h *SQLHandle) Close() error {
	return h.db.Close()
}

// SchemaHint renders the backend's catalog as "table(column type, ...)"
// lines. The hint query must return (table_name, column_name, data_type)
// rows; drivers without one return no hint.
func (h *SQLHandle) SchemaHint(ctx context.Context) (string, error) {
	if h.hintSQL == "" {
		return "", nil
	}
	rows, err := h.db.QueryContext(ctx, h.hintSQL)
	if err != nil {
		return "", classifyError(string(h.kind)+".schema_hint", err, h.classify, false)
	}
	defer func() { _ = rows.Close() }()

	columnsByTable := map[string][]string{}
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return "", fmt.Errorf("scan schema hint row: %w", err)
		}
		columnsByTable[table] = append(columnsByTable[table], column+" "+dataType)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate schema hint rows: %w", err)
	}

	tables := make([]string, 0, len(columnsByTable))
	for table := range columnsByTable {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	lines := make([]string, 0, len(tables))
	for _, table := range tables {
		lines = append(lines, table+"("+strings.Join(columnsByTable[table], ", ")+")")
	}
	return strings.Join(lines, "\n"), nil
}

// classifyError wraps a driver error with a fault kind. The driver classifier
// runs first; shared network fallbacks cover what it cannot name. connecting
// selects between ConnectionRefused (dial phase) and ConnectionLost.
func classifyError(op string, err error, classify Classifier, connecting bool) error {
	// Context cancellation and deadlines pass through unclassified: the
	// executor owns the stage deadlines and assigns the timeout kind.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	if classify != nil {
		if kind := classify(err); kind != fault.KindUnknown {
			return fault.New(kind, op, err)
		}
	}

	switch {
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fault.New(fault.KindConnectionLost, op, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fault.New(fault.KindConnectionRefused, op, err)
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return fault.New(fault.KindConnectionLost, op, err)
	}

	var certVerify *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &certVerify) || errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) {
		return fault.New(fault.KindCertificateInvalid, op, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if connecting {
			return fault.New(fault.KindConnectionRefused, op, err)
		}
		return fault.New(fault.KindConnectionLost, op, err)
	}

	if connecting {
		return fault.New(fault.KindConnectionRefused, op, err)
	}
	return fault.New(fault.KindUnknown, op, err)
}
