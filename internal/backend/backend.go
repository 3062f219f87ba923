// Package backend defines the capability contract every data-store adapter
// implements: connect with a ConnConfig, execute a query string, report rows.
package backend

import (
	"context"
	"strings"
	"time"
)

// Kind identifies a backend family. The translation layer uses it to pick the
// target query dialect, the pool uses it to route requests to a driver.
type Kind string

const (
	KindPostgres  Kind = "postgres"
	KindMySQL     Kind = "mysql"
	KindSQLite    Kind = "sqlite"
	KindCassandra Kind = "cassandra"
	KindLakehouse Kind = "lakehouse"
)

// ParseKind normalizes a user-supplied backend name.
func ParseKind(raw string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindPostgres:
		return KindPostgres, true
	case KindMySQL:
		return KindMySQL, true
	case KindSQLite:
		return KindSQLite, true
	case KindCassandra:
		return KindCassandra, true
	case KindLakehouse:
		return KindLakehouse, true
	default:
		return "", false
	}
}

// Result is the uniform shape every backend reports. Rows preserve the
// backend's row order; Raw optionally carries the backend-native result for
// callers that need it and is never inspected by this layer.
type Result struct {
	Kind     Kind
	Columns  []string
	Rows     [][]any
	Raw      any
	Duration time.Duration
}

// Handle is a live connection to one backend. A handle serves sequential
// execute calls; concurrent callers must serialize at the handle boundary,
// which the executor pool does by holding an entry lock per kind.
type Handle interface {
	Execute(ctx context.Context, query string) (Result, error)
	Ping(ctx context.Context) error
	Close() error
}

// Driver connects to one backend family. Connect either returns a usable
// handle or an error with a fault kind; it never leaks a partially opened
// connection on failure.
type Driver interface {
	Kind() Kind
	Connect(ctx context.Context, cfg ConnConfig) (Handle, error)
}

// SchemaHinter is optionally implemented by handles that can describe their
// schema. The executor uses the hint as prompt context when the caller does
// not supply any.
type SchemaHinter interface {
	SchemaHint(ctx context.Context) (string, error)
}

// NormalizeRow converts driver-native scan values into the uniform row shape.
// Byte slices become strings so results survive JSON encoding unchanged.
func NormalizeRow(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
