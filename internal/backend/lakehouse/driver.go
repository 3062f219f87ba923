// Package lakehouse adapts a parquet-on-object-store layout to the backend
// driver contract. Queries run in an in-process DuckDB instance over files
// staged from the store; each top-level key prefix is exposed as a table.
package lakehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/fault"
	"github.com/nlbridge/nlbridge/internal/storage"
	s3store "github.com/nlbridge/nlbridge/internal/storage/s3"
)

// StoreFactory builds the object store a handle reads from. The default
// factory maps ConnConfig onto the S3 adapter: Host is the endpoint,
// Database the bucket, User/Secret the access keys and TLS.Verify enables
// SSL. Tests swap in an in-memory store.
type StoreFactory func(ctx context.Context, cfg backend.ConnConfig) (storage.ObjectStore, error)

type Driver struct {
	newStore StoreFactory
}

func NewDriver() *Driver {
	return &Driver{newStore: defaultStoreFactory}
}

func NewDriverWithStore(factory StoreFactory) *Driver {
	return &Driver{newStore: factory}
}

func (d *Driver) Kind() backend.Kind {
	return backend.KindLakehouse
}

func (d *Driver) Connect(ctx context.Context, cfg backend.ConnConfig) (backend.Handle, error) {
	if err := cfg.Validate(backend.KindLakehouse); err != nil {
		return nil, err
	}
	store, err := d.newStore(ctx, cfg)
	if err != nil {
		return nil, fault.New(fault.KindConnectionRefused, "lakehouse.connect", err)
	}
	h := &handle{store: store}
	if err := h.Ping(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func defaultStoreFactory(ctx context.Context, cfg backend.ConnConfig) (storage.ObjectStore, error) {
	return s3store.New(ctx, s3store.Config{
		Endpoint:        cfg.Address(),
		Bucket:          cfg.Database,
		AccessKeyID:     cfg.User,
		SecretAccessKey: cfg.Secret,
		UseSSL:          cfg.TLS.Verify,
	})
}

type handle struct {
	store storage.ObjectStore
}

func (h *handle) Execute(ctx context.Context, query string) (backend.Result, error) {
	const op = "lakehouse.execute"
	start := time.Now()

	tables, err := h.discoverTables(ctx)
	if err != nil {
		return backend.Result{}, fault.New(fault.KindConnectionLost, op, err)
	}
	if len(tables) == 0 {
		return backend.Result{}, fault.Newf(fault.KindQuerySyntax, op, "store holds no parquet tables")
	}

	workDir, err := os.MkdirTemp("", "nlbridge-lakehouse-")
	if err != nil {
		return backend.Result{}, fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	staged, err := h.stageTables(ctx, workDir, tables)
	if err != nil {
		return backend.Result{}, fault.New(fault.KindConnectionLost, op, err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return backend.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	for tableName, localPaths := range staged {
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(tableName), quoteStringArray(localPaths))
		if _, err := db.ExecContext(ctx, viewSQL); err != nil {
			return backend.Result{}, fmt.Errorf("create view for table %q: %w", tableName, err)
		}
	}

	queryText := stripTrailingSemicolons(query)
	if queryText == "" {
		return backend.Result{}, fault.Newf(fault.KindQuerySyntax, op, "query is empty")
	}

	rows, err := db.QueryContext(ctx, queryText)
	if err != nil {
		return backend.Result{}, classifyDuckDB(op, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return backend.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return backend.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, backend.NormalizeRow(values))
	}
	if err := rows.Err(); err != nil {
		return backend.Result{}, classifyDuckDB(op, err)
	}

	return backend.Result{
		Kind:     backend.KindLakehouse,
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func (h *handle) Ping(ctx context.Context) error {
	if _, err := h.store.List(ctx, ""); err != nil {
		return fault.New(fault.KindConnectionRefused, "lakehouse.ping", err)
	}
	return nil
}

func (h *handle) Close() error {
	return nil
}

// SchemaHint lists discoverable tables with the column names and types read
// from each table's first parquet file.
func (h *handle) SchemaHint(ctx context.Context) (string, error) {
	tables, err := h.discoverTables(ctx)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return "", nil
	}

	workDir, err := os.MkdirTemp("", "nlbridge-lakehouse-hint-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return "", fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	lines := make([]string, 0, len(tables))
	for _, table := range tables {
		infos, err := h.store.List(ctx, table.name)
		if err != nil || len(infos) == 0 {
			continue
		}
		localPath := filepath.Join(workDir, sanitizeFileComponent(table.name)+".parquet")
		if err := h.stageObject(ctx, infos[0].Key, localPath); err != nil {
			continue
		}
		columns, err := describeParquet(ctx, db, localPath)
		if err != nil {
			continue
		}
		lines = append(lines, table.name+"("+strings.Join(columns, ", ")+")")
	}
	return strings.Join(lines, "\n"), nil
}

type tableRef struct {
	name string
	keys []string
}

// discoverTables groups parquet objects by their first path component.
func (h *handle) discoverTables(ctx context.Context) ([]tableRef, error) {
	infos, err := h.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list store objects: %w", err)
	}

	byName := map[string]*tableRef{}
	order := make([]string, 0)
	for _, info := range infos {
		if !strings.HasSuffix(info.Key, ".parquet") {
			continue
		}
		name, _, found := strings.Cut(info.Key, "/")
		if !found || name == "" {
			continue
		}
		ref, ok := byName[name]
		if !ok {
			ref = &tableRef{name: name}
			byName[name] = ref
			order = append(order, name)
		}
		ref.keys = append(ref.keys, info.Key)
	}

	tables := make([]tableRef, 0, len(order))
	for _, name := range order {
		tables = append(tables, *byName[name])
	}
	return tables, nil
}

func (h *handle) stageTables(ctx context.Context, workDir string, tables []tableRef) (map[string][]string, error) {
	staged := map[string][]string{}
	for _, table := range tables {
		for i, key := range table.keys {
			localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(table.name), i))
			if err := h.stageObject(ctx, key, localPath); err != nil {
				return nil, err
			}
			staged[table.name] = append(staged[table.name], localPath)
		}
	}
	return staged, nil
}

func (h *handle) stageObject(ctx context.Context, key, localPath string) error {
	reader, err := h.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create staging file %q: %w", localPath, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("stage object %q: %w", key, err)
	}
	return file.Close()
}

func describeParquet(ctx context.Context, db *sql.DB, localPath string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`DESCRIBE SELECT * FROM read_parquet('%s')`, strings.ReplaceAll(localPath, `'`, `''`)))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns := make([]string, 0)
	for rows.Next() {
		var name, colType string
		var null, key, defaultValue, extra any
		if err := rows.Scan(&name, &colType, &null, &key, &defaultValue, &extra); err != nil {
			return nil, err
		}
		columns = append(columns, name+" "+strings.ToLower(colType))
	}
	return columns, rows.Err()
}

// classifyDuckDB relies on message matching because the duckdb driver
// surfaces server errors as plain strings.
func classifyDuckDB(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "parser error"), strings.Contains(message, "syntax error"),
		strings.Contains(message, "binder error"), strings.Contains(message, "catalog error"):
		return fault.New(fault.KindQuerySyntax, op, err)
	case strings.Contains(message, "interrupt"):
		return fault.New(fault.KindQueryTimeout, op, err)
	}
	return fault.New(fault.KindUnknown, op, err)
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}

func stripTrailingSemicolons(queryText string) string {
	trimmed := strings.TrimSpace(queryText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
