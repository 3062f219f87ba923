package lakehouse

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/fault"
	"github.com/nlbridge/nlbridge/internal/storage"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]storage.ObjectInfo, 0)
	for key, data := range s.objects {
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, storage.ObjectInfo{Key: key, Size: int64(len(data))})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

type userRow struct {
	Name string `parquet:"name"`
	Age  int64  `parquet:"age"`
}

func seedUsers(t *testing.T, store storage.ObjectStore) {
	t.Helper()
	_, err := writeTableObject(context.Background(), store, "users", "part-0", []userRow{
		{Name: "tariq", Age: 25},
		{Name: "maria", Age: 35},
		{Name: "chen", Age: 40},
	})
	if err != nil {
		t.Fatalf("writeTableObject() error = %v", err)
	}
}

func TestDiscoverTablesGroupsByPrefix(t *testing.T) {
	store := newMemStore()
	store.objects["users/part-0.parquet"] = []byte("a")
	store.objects["users/part-1.parquet"] = []byte("b")
	store.objects["orders/part-0.parquet"] = []byte("c")
	store.objects["README.md"] = []byte("ignored")
	store.objects["loose.parquet"] = []byte("ignored, no table prefix")

	h := &handle{store: store}
	tables, err := h.discoverTables(context.Background())
	if err != nil {
		t.Fatalf("discoverTables() error = %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("tables = %d, want 2", len(tables))
	}
	byName := map[string]int{}
	for _, table := range tables {
		byName[table.name] = len(table.keys)
	}
	if byName["users"] != 2 || byName["orders"] != 1 {
		t.Fatalf("grouping = %v", byName)
	}
}

func TestExecuteQueriesParquetTables(t *testing.T) {
	store := newMemStore()
	seedUsers(t, store)

	h := &handle{store: store}
	result, err := h.Execute(context.Background(), "SELECT name FROM users WHERE age > 30 ORDER BY age;")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Columns) != 1 || result.Columns[0] != "name" {
		t.Fatalf("Columns = %v", result.Columns)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %v, want exactly the two matching users", result.Rows)
	}
	if result.Rows[0][0] != "maria" || result.Rows[1][0] != "chen" {
		t.Fatalf("rows out of order: %v", result.Rows)
	}
}

func TestExecuteSyntaxErrorClassified(t *testing.T) {
	store := newMemStore()
	seedUsers(t, store)

	h := &handle{store: store}
	_, err := h.Execute(context.Background(), "SELECT nope FROM missing_table")
	if !fault.IsKind(err, fault.KindQuerySyntax) {
		t.Fatalf("kind = %v, want query_syntax_error", fault.KindOf(err))
	}
}

func TestExecuteEmptyStoreFails(t *testing.T) {
	h := &handle{store: newMemStore()}
	_, err := h.Execute(context.Background(), "SELECT 1")
	if !fault.IsKind(err, fault.KindQuerySyntax) {
		t.Fatalf("kind = %v, want query_syntax_error", fault.KindOf(err))
	}
}

func TestSchemaHintDescribesTables(t *testing.T) {
	store := newMemStore()
	seedUsers(t, store)

	h := &handle{store: store}
	hint, err := h.SchemaHint(context.Background())
	if err != nil {
		t.Fatalf("SchemaHint() error = %v", err)
	}
	if !strings.HasPrefix(hint, "users(") {
		t.Fatalf("hint = %q", hint)
	}
	if !strings.Contains(hint, "age") || !strings.Contains(hint, "name") {
		t.Fatalf("hint missing columns: %q", hint)
	}
}

func TestConnectValidatesConfig(t *testing.T) {
	driver := NewDriverWithStore(func(context.Context, backend.ConnConfig) (storage.ObjectStore, error) {
		return newMemStore(), nil
	})
	_, err := driver.Connect(context.Background(), backend.ConnConfig{})
	if !fault.IsKind(err, fault.KindConfigInvalid) {
		t.Fatalf("kind = %v, want config_invalid", fault.KindOf(err))
	}
}

func TestConnectPingsStore(t *testing.T) {
	store := newMemStore()
	seedUsers(t, store)
	driver := NewDriverWithStore(func(context.Context, backend.ConnConfig) (storage.ObjectStore, error) {
		return store, nil
	})

	h, err := driver.Connect(context.Background(), backend.ConnConfig{Host: "store.internal", Port: 9000, Database: "bucket"})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := h.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
