package backend

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nlbridge/nlbridge/internal/fault"
)

func newMockHandle(t *testing.T, classify Classifier, hintSQL string) (*SQLHandle, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &SQLHandle{kind: KindPostgres, db: db, classify: classify, hintSQL: hintSQL}, mock
}

func TestExecuteNormalizesByteColumns(t *testing.T) {
	handle, mock := newMockHandle(t, nil, "")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT name, age FROM users")).WillReturnRows(
		sqlmock.NewRows([]string{"name", "age"}).
			AddRow([]byte("ada"), 36).
			AddRow([]byte("grace"), 45),
	)

	result, err := handle.Execute(context.Background(), "SELECT name, age FROM users")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(result.Rows))
	}
	if result.Rows[0][0] != "ada" {
		t.Fatalf("Rows[0][0] = %v (%T), want string \"ada\"", result.Rows[0][0], result.Rows[0][0])
	}
	if got := result.Columns; len(got) != 2 || got[0] != "name" || got[1] != "age" {
		t.Fatalf("Columns = %v", got)
	}
}

func TestExecuteDriverClassifierWins(t *testing.T) {
	classify := func(error) fault.Kind { return fault.KindQuerySyntax }
	handle, mock := newMockHandle(t, classify, "")
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("syntax error at or near"))

	_, err := handle.Execute(context.Background(), "SELECT bogus")
	if !fault.IsKind(err, fault.KindQuerySyntax) {
		t.Fatalf("kind = %v, want query_syntax_error", fault.KindOf(err))
	}
}

func TestExecuteContextErrorsStayUnclassified(t *testing.T) {
	handle, mock := newMockHandle(t, nil, "")
	mock.ExpectQuery("SELECT").WillReturnError(context.DeadlineExceeded)

	_, err := handle.Execute(context.Background(), "SELECT 1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
	if fault.KindOf(err) != fault.KindUnknown {
		t.Fatalf("kind = %v, want unknown (executor assigns the timeout kind)", fault.KindOf(err))
	}
}

func TestExecuteFallsBackToConnectionLost(t *testing.T) {
	handle, mock := newMockHandle(t, nil, "")
	mock.ExpectQuery("SELECT").WillReturnError(io.EOF)

	_, err := handle.Execute(context.Background(), "SELECT 1")
	if !fault.IsKind(err, fault.KindConnectionLost) {
		t.Fatalf("kind = %v, want connection_lost", fault.KindOf(err))
	}
}

func TestSchemaHintRendersTables(t *testing.T) {
	const hint = "SELECT table_name, column_name, data_type FROM hint"
	handle, mock := newMockHandle(t, nil, hint)
	mock.ExpectQuery(regexp.QuoteMeta(hint)).WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "data_type"}).
			AddRow("users", "id", "integer").
			AddRow("users", "name", "text").
			AddRow("orders", "id", "integer"),
	)

	got, err := handle.SchemaHint(context.Background())
	if err != nil {
		t.Fatalf("SchemaHint() error = %v", err)
	}
	want := "orders(id integer)\nusers(id integer, name text)"
	if got != want {
		t.Fatalf("SchemaHint() = %q, want %q", got, want)
	}
}

func TestSchemaHintEmptyWithoutHintQuery(t *testing.T) {
	handle, _ := newMockHandle(t, nil, "")
	got, err := handle.SchemaHint(context.Background())
	if err != nil {
		t.Fatalf("SchemaHint() error = %v", err)
	}
	if got != "" {
		t.Fatalf("SchemaHint() = %q, want empty", got)
	}
}
