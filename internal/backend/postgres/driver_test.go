package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nlbridge/nlbridge/internal/backend"
	"github.com/nlbridge/nlbridge/internal/fault"
)

func TestClassifySQLStates(t *testing.T) {
	cases := []struct {
		code string
		want fault.Kind
	}{
		{"28P01", fault.KindAuthenticationFailed},
		{"28000", fault.KindAuthenticationFailed},
		{"42601", fault.KindQuerySyntax},
		{"42P01", fault.KindQuerySyntax},
		{"42501", fault.KindPermissionDenied},
		{"57014", fault.KindQueryTimeout},
		{"08006", fault.KindConnectionLost},
		{"08003", fault.KindConnectionLost},
		{"22012", fault.KindUnknown},
	}
	for _, tc := range cases {
		got := classify(&pgconn.PgError{Code: tc.code})
		if got != tc.want {
			t.Errorf("classify(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestClassifyIgnoresForeignErrors(t *testing.T) {
	if got := classify(errors.New("dial tcp: refused")); got != fault.KindUnknown {
		t.Fatalf("classify = %v, want unknown", got)
	}
}

func TestBuildDSNModes(t *testing.T) {
	cfg := backend.ConnConfig{Host: "db.internal", Port: 5432, Database: "app", User: "svc", Secret: "s3cret"}
	dsn := buildDSN(cfg)
	for _, want := range []string{"host=db.internal", "port=5432", "dbname=app", "user=svc", "password=s3cret", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}

	cfg.TLS = backend.TLSConfig{Verify: true, CACert: "/etc/ssl/ca.pem"}
	dsn = buildDSN(cfg)
	if !strings.Contains(dsn, "sslmode=verify-full") || !strings.Contains(dsn, "sslrootcert=/etc/ssl/ca.pem") {
		t.Fatalf("verify dsn = %q", dsn)
	}

	cfg.TLS = backend.TLSConfig{CACert: "/etc/ssl/ca.pem"}
	if dsn = buildDSN(cfg); !strings.Contains(dsn, "sslmode=require") {
		t.Fatalf("require dsn = %q", dsn)
	}
}

func TestQuoteDSNValueEscapes(t *testing.T) {
	if got := quoteDSNValue("plain"); got != "plain" {
		t.Fatalf("quoteDSNValue = %q", got)
	}
	if got := quoteDSNValue("pa ss'w"); got != `'pa ss\'w'` {
		t.Fatalf("quoteDSNValue = %q", got)
	}
}

func TestConnectRejectsInvalidConfig(t *testing.T) {
	driver := NewDriver()
	_, err := driver.Connect(context.Background(), backend.ConnConfig{})
	if !fault.IsKind(err, fault.KindConfigInvalid) {
		t.Fatalf("kind = %v, want config_invalid", fault.KindOf(err))
	}
}
