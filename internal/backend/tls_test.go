package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nlbridge/nlbridge/internal/fault"
)

func TestBuildTLSConfigDisabled(t *testing.T) {
	cfg, err := BuildTLSConfig(KindMySQL, ConnConfig{Host: "db", Port: 3306})
	if err != nil {
		t.Fatalf("BuildTLSConfig() error = %v", err)
	}
	if cfg != nil {
		t.Fatal("no TLS material must yield a nil config")
	}
}

func TestBuildTLSConfigRejectsGarbageCA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("not a certificate"), 0o600); err != nil {
		t.Fatalf("write ca: %v", err)
	}

	_, err := BuildTLSConfig(KindMySQL, ConnConfig{
		Host: "db",
		Port: 3306,
		TLS:  TLSConfig{Verify: true, CACert: path},
	})
	if !fault.IsKind(err, fault.KindCertificateInvalid) {
		t.Fatalf("kind = %v, want certificate_invalid", fault.KindOf(err))
	}
}

func TestBuildTLSConfigVerifyControlsInsecure(t *testing.T) {
	cfg, err := BuildTLSConfig(KindCassandra, ConnConfig{
		Host: "cassandra.internal",
		Port: 9042,
		TLS:  TLSConfig{Verify: false, CACert: ""},
	})
	if err != nil || cfg != nil {
		t.Fatalf("cfg=%v err=%v, want nil/nil when nothing requested", cfg, err)
	}

	_, err = BuildTLSConfig(KindCassandra, ConnConfig{
		Host: "cassandra.internal",
		Port: 9042,
		TLS:  TLSConfig{ClientCert: "missing.pem", ClientKey: "missing.key"},
	})
	if !fault.IsKind(err, fault.KindCertificateInvalid) {
		t.Fatalf("kind = %v, want certificate_invalid", fault.KindOf(err))
	}
}
