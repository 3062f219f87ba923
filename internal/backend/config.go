package backend

import (
	"fmt"
	"os"
	"strings"

	"github.com/nlbridge/nlbridge/internal/fault"
)

// TLSConfig holds the transport security material for a connection. Paths are
// resolved at connect time; Validate only checks they are readable.
type TLSConfig struct {
	Verify     bool
	CACert     string
	ClientCert string
	ClientKey  string
}

// ConnConfig describes how to reach one backend. It is a value type and must
// not be mutated after construction; drivers interpret the fields per family
// (SQLite uses Database as a file path, the lakehouse uses Host as the object
// store endpoint and Database as the bucket).
type ConnConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Secret   string
	TLS      TLSConfig
}

// Validate checks the invariants shared by all backends: a reachable
// endpoint, and consistent TLS material. Kind-specific constraints stay in
// the drivers.
func (c ConnConfig) Validate(kind Kind) error {
	op := string(kind) + ".config"

	switch kind {
	case KindSQLite:
		if strings.TrimSpace(c.Database) == "" {
			return fault.Newf(fault.KindConfigInvalid, op, "database path is required")
		}
	default:
		if strings.TrimSpace(c.Host) == "" {
			return fault.Newf(fault.KindConfigInvalid, op, "host is required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fault.Newf(fault.KindConfigInvalid, op, "port %d is out of range", c.Port)
		}
	}

	if c.TLS.Verify {
		if strings.TrimSpace(c.TLS.CACert) == "" {
			return fault.Newf(fault.KindCertificateInvalid, op, "verify requested but no CA cert path")
		}
		if err := checkReadable(c.TLS.CACert); err != nil {
			return fault.New(fault.KindCertificateInvalid, op, fmt.Errorf("ca cert: %w", err))
		}
	}
	if (c.TLS.ClientCert == "") != (c.TLS.ClientKey == "") {
		return fault.Newf(fault.KindCertificateInvalid, op, "client cert and key must be supplied together")
	}
	if c.TLS.ClientCert != "" {
		if err := checkReadable(c.TLS.ClientCert); err != nil {
			return fault.New(fault.KindCertificateInvalid, op, fmt.Errorf("client cert: %w", err))
		}
		if err := checkReadable(c.TLS.ClientKey); err != nil {
			return fault.New(fault.KindCertificateInvalid, op, fmt.Errorf("client key: %w", err))
		}
	}
	return nil
}

// TLSEnabled reports whether any transport security is requested.
func (c ConnConfig) TLSEnabled() bool {
	return c.TLS.Verify || c.TLS.CACert != "" || c.TLS.ClientCert != ""
}

// Address renders host:port for drivers that dial directly.
func (c ConnConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
