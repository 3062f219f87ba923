package backend

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/nlbridge/nlbridge/internal/fault"
)

// BuildTLSConfig turns the connection's TLS material into a *tls.Config.
// Returns nil when the config requests no transport security. Unreadable or
// unparsable material is reported as KindCertificateInvalid.
func BuildTLSConfig(kind Kind, cfg ConnConfig) (*tls.Config, error) {
	if !cfg.TLSEnabled() {
		return nil, nil
	}
	op := string(kind) + ".tls"

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !cfg.TLS.Verify,
		ServerName:         cfg.Host,
	}

	if cfg.TLS.CACert != "" {
		pem, err := os.ReadFile(cfg.TLS.CACert)
		if err != nil {
			return nil, fault.New(fault.KindCertificateInvalid, op, fmt.Errorf("read ca cert: %w", err))
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fault.Newf(fault.KindCertificateInvalid, op, "ca cert %q contains no usable certificates", cfg.TLS.CACert)
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.TLS.ClientCert != "" {
		pair, err := tls.LoadX509KeyPair(cfg.TLS.ClientCert, cfg.TLS.ClientKey)
		if err != nil {
			return nil, fault.New(fault.KindCertificateInvalid, op, fmt.Errorf("load client keypair: %w", err))
		}
		tlsCfg.Certificates = []tls.Certificate{pair}
	}

	return tlsCfg, nil
}
