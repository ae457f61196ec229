package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	tlsCaCrt = "tls_ca.crt"
	tlsCrt   = "tls.crt"
	tlsKey   = "tls.key"
)

// Settings selects the daemon certificate. Explicit files win over Dir.
type Settings struct {
	Enabled      bool
	CertFile     string
	KeyFile      string
	Dir          string
	AutoGenerate bool
	MinVersion   string // "1.2" or "1.3"
	Hosts        []string
}

func parseTLSVersion(ver string) (uint16, error) {
	switch ver {
	case "", "default", "1.3", "TLS1.3", "tls1.3":
		return tls.VersionTLS13, nil
	case "1.2", "TLS1.2", "tls1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", ver)
	}
}

// Setup returns nil when TLS is disabled.
func Setup(s Settings) (*tls.Config, error) {
	if !s.Enabled {
		return nil, nil
	}
	minVer, err := parseTLSVersion(s.MinVersion)
	if err != nil {
		return nil, err
	}
	certPath, keyPath := s.CertFile, s.KeyFile
	if certPath == "" || keyPath == "" {
		if s.Dir == "" {
			return nil, errors.New("TLS enabled but neither cert_file/key_file nor dir is set")
		}
		certPath, keyPath = filepath.Join(s.Dir, tlsCrt), filepath.Join(s.Dir, tlsKey)
		if s.AutoGenerate && !certificatesExist(certPath, keyPath) {
			if err := GenerateSelfSigned(s.Dir, s.Hosts); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	// fail at startup rather than on the first handshake
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return &tls.Config{
		MinVersion: minVer,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			c, err := tls.LoadX509KeyPair(certPath, keyPath)
			return &c, err
		},
	}, nil
}

// CACertPath is the CA bundle written next to a generated certificate.
func CACertPath(dir string) string { return filepath.Join(dir, tlsCaCrt) }

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}
