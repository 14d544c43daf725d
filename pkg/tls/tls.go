// Package tls builds mutual-TLS configurations for the predictor's gRPC
// listener and its clients.
//
// Both sides require TLS 1.3, present a certificate and verify the peer
// against the same CA bundle.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config holds PEM file paths. The zero value disables TLS.
type Config struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// Enabled reports whether any file is configured.
func (c Config) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != "" || c.CAFile != ""
}

// Validate checks that either no file or all three files are given and
// that they exist.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.CertFile == "" || c.KeyFile == "" || c.CAFile == "" {
		return errors.New("tls needs cert, key and CA files together")
	}
	for _, path := range []string{c.CertFile, c.KeyFile, c.CAFile} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("tls file %q: %w", path, err)
		}
	}
	return nil
}

// Server returns a configuration that presents the certificate and
// requires a client certificate signed by the CA.
func (c Config) Server() (*tls.Config, error) {
	cert, pool, err := c.load()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// Client returns a configuration that presents the certificate and verifies
// the server against the CA. serverName overrides the name checked against
// the server certificate; leave it empty to use the dialed host.
func (c Config) Client(serverName string) (*tls.Config, error) {
	cert, pool, err := c.load()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

func (c Config) load() (tls.Certificate, *x509.CertPool, error) {
	if !c.Enabled() {
		return tls.Certificate{}, nil, errors.New("tls not configured")
	}
	if err := c.Validate(); err != nil {
		return tls.Certificate{}, nil, err
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("load certificate: %w", err)
	}

	caPEM, err := os.ReadFile(c.CAFile)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return tls.Certificate{}, nil, errors.New("failed to parse CA certificate")
	}
	return cert, pool, nil
}
