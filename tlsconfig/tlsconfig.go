// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

// Package tlsconfig builds the *tls.Config a secure TN3270 connection
// wraps its socket in: TLS 1.2 minimum, a conservative cipher policy, and
// certificate verification on unless explicitly (and loudly) disabled.
package tlsconfig

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// discard is the default logger when a Wrapper is constructed without one.
var discard = log.New(io.Discard)

// Wrapper builds and caches a *tls.Config for a session's secure
// connections. Disabling certificate verification is supported for
// test/lab hosts and is logged at WARN on every context creation.
type Wrapper struct {
	Verify bool
	CAFile string
	CAPath string
	Logger *log.Logger

	context *tls.Config
}

// NewWrapper constructs a Wrapper with the given verification setting. Its
// warning when verify is false goes to the discard logger, since Logger is
// not yet set while NewWrapper runs.
func NewWrapper(verify bool) *Wrapper {
	w := &Wrapper{Verify: verify}
	if !verify {
		w.logger().Warn("certificate verification disabled at construction; this is insecure and should only be used for testing")
	}
	return w
}

func (w *Wrapper) logger() *log.Logger {
	if w.Logger == nil {
		return discard
	}
	return w.Logger
}

// CreateContext builds a fresh *tls.Config: TLS 1.2 minimum, a conservative
// cipher policy, and either the system root pool (verify=true), a pool
// holding only the certificates loaded from CAFile/CAPath (verify=true with
// either set), or certificate verification switched off entirely.
func (w *Wrapper) CreateContext() (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
	}

	if !w.Verify {
		cfg.InsecureSkipVerify = true
		w.logger().Warn("SECURITY WARNING: certificate verification is DISABLED; this connection is vulnerable to man-in-the-middle attacks and must not be used in production")
		w.context = cfg
		return cfg, nil
	}

	if w.CAFile != "" || w.CAPath != "" {
		pool, err := w.loadRoots()
		if err != nil {
			return nil, fmt.Errorf("tlsconfig: loading CA roots: %w", err)
		}
		cfg.RootCAs = pool
	}

	w.context = cfg
	return cfg, nil
}

func (w *Wrapper) loadRoots() (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	loaded := false

	if w.CAFile != "" {
		data, err := os.ReadFile(w.CAFile)
		if err != nil {
			return nil, err
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificates found in %s", w.CAFile)
		}
		loaded = true
	}
	if w.CAPath != "" {
		entries, err := os.ReadDir(w.CAPath)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := os.ReadFile(w.CAPath + "/" + e.Name())
			if err != nil {
				continue
			}
			if pool.AppendCertsFromPEM(data) {
				loaded = true
			}
		}
	}
	if !loaded {
		return nil, fmt.Errorf("no certificates loaded from CAFile/CAPath")
	}
	return pool, nil
}

// GetContext returns the cached *tls.Config, building one with
// CreateContext if none exists yet.
func (w *Wrapper) GetContext() (*tls.Config, error) {
	if w.context != nil {
		return w.context, nil
	}
	return w.CreateContext()
}
