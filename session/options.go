// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package session

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mrwilson/tn3270e/ebcdic"
	"github.com/mrwilson/tn3270e/tlsconfig"
)

// Option configures a Session at construction.
type Option func(*config)

type config struct {
	deviceType  string
	codepage    ebcdic.Codepage
	logger      *log.Logger
	dialTimeout time.Duration
	tls         *tlsconfig.Wrapper
}

func defaultConfig() *config {
	return &config{
		deviceType:  "IBM-3279-4-E",
		codepage:    ebcdic.Codepage037(),
		logger:      log.New(io.Discard),
		dialTimeout: 10 * time.Second,
	}
}

// NewLogger builds a logger writing to w, honoring PURE3270_LOG_JSON=true
// by switching to the JSON formatter. This is the logger front-ends should
// hand to WithLogger when they want diagnostics at all; the default
// session logger discards everything.
func NewLogger(w io.Writer) *log.Logger {
	opts := log.Options{ReportTimestamp: true}
	if os.Getenv("PURE3270_LOG_JSON") == "true" {
		opts.Formatter = log.JSONFormatter
	}
	return log.NewWithOptions(w, opts)
}

// WithDeviceType sets the TN3270E device type the Negotiator requests.
// Default "IBM-3279-4-E".
func WithDeviceType(name string) Option {
	return func(c *config) { c.deviceType = name }
}

// WithCodepage selects the EBCDIC code page by ID ("037", "500", "1047",
// "1140").
// An unrecognised ID is ignored and the default (037) is kept.
func WithCodepage(id string) Option {
	return func(c *config) {
		if cp, ok := ebcdic.ByID(id); ok {
			c.codepage = cp
		}
	}
}

// WithLogger sets the diagnostic sink shared by the session and every
// layer beneath it.
func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithDialTimeout bounds the TCP/TLS connect step. Default 10s.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}

// WithTLS enables TLS using w's policy. Omitting this option dials
// a plain TCP connection.
func WithTLS(w *tlsconfig.Wrapper) Option {
	return func(c *config) { c.tls = w }
}
