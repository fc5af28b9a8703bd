// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

// Command tn3270sh is a minimal interactive client over the session
// package: it connects, prints the screen it receives, and accepts a
// small set of line commands to drive it. Connection settings come from
// flags, or from a YAML profile with flags overriding the profile's
// values.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mrwilson/tn3270e/session"
	"github.com/mrwilson/tn3270e/tlsconfig"
)

// profile is the YAML connection profile -profile loads. Every field is
// optional; flags given on the command line win over profile values.
type profile struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	TLS        bool   `yaml:"tls"`
	Insecure   bool   `yaml:"insecure"`
	DeviceType string `yaml:"devicetype"`
	Codepage   string `yaml:"codepage"`
}

func loadProfile(path string) (profile, error) {
	p := profile{Port: 23, DeviceType: "IBM-3279-4-E", Codepage: "037"}
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing %s: %w", path, err)
	}
	return p, nil
}

func main() {
	host := pflag.StringP("host", "h", "", "mainframe host to connect to")
	port := pflag.IntP("port", "p", 23, "telnet port")
	useTLS := pflag.Bool("tls", false, "wrap the connection in TLS")
	insecure := pflag.Bool("insecure", false, "skip TLS certificate verification (testing only)")
	deviceType := pflag.StringP("devicetype", "t", "IBM-3279-4-E", "TN3270E device type to request")
	codepage := pflag.StringP("codepage", "c", "037", "EBCDIC code page")
	profilePath := pflag.StringP("profile", "f", "", "YAML connection profile; flags override its values")
	verbose := pflag.BoolP("verbose", "v", false, "log negotiation and parse diagnostics to stderr")
	pflag.Parse()

	logger := session.NewLogger(os.Stderr)

	prof, err := loadProfile(*profilePath)
	if err != nil {
		logger.Fatal("profile", "err", err)
	}
	if pflag.CommandLine.Changed("host") || prof.Host == "" {
		prof.Host = *host
	}
	if pflag.CommandLine.Changed("port") {
		prof.Port = *port
	}
	if pflag.CommandLine.Changed("tls") {
		prof.TLS = *useTLS
	}
	if pflag.CommandLine.Changed("insecure") {
		prof.Insecure = *insecure
	}
	if pflag.CommandLine.Changed("devicetype") {
		prof.DeviceType = *deviceType
	}
	if pflag.CommandLine.Changed("codepage") {
		prof.Codepage = *codepage
	}

	if prof.Host == "" {
		fmt.Fprintln(os.Stderr, "usage: tn3270sh -h HOST [-p PORT] [--tls] [-t TYPE] [-f profile.yaml]")
		os.Exit(2)
	}

	opts := []session.Option{
		session.WithDeviceType(prof.DeviceType),
		session.WithCodepage(prof.Codepage),
	}
	if *verbose {
		opts = append(opts, session.WithLogger(logger))
	}
	if prof.TLS {
		w := tlsconfig.NewWrapper(!prof.Insecure)
		w.Logger = logger
		opts = append(opts, session.WithTLS(w))
	}

	s := session.New(prof.Host, prof.Port, opts...)
	if err := s.Connect(); err != nil {
		logger.Fatal("connect", "err", err)
	}
	defer s.Close()

	fmt.Println(s.ScreenBuffer().ToText(true))
	repl(s)
}

// repl runs the line-command loop: "key <name>" submits an attention key,
// "text <...>" inserts text at the cursor, "tab"/"backtab"/"fieldend"/
// "eof" move or edit the current field, "quit" closes the session. Any
// other line is rejected with a usage hint rather than silently ignored.
func repl(s *session.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		cmd := fields[0]
		var arg string
		if len(fields) > 1 {
			arg = fields[1]
		}

		var err error
		switch cmd {
		case "key":
			err = s.Key(arg)
		case "text":
			err = s.InsertText(arg)
		case "tab":
			err = s.Tab()
		case "backtab":
			err = s.Backtab()
		case "fieldend":
			err = s.FieldEnd()
		case "eof":
			err = s.EraseEOF()
		case "quit", "exit":
			return
		default:
			fmt.Println("unrecognised command; try: key <name>, text <...>, tab, backtab, fieldend, eof, quit")
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		if err := s.Read(5 * time.Second); err != nil {
			fmt.Fprintf(os.Stderr, "read: %v\n", err)
			continue
		}
		fmt.Println(s.ScreenBuffer().ToText(true))
	}
}
