// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

// Package session implements the synchronous façade applications drive: a
// synchronous Session over one Connection, translating key presses, field
// edits, and cursor movement into the datastream/telnet/tn3270conn layers
// below it. It owns no wire-format knowledge of its own.
package session

import "fmt"

// ConnectionError wraps a DNS, TCP, or TLS handshake failure, or an EOF
// encountered mid-session.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SSLError wraps a TLS context creation or handshake failure.
type SSLError struct {
	Err error
}

func (e *SSLError) Error() string {
	return fmt.Sprintf("session: TLS error: %v", e.Err)
}

func (e *SSLError) Unwrap() error { return e.Err }

// NotConnectedError is returned by any session operation called while the
// session is not in a state that accepts it.
type NotConnectedError struct {
	State string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("session: not connected (state=%s)", e.State)
}

// TimeoutError reports a deadline exceeded on a blocking operation. It
// carries no other state: a timeout never corrupts the byte stream or
// moves the connection's state machine.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("session: %s timed out", e.Op)
}
