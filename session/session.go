// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package session

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/mrwilson/tn3270e/datastream"
	"github.com/mrwilson/tn3270e/screen"
	"github.com/mrwilson/tn3270e/telnet"
	"github.com/mrwilson/tn3270e/tn3270conn"
)

// Session is the synchronous façade applications drive: it owns one
// Connection, its screen buffer, and the timing/device-type/codepage
// policy chosen at construction. Every operation below requires the
// connection to have settled into CONNECTED, TN3270_MODE, or ASCII_MODE
// except Connect and Close themselves.
type Session struct {
	host string
	port int
	cfg  *config

	Conn *tn3270conn.Connection

	transport net.Conn
}

// New constructs a Session for host:port without connecting. Connect
// performs the network I/O.
func New(host string, port int, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	return &Session{host: host, port: port, cfg: cfg}
}

func (s *Session) state() tn3270conn.State {
	if s.Conn == nil {
		return tn3270conn.Disconnected
	}
	return s.Conn.FSM.Current()
}

// requireDataMode returns NotConnectedError unless the connection has
// settled into CONNECTED, TN3270_MODE, or ASCII_MODE.
func (s *Session) requireDataMode() error {
	switch s.state() {
	case tn3270conn.Connected, tn3270conn.TN3270Mode, tn3270conn.ASCIIMode:
		return nil
	default:
		return &NotConnectedError{State: s.state().String()}
	}
}

// Connect dials the host, performs Telnet/TN3270E negotiation, and blocks
// until the connection settles into a data mode or the dial timeout
// elapses. The screen buffer is sized from the negotiated device type
// once negotiation completes; BIND-IMAGE may resize it further.
func (s *Session) Connect() error {
	transport, err := s.dial()
	if err != nil {
		return err
	}
	return s.connectOver(transport)
}

// connectOver drives negotiation over an already-established transport.
// Split out from Connect so tests can exercise negotiation over an
// in-memory net.Pipe without a real socket.
func (s *Session) connectOver(transport net.Conn) error {
	s.transport = transport

	rows, cols := 24, 80
	buf := screen.NewScreenBuffer(rows, cols, s.cfg.codepage)
	parser := &datastream.Parser{Buf: buf, Codepage: s.cfg.codepage, Logger: s.cfg.logger}
	builder := &datastream.Builder{Buf: buf}

	conn := tn3270conn.NewConnection(transport, parser, builder)
	conn.Logger = s.cfg.logger
	conn.Negotiator.Logger = s.cfg.logger
	conn.Negotiator.SetPreferredDeviceType(s.cfg.deviceType)
	conn.Negotiator.OnScreenResize = func(r, c int) { buf.Resize(r, c) }
	s.Conn = conn

	now := time.Now().UnixNano()
	if err := conn.Connect(now); err != nil {
		return &ConnectionError{Op: "negotiate", Err: err}
	}

	deadline := time.Now().Add(s.cfg.dialTimeout)
	for time.Now().Before(deadline) && !negotiationSettled(conn.Negotiator) {
		remaining := time.Until(deadline)
		if err := conn.Read(remaining); err != nil && !tn3270conn.ErrTimeout(err) {
			return &ConnectionError{Op: "negotiate", Err: err}
		}
	}
	if err := conn.EnterDataMode(time.Now().UnixNano()); err != nil {
		return &ConnectionError{Op: "enter data mode", Err: err}
	}

	if r, c, ok := telnetScreenSize(conn); ok {
		buf.Resize(r, c)
	}
	return nil
}

// telnetScreenSize looks up the device-type table for the negotiated
// device type, falling back to "no change" when unrecognised (e.g.
// IBM-DYNAMIC, sized only by a later BIND-IMAGE).
func telnetScreenSize(conn *tn3270conn.Connection) (rows, cols int, ok bool) {
	return telnet.ScreenSizeFor(conn.Negotiator.DeviceType)
}

// negotiationSettled reports whether the negotiator has reached a final
// answer on EOR and TN3270E — either resolved or explicitly refused — so
// Connect knows it can stop pumping reads and pick a data mode.
func negotiationSettled(n *telnet.Negotiator) bool {
	if n.ASCIIMode {
		return true
	}
	resolved := func(o telnet.Option) bool {
		switch n.State(o) {
		case telnet.StateYes, telnet.StateWont:
			return true
		}
		return false
	}
	return resolved(telnet.OptEOR) && resolved(telnet.OptTN3270E)
}

func (s *Session) dial() (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	plain, err := net.DialTimeout("tcp", addr, s.cfg.dialTimeout)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}
	if s.cfg.tls == nil {
		return plain, nil
	}
	tlsCfg, err := s.cfg.tls.GetContext()
	if err != nil {
		plain.Close()
		return nil, &SSLError{Err: err}
	}
	tlsCfg = tlsCfg.Clone()
	tlsCfg.ServerName = s.host
	tc := tls.Client(plain, tlsCfg)
	if err := tc.Handshake(); err != nil {
		tc.Close()
		return nil, &SSLError{Err: err}
	}
	return tc, nil
}

// Close closes the transport and moves the connection to DISCONNECTED. It
// is safe to call more than once and from any state.
func (s *Session) Close() error {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.Close(time.Now().UnixNano())
}

// ScreenBuffer returns the session's live screen buffer. The
// caller must not mutate it directly except through the edit operations
// below; the parser and these operations are the only writers, which
// keeps mutation on a single happens-before timeline.
func (s *Session) ScreenBuffer() *screen.ScreenBuffer {
	if s.Conn == nil {
		return nil
	}
	return s.Conn.Parser.Buf
}

// Send writes a raw payload as one outbound record.
func (s *Session) Send(payload []byte) error {
	if err := s.requireDataMode(); err != nil {
		return err
	}
	return s.Conn.Send(payload)
}

// Read blocks for up to timeout for the next inbound record, feeding it
// through the connection. A TimeoutError means no record arrived within
// the deadline; it never corrupts partially-read bytes.
func (s *Session) Read(timeout time.Duration) error {
	if err := s.requireDataMode(); err != nil {
		return err
	}
	err := s.Conn.Read(timeout)
	if tn3270conn.ErrTimeout(err) {
		return &TimeoutError{Op: "read"}
	}
	return err
}

// Key submits the named attention key (e.g. "Enter", "PF3", "PA1",
// "Clear") as the builder would encode it.
func (s *Session) Key(name string) error {
	aid, ok := datastream.AIDByName(name)
	if !ok {
		return fmt.Errorf("session: unrecognised key name %q", name)
	}
	return s.pressAID(aid)
}

func (s *Session) pressAID(aid datastream.AID) error {
	if err := s.requireDataMode(); err != nil {
		return err
	}
	var out []byte
	if aid == datastream.AIDClear {
		out = s.Conn.Builder.Clear()
	} else {
		out = s.Conn.Builder.KeyPress(aid)
	}
	// An attention key locks the keyboard until the host's reply restores
	// it; the WCC keyboard-restore bit clears both flags.
	buf := s.ScreenBuffer()
	buf.AIDPending = screen.AID(aid)
	buf.SetKeyboardLock(true)
	return s.Conn.Send(out)
}

// PF submits PF key n (1-24).
func (s *Session) PF(n int) error { return s.pressAID(datastream.PF(n)) }

// PA submits PA key n (1-3).
func (s *Session) PA(n int) error { return s.pressAID(datastream.PA(n)) }

// Enter submits the Enter key.
func (s *Session) Enter() error { return s.pressAID(datastream.AIDEnter) }

// Clear submits the Clear key.
func (s *Session) Clear() error { return s.pressAID(datastream.AIDClear) }

// ReadModified enumerates every input field with its Modified Data Tag
// set, in ascending address order, without performing any I/O. To
// submit that same data to the host, build it with s.Conn.Builder and
// Send it (e.g. via Enter or PF).
func (s *Session) ReadModified() ([]screen.ModifiedField, error) {
	if err := s.requireDataMode(); err != nil {
		return nil, err
	}
	return s.ScreenBuffer().ReadModified(), nil
}

// InsertText writes s into the buffer at the cursor, one EBCDIC byte per
// rune, through the codepage negotiated at construction. Each write
// advances the cursor and sets the covering input field's MDT, exactly as
// a keystroke would.
func (s *Session) InsertText(text string) error {
	if err := s.requireDataMode(); err != nil {
		return err
	}
	buf := s.ScreenBuffer()
	for _, b := range s.cfg.codepage.Encode(text) {
		buf.WriteChar(b)
	}
	return nil
}

// MoveCursor sets the cursor to (row, col), clamping out-of-range values.
func (s *Session) MoveCursor(row, col int) error {
	if err := s.requireDataMode(); err != nil {
		return err
	}
	s.ScreenBuffer().SetPosition(row, col)
	return nil
}

// Tab advances the cursor to the next input field.
func (s *Session) Tab() error {
	if err := s.requireDataMode(); err != nil {
		return err
	}
	s.ScreenBuffer().ProgramTab()
	return nil
}

// Backtab moves the cursor to the previous input field.
func (s *Session) Backtab() error {
	if err := s.requireDataMode(); err != nil {
		return err
	}
	s.ScreenBuffer().BackTab()
	return nil
}

// FieldEnd moves the cursor to the end of the current input field's
// content without altering it — the common "move past what's already
// typed" binding, distinct from EraseEOF which also clears.
func (s *Session) FieldEnd() error {
	if err := s.requireDataMode(); err != nil {
		return err
	}
	buf := s.ScreenBuffer()
	if f, ok := fieldAt(buf, buf.Cursor); ok {
		buf.SetPositionAddr(f.Start + fieldDataLen(buf, f))
	}
	return nil
}

// EraseEOF clears the current input field from the cursor to its end and
// sets its MDT, leaving the cursor in place.
func (s *Session) EraseEOF() error {
	if err := s.requireDataMode(); err != nil {
		return err
	}
	s.ScreenBuffer().EraseEOF()
	return nil
}

// fieldAt resolves the field governing a cell via its AttributeIndex,
// which FieldAt (an exact-start lookup) cannot do on its own.
func fieldAt(buf *screen.ScreenBuffer, addr int) (*screen.Field, bool) {
	cell := buf.Cells[addr]
	if cell.AttributeIndex == 0 {
		return nil, false
	}
	return buf.FieldAt(int(cell.AttributeIndex) - 1)
}

func fieldDataLen(buf *screen.ScreenBuffer, f *screen.Field) int {
	fields := buf.Fields()
	size := buf.Rows * buf.Cols
	for i, cand := range fields {
		if cand.Start == f.Start {
			next := fields[(i+1)%len(fields)]
			length := next.Start - f.Start
			if length <= 0 {
				length += size
			}
			return length - 1
		}
	}
	return 0
}

// ReadKeyName returns whether name is a known AID key, without submitting
// it, so a front-end can validate user input before calling Key.
func ReadKeyName(name string) bool {
	_, ok := datastream.AIDByName(name)
	return ok
}
