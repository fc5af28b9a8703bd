// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package tn3270conn

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mrwilson/tn3270e/datastream"
	"github.com/mrwilson/tn3270e/telnet"
)

// discard is the default logger when a Connection is constructed without
// one.
var discard = log.New(io.Discard)

// Transport is the byte pipe a Connection drives. *net.TCPConn and
// *tls.Conn both satisfy it; tests use an in-memory pipe instead.
type Transport interface {
	io.Reader
	io.Writer
	Close() error
}

// Connection owns one 3270 session's lifecycle: Telnet/TN3270E negotiation,
// record framing, the data-stream parser and builder, and the state machine
// recording it all. It serializes sends behind one lock and inbound
// processing behind another, so concurrent senders never interleave partial
// writes and two Feed calls never parse into the buffer at once. Building a
// reply from buffer state takes neither lock.
type Connection struct {
	transport Transport
	Logger    *log.Logger

	Negotiator *telnet.Negotiator
	Parser     *datastream.Parser
	Builder    *datastream.Builder

	FSM *StateMachine
	seq SeqNoGenerator

	sendMu sync.Mutex
	recvMu sync.Mutex

	splitter RecordSplitter
}

// NewConnection wires a Transport, the given parser and builder, and a fresh
// negotiator together, starting in DISCONNECTED.
func NewConnection(transport Transport, parser *datastream.Parser, builder *datastream.Builder) *Connection {
	c := &Connection{
		transport: transport,
		Parser:    parser,
		Builder:   builder,
		FSM:       NewStateMachine(64),
	}
	c.Negotiator = telnet.NewNegotiator(c.rawSend)
	c.Parser.OnBindImage = c.Negotiator.HandleBindImage
	c.Parser.OnPrinterStatus = c.Negotiator.UpdatePrinterStatus
	c.Parser.OnSNAResponse = c.Negotiator.HandleSNAResponse
	c.Parser.OnUnbind = c.onUnbind
	c.Parser.OnQueryReply = c.Negotiator.HandleQueryReplyRequest
	return c
}

// onUnbind ends the session epoch on the negotiator and clears the screen
// buffer, the presentation-space reset an UNBIND implies.
func (c *Connection) onUnbind() {
	c.Negotiator.HandleUnbind()
	c.Parser.Buf.Clear()
}

func (c *Connection) logger() *log.Logger {
	if c.Logger == nil {
		return discard
	}
	return c.Logger
}

// rawSend is the Negotiator's Send callback: Telnet command sequences go
// straight to the wire unframed (they are not 3270-DATA records).
func (c *Connection) rawSend(b []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_, err := c.transport.Write(b)
	return err
}

// Connect moves DISCONNECTED → CONNECTING → NEGOTIATING and kicks off the
// Telnet option offers a connecting client makes. The caller is expected to keep
// pumping Feed with inbound bytes until negotiation settles into CONNECTED.
func (c *Connection) Connect(now int64) error {
	if !c.FSM.Transition(Connecting, now, "connect requested") {
		return fmt.Errorf("tn3270conn: cannot connect from %s", c.FSM.Current())
	}
	if !c.FSM.Transition(Negotiating, now, "starting telnet negotiation") {
		return fmt.Errorf("tn3270conn: cannot enter negotiating from %s", c.FSM.Current())
	}
	return c.Negotiator.Start()
}

// EnterDataMode moves NEGOTIATING → CONNECTED → {ASCII_MODE|TN3270_MODE}
// once the negotiator has settled, choosing the mode from
// Negotiator.ASCIIMode.
func (c *Connection) EnterDataMode(now int64) error {
	if !c.FSM.Transition(Connected, now, "negotiation settled") {
		return fmt.Errorf("tn3270conn: cannot enter connected from %s", c.FSM.Current())
	}
	mode := TN3270Mode
	reason := "tn3270e or classic tn3270 negotiated"
	if c.Negotiator.ASCIIMode {
		mode = ASCIIMode
		reason = "ascii/nvt fallback"
	}
	if !c.FSM.Transition(mode, now, reason) {
		return fmt.Errorf("tn3270conn: cannot enter %s from %s", mode, c.FSM.Current())
	}
	return nil
}

// Feed hands the connection newly-read bytes. While negotiating, it scans
// for embedded IAC command/subnegotiation sequences; once in a data mode it
// splits complete records and runs each through the parser. It returns an
// error when the connection is in a state that accepts no data or when the
// negotiator rejects a command or subnegotiation; record parse errors are
// logged, not returned.
func (c *Connection) Feed(data []byte) error {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	switch c.FSM.Current() {
	case Negotiating, Connecting, Connected:
		return c.feedNegotiation(data)
	case TN3270Mode, ASCIIMode:
		return c.feedData(data)
	default:
		return fmt.Errorf("tn3270conn: cannot accept data in state %s", c.FSM.Current())
	}
}

// feedNegotiation walks inbound bytes looking for IAC command and
// subnegotiation sequences, handing each to the Negotiator. Bytes outside
// any IAC sequence are ignored: a well-behaved peer sends nothing else
// before negotiation settles.
func (c *Connection) feedNegotiation(data []byte) error {
	if c.Negotiator.DetectASCIIMode(data) {
		// The peer is a plain NVT terminal (VT100 escape sequences, no
		// 3270 negotiation); stop waiting for option answers that will
		// never come. EnterDataMode picks ASCII_MODE from the flag.
		c.logger().Info("VT100 escape sequence before negotiation settled; treating peer as NVT")
		return nil
	}
	for i := 0; i < len(data); i++ {
		if data[i] != telnet.IAC || i+1 >= len(data) {
			continue
		}
		cmd := data[i+1]
		switch cmd {
		case telnet.WILL, telnet.WONT, telnet.DO, telnet.DONT:
			if i+2 >= len(data) {
				return nil // command split across reads; wait for more
			}
			opt := telnet.Option(data[i+2])
			if opt == telnet.OptTN3270E {
				c.Negotiator.OnScreenResize = c.onScreenResize
			}
			if err := c.Negotiator.HandleCommand(cmd, opt); err != nil {
				return err
			}
			i += 2
		case telnet.SB:
			end := bytes.Index(data[i:], []byte{telnet.IAC, telnet.SE})
			if end < 0 {
				return nil // subnegotiation split across reads; wait for more
			}
			body := data[i+3 : i+end]
			if err := c.Negotiator.HandleSubnegotiation(body); err != nil {
				return err
			}
			i += end + 1
		}
	}
	return nil
}

func (c *Connection) onScreenResize(rows, cols int) {
	c.Parser.Buf.Resize(rows, cols)
}

// feedData splits complete records out of data and parses each as a
// 3270-DATA (or NVT, in ASCII mode) record.
func (c *Connection) feedData(data []byte) error {
	for _, record := range c.splitter.Feed(data) {
		if c.FSM.Current() == ASCIIMode {
			continue // NVT passthrough: no 3270 data-stream structure to parse
		}
		payload := record
		if c.Negotiator.TN3270ENegotiated {
			_, rest, ok := SplitHeader(true, record)
			if !ok {
				c.logger().Warn("dropped record with truncated TN3270E header")
				continue
			}
			payload = rest
		}
		if err := c.Parser.Parse(payload); err != nil {
			c.logger().Warn("record parse error", "err", err)
		}
	}
	return nil
}

// Send frames payload as one outbound record (prefixing a TN3270E header
// when negotiated) and writes it to the transport under the send lock, so
// two concurrent senders never interleave partial writes.
func (c *Connection) Send(payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	out := FrameOutbound(c.Negotiator.TN3270ENegotiated, datastream.DataType3270, payload, &c.seq)
	_, err := c.transport.Write(out)
	return err
}

// Read blocks until a readable chunk arrives on the transport or timeout
// elapses, then feeds it through Feed. A timeout leaves any bytes already
// read in the splitter's pending buffer for the next call to consume — the
// in-flight read is simply abandoned, not cancelled out from under the
// transport.
func (c *Connection) Read(timeout time.Duration) error {
	type result struct {
		n   int
		err error
	}
	buf := make([]byte, 4096)
	ch := make(chan result, 1)
	go func() {
		n, err := c.transport.Read(buf)
		ch <- result{n, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return r.err
		}
		return c.Feed(buf[:r.n])
	case <-time.After(timeout):
		return errTimeout
	}
}

var errTimeout = fmt.Errorf("tn3270conn: read timed out")

// ErrTimeout reports whether err is the timeout sentinel Read returns.
func ErrTimeout(err error) bool {
	return err == errTimeout
}

// Close moves the connection to CLOSING then DISCONNECTED and closes the
// underlying transport. It is idempotent: closing from DISCONNECTED is a
// no-op, and closing from any other reachable state always succeeds since
// every state in the lifecycle has a path to CLOSING.
func (c *Connection) Close(now int64) error {
	if c.FSM.Current() == Disconnected {
		return nil
	}
	if !c.FSM.Transition(Closing, now, "close requested") {
		return fmt.Errorf("tn3270conn: cannot close from %s", c.FSM.Current())
	}
	err := c.transport.Close()
	c.FSM.Transition(Disconnected, now, "transport closed")
	return err
}

// Fail records a protocol or I/O error by moving into ERROR, from which the
// caller may attempt RECOVERING (a bounded reconnect) or give up via Close.
func (c *Connection) Fail(now int64, reason string) {
	c.FSM.Transition(Error, now, reason)
}
