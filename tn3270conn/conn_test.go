// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package tn3270conn

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrwilson/tn3270e/datastream"
	"github.com/mrwilson/tn3270e/ebcdic"
	"github.com/mrwilson/tn3270e/screen"
	"github.com/mrwilson/tn3270e/telnet"
)

// pipeTransport is an in-memory Transport: writes to one side arrive as
// reads on the other, so a test can play both ends of a negotiation without
// a real socket.
type pipeTransport struct {
	mu     sync.Mutex
	inbox  bytes.Buffer
	closed bool
	sent   [][]byte
}

func (p *pipeTransport) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := append([]byte(nil), b...)
	p.sent = append(p.sent, cp)
	return len(b), nil
}

func (p *pipeTransport) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inbox.Read(buf)
}

func (p *pipeTransport) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func newTestConnection() (*Connection, *pipeTransport) {
	cp := ebcdic.Codepage037()
	buf := screen.NewScreenBuffer(24, 80, cp)
	parser := &datastream.Parser{Buf: buf, Codepage: cp}
	builder := &datastream.Builder{Buf: buf}
	tr := &pipeTransport{}
	return NewConnection(tr, parser, builder), tr
}

func TestConnectMovesToNegotiating(t *testing.T) {
	c, tr := newTestConnection()
	require.NoError(t, c.Connect(1))
	assert.Equal(t, Negotiating, c.FSM.Current())
	assert.NotEmpty(t, tr.sent, "Start() should have written telnet offers")
}

// Classic TN3270 negotiation (EOR agreed, TN3270E refused) settles into
// TN3270_MODE, not ASCII_MODE.
func TestFeedNegotiationSettlesIntoTN3270Mode(t *testing.T) {
	c, _ := newTestConnection()
	require.NoError(t, c.Connect(1))

	peer := []byte{telnet.IAC, telnet.DO, byte(telnet.OptEOR), telnet.IAC, telnet.DONT, byte(telnet.OptTN3270E)}
	require.NoError(t, c.Feed(peer))
	require.NoError(t, c.EnterDataMode(2))
	assert.Equal(t, TN3270Mode, c.FSM.Current())
}

func TestFeedDataParsesRecordIntoBuffer(t *testing.T) {
	c, _ := newTestConnection()
	require.NoError(t, c.Connect(1))
	peer := []byte{telnet.IAC, telnet.DO, byte(telnet.OptEOR), telnet.IAC, telnet.DONT, byte(telnet.OptTN3270E)}
	require.NoError(t, c.Feed(peer))
	require.NoError(t, c.EnterDataMode(2))

	// EW (0xF5), WCC 0xC3, SBA to 0, write "A" (0xC1), IAC EOR.
	record := []byte{0xF5, 0xC3, 0x11, 0x40, 0x40, 0xC1, telnet.IAC, telnet.EOR}
	require.NoError(t, c.Feed(record))
	assert.Equal(t, byte(0xC1), c.Parser.Buf.Cells[0].EBCDIC)
}

func TestSendFramesRecordWithoutHeaderBeforeTN3270ENegotiated(t *testing.T) {
	c, tr := newTestConnection()
	require.NoError(t, c.Send([]byte{0x7D}))
	last := tr.sent[len(tr.sent)-1]
	assert.Equal(t, []byte{0xFF, 0xEF}, last[len(last)-2:], "record ends with IAC EOR")
	assert.Equal(t, []byte{0x7D}, last[:len(last)-2], "no TN3270E header before negotiation")
}

func TestCloseIsIdempotentAndReachableFromConnecting(t *testing.T) {
	c, tr := newTestConnection()
	require.NoError(t, c.Connect(1))
	require.NoError(t, c.Close(2))
	assert.Equal(t, Disconnected, c.FSM.Current())
	assert.True(t, tr.closed)
	assert.NoError(t, c.Close(3), "closing an already-disconnected connection is a no-op")
}

// A TN3270E DEVICE_TYPE IS and FUNCTIONS IS subnegotiation, fed as the
// host would send them, resolves the negotiated device type/functions and
// resizes the buffer (43x80 for IBM-3279-4-E).
func TestFeedNegotiationParsesDeviceTypeAndFunctionsSubnegotiation(t *testing.T) {
	c, _ := newTestConnection()
	require.NoError(t, c.Connect(1))

	peer := []byte{telnet.IAC, telnet.WILL, byte(telnet.OptEOR), telnet.IAC, telnet.DO, byte(telnet.OptTN3270E)}
	require.NoError(t, c.Feed(peer))

	devType := append([]byte{telnet.IAC, telnet.SB, byte(telnet.OptTN3270E), 0x02, 0x04}, []byte("IBM-3279-4-E")...)
	devType = append(devType, telnet.IAC, telnet.SE)
	require.NoError(t, c.Feed(devType))
	functions := []byte{telnet.IAC, telnet.SB, byte(telnet.OptTN3270E), 0x03, 0x04, 0x00, 0x01, 0x02, 0x04, telnet.IAC, telnet.SE}
	require.NoError(t, c.Feed(functions))

	require.True(t, c.Negotiator.TN3270ENegotiated, "TN3270E negotiated after FUNCTIONS IS")
	assert.Equal(t, "IBM-3279-4-E", c.Negotiator.DeviceType)
	assert.Equal(t, uint32(0x17), c.Negotiator.Functions)
	assert.Equal(t, 43, c.Parser.Buf.Rows)
	assert.Equal(t, 80, c.Parser.Buf.Cols)
}

// enterClassicDataMode negotiates classic TN3270 (EOR agreed, TN3270E
// refused) and moves the connection into TN3270_MODE.
func enterClassicDataMode(t *testing.T, c *Connection) {
	t.Helper()
	require.NoError(t, c.Connect(1))
	peer := []byte{telnet.IAC, telnet.DO, byte(telnet.OptEOR), telnet.IAC, telnet.DONT, byte(telnet.OptTN3270E)}
	require.NoError(t, c.Feed(peer))
	require.NoError(t, c.EnterDataMode(2))
}

// An SNA response structured field arriving over the wire lands on the
// negotiator, not just on whoever set the parser callback by hand.
func TestSNAResponseStructuredFieldReachesNegotiator(t *testing.T) {
	c, _ := newTestConnection()
	enterClassicDataMode(t, c)

	sf := datastream.StructuredField(datastream.SFIDSNAResponse, []byte{0x02, 0x80, 0x10, 0x01})
	require.NoError(t, c.Feed(append(sf, telnet.IAC, telnet.EOR)))

	require.NotNil(t, c.Negotiator.LastSNAResponse)
	assert.False(t, c.Negotiator.LastSNAResponse.IsPositive)
	assert.Equal(t, uint16(0x1001), c.Negotiator.LastSNAResponse.SenseCode)
}

// An UNBIND structured field ends the TN3270E epoch and clears the
// screen.
func TestUnbindEndsTN3270EEpochAndClearsScreen(t *testing.T) {
	c, _ := newTestConnection()
	require.NoError(t, c.Connect(1))
	peer := []byte{telnet.IAC, telnet.WILL, byte(telnet.OptEOR), telnet.IAC, telnet.DO, byte(telnet.OptTN3270E)}
	require.NoError(t, c.Feed(peer))
	functions := []byte{telnet.IAC, telnet.SB, byte(telnet.OptTN3270E), 0x03, 0x04, 0x00, telnet.IAC, telnet.SE}
	require.NoError(t, c.Feed(functions))
	require.True(t, c.Negotiator.TN3270ENegotiated)
	require.NoError(t, c.EnterDataMode(2))

	// A TN3270E record: 5-byte header, then WSF carrying UNBIND.
	record := append([]byte{0x00, 0x00, 0x00, 0x00, 0x01},
		datastream.StructuredField(datastream.SFIDUnbind, nil)...)
	c.Parser.Buf.WriteChar(0xC1, 0)
	require.NoError(t, c.Feed(append(record, telnet.IAC, telnet.EOR)))

	assert.False(t, c.Negotiator.TN3270ENegotiated, "UNBIND ends the TN3270E epoch")
	assert.Equal(t, byte(0x40), c.Parser.Buf.Cells[0].EBCDIC, "screen cleared on UNBIND")
}

// A host query request structured field is routed to the negotiator's
// OnQueryReplyRequest callback, one invocation per requested ID.
func TestQueryReplyRequestRoutedToNegotiatorCallback(t *testing.T) {
	c, _ := newTestConnection()
	enterClassicDataMode(t, c)

	var ids []byte
	c.Negotiator.OnQueryReplyRequest = func(id byte) { ids = append(ids, id) }
	sf := datastream.StructuredField(datastream.SFIDQueryReply, []byte{0x81, 0x86})
	require.NoError(t, c.Feed(append(sf, telnet.IAC, telnet.EOR)))
	assert.Equal(t, []byte{0x81, 0x86}, ids)
}

// A peer that answers with VT100 escape sequences instead of Telnet
// negotiation is detected as a plain NVT terminal and the connection
// settles into ASCII_MODE.
func TestFeedNegotiationDetectsNVTPeer(t *testing.T) {
	c, _ := newTestConnection()
	require.NoError(t, c.Connect(1))

	require.NoError(t, c.Feed([]byte{0x1B, '[', '2', 'J', 'l', 'o', 'g', 'i', 'n', ':'}))
	assert.True(t, c.Negotiator.ASCIIMode)
	require.NoError(t, c.EnterDataMode(2))
	assert.Equal(t, ASCIIMode, c.FSM.Current())
}

func TestFailThenRecoverThenClose(t *testing.T) {
	c, _ := newTestConnection()
	require.NoError(t, c.Connect(1))
	c.Fail(2, "simulated I/O error")
	assert.Equal(t, Error, c.FSM.Current())
	assert.True(t, c.FSM.Transition(Recovering, 3, "retrying"), "ERROR -> RECOVERING must be a valid transition")
	require.NoError(t, c.Close(4))
}
