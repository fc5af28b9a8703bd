// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package telnet

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mrwilson/tn3270e/datastream"
)

// NegotiationError reports a failed or abandoned negotiation:
// REJECT exhaustion, an attempt/time budget running out, or a
// subnegotiation left open past its deadline.
type NegotiationError struct {
	Reason string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("telnet: negotiation error: %s", e.Reason)
}

// discard is the default logger when a Negotiator is constructed without
// one.
var discard = log.New(io.Discard)

// deviceTypeSizes is the device-type → screen-size table.
var deviceTypeSizes = map[string][2]int{
	"IBM-3278-2": {24, 80}, "IBM-3279-2": {24, 80},
	"IBM-3278-3": {32, 80}, "IBM-3279-3": {32, 80},
	"IBM-3278-4": {43, 80}, "IBM-3279-4": {43, 80},
	"IBM-3278-5": {27, 132}, "IBM-3279-5": {27, 132},
	"IBM-DYNAMIC": {24, 80},
}

// defaultDeviceTypes is the fallback list a client works through on REJECT,
// most to least capable, ending in the widely-supported 3278-2.
var defaultDeviceTypes = []string{
	"IBM-3279-4-E", "IBM-3278-4-E", "IBM-3279-2-E", "IBM-3278-2-E",
}

// Negotiator drives Telnet option negotiation and TN3270E subnegotiation
// for one connection. It holds no socket of its own: Send is
// the callback the connection layer wires to the wire.
type Negotiator struct {
	Send   func(b []byte) error
	Logger *log.Logger

	MaxAttempts int           // device-type REQUEST budget; default 3
	Timeout     time.Duration // subnegotiation deadline; default 10s

	options map[Option]State

	TN3270ENegotiated bool
	DeviceType        string
	LUName            string
	Functions         uint32
	BindImage         *datastream.BindImage
	IsPrinter         bool
	ASCIIMode         bool

	// LastSNAResponse retains the most recent SNA response the host
	// delivered (via structured field or SNA-RESPONSE record), for the
	// session façade to inspect after a request.
	LastSNAResponse *datastream.SNAResponse

	// OnScreenResize is invoked when negotiation or a BIND-IMAGE determines
	// (or changes) the screen geometry. A nil callback discards it.
	OnScreenResize func(rows, cols int)
	// OnQueryReplyRequest fires when the host requests a Query Reply the
	// session should build and send back.
	OnQueryReplyRequest func(queryID byte)

	deviceTypeAttempts int
	candidateTypes     []string

	subPending     bool
	subPendingOpt  Option
	subPendingDead time.Time
}

// NewNegotiator constructs a Negotiator with the default attempt budget,
// timeout, and device-type candidate list.
func NewNegotiator(send func(b []byte) error) *Negotiator {
	return &Negotiator{
		Send:           send,
		MaxAttempts:    3,
		Timeout:        10 * time.Second,
		options:        make(map[Option]State),
		DeviceType:     defaultDeviceTypes[0],
		candidateTypes: append([]string(nil), defaultDeviceTypes...),
	}
}

func (n *Negotiator) logger() *log.Logger {
	if n.Logger == nil {
		return discard
	}
	return n.Logger
}

func (n *Negotiator) State(o Option) State {
	return n.options[o]
}

func (n *Negotiator) send(b []byte) error {
	if n.Send == nil {
		return nil
	}
	return n.Send(b)
}

// Start offers the options a TN3270 client wants on connect: WILL EOR,
// WILL BINARY, DO TN3270E.
func (n *Negotiator) Start() error {
	for _, o := range []Option{OptEOR, OptBinary} {
		n.options[o] = StateWantYes
		if err := n.send([]byte{IAC, WILL, byte(o)}); err != nil {
			return err
		}
	}
	n.options[OptTN3270E] = StateWantYes
	return n.send([]byte{IAC, DO, byte(OptTN3270E)})
}

// HandleCommand processes one incoming IAC command (WILL/WONT/DO/DONT) for
// option o, implementing the Q method: a reply is sent only when the peer's
// answer was not itself solicited by an outstanding request, which is what
// keeps two well-behaved negotiators from looping forever.
func (n *Negotiator) HandleCommand(cmd byte, o Option) error {
	switch cmd {
	case WILL:
		return n.handlePeerWill(o)
	case WONT:
		return n.handlePeerWont(o)
	case DO:
		return n.handlePeerDo(o)
	case DONT:
		return n.handlePeerDont(o)
	}
	return nil
}

func (n *Negotiator) handlePeerWill(o Option) error {
	switch n.options[o] {
	case StateWantYes:
		n.options[o] = StateYes
		n.afterOptionResolved(o, true)
		return nil
	case StateYes:
		return nil // already agreed; nothing to do
	default:
		n.options[o] = StateYes
		n.afterOptionResolved(o, true)
		return n.send([]byte{IAC, DO, byte(o)})
	}
}

func (n *Negotiator) handlePeerWont(o Option) error {
	wasWantYes := n.options[o] == StateWantYes
	n.options[o] = StateWont
	n.afterOptionResolved(o, false)
	if !wasWantYes {
		return n.send([]byte{IAC, DONT, byte(o)})
	}
	return nil
}

func (n *Negotiator) handlePeerDo(o Option) error {
	switch n.options[o] {
	case StateWantYes:
		n.options[o] = StateYes
		n.afterOptionResolved(o, true)
		return nil
	case StateYes:
		return nil
	default:
		n.options[o] = StateYes
		n.afterOptionResolved(o, true)
		return n.send([]byte{IAC, WILL, byte(o)})
	}
}

func (n *Negotiator) handlePeerDont(o Option) error {
	wasWantYes := n.options[o] == StateWantYes
	n.options[o] = StateWont
	n.afterOptionResolved(o, false)
	if !wasWantYes {
		return n.send([]byte{IAC, WONT, byte(o)})
	}
	return nil
}

// afterOptionResolved applies the mode-fallback discipline once an option's
// final state is known: refusing TN3270E falls back to classic TN3270 (if
// EOR survived) or ASCII/NVT mode (if it didn't).
func (n *Negotiator) afterOptionResolved(o Option, agreed bool) {
	if o != OptTN3270E || agreed {
		return
	}
	if n.options[OptEOR] == StateWont {
		n.ASCIIMode = true
		n.logger().Warn("TN3270E and EOR both refused, falling back to ASCII/NVT mode")
	} else {
		n.logger().Info("TN3270E refused, falling back to classic TN3270")
	}
}

// DetectASCIIMode applies the NVT-detection heuristic: a VT100-style CSI
// escape sequence in the first payload, when no TN3270 negotiation has
// happened, means the peer is a plain NVT terminal. It sets ASCIIMode and
// returns the updated value.
func (n *Negotiator) DetectASCIIMode(firstPayload []byte) bool {
	if n.TN3270ENegotiated {
		return n.ASCIIMode
	}
	if bytes.Contains(firstPayload, []byte{0x1B, '['}) {
		n.ASCIIMode = true
	}
	return n.ASCIIMode
}

// StartSubnegotiation marks option o as having an in-flight SB…SE exchange,
// due by now plus Timeout. TimeoutPendingSubnegotiation reports and clears
// it. The tn3270conn connection layer calls neither: an SB it sees with no
// IAC SE in the same read is dropped without starting a deadline.
func (n *Negotiator) StartSubnegotiation(o Option, now time.Time) {
	n.subPending = true
	n.subPendingOpt = o
	n.subPendingDead = now.Add(n.Timeout)
}

// SubnegotiationDeadline reports when the pending subnegotiation, if any,
// times out.
func (n *Negotiator) SubnegotiationDeadline() (time.Time, bool) {
	return n.subPendingDead, n.subPending
}

// HandleSubnegotiation processes a completed SB TN3270E … SE body (the
// bytes from the subcommand byte up to, not including, the terminating
// IAC SE) and clears
// any pending-timeout tracking for it.
func (n *Negotiator) HandleSubnegotiation(body []byte) error {
	n.subPending = false
	if len(body) == 0 {
		return &NegotiationError{Reason: "empty TN3270E subnegotiation"}
	}
	switch body[0] {
	case tnDeviceType:
		return n.handleDeviceType(body[1:])
	case tnFunctions:
		return n.handleFunctions(body[1:])
	}
	n.logger().Warnf("unrecognised TN3270E subcommand 0x%02X", body[0])
	return nil
}

// TimeoutPendingSubnegotiation handles a pending SB that has passed its
// deadline with no terminating SE (B5): it reports NEGOTIATION_ERROR and clears the pending state so subsequent
// records are not blocked by it.
func (n *Negotiator) TimeoutPendingSubnegotiation() error {
	if !n.subPending {
		return nil
	}
	opt := n.subPendingOpt
	n.subPending = false
	return &NegotiationError{Reason: fmt.Sprintf("subnegotiation for %s timed out with no terminating SE", opt)}
}

func (n *Negotiator) handleDeviceType(data []byte) error {
	if len(data) == 0 {
		return &NegotiationError{Reason: "empty DEVICE_TYPE subnegotiation"}
	}
	switch data[0] {
	case tnIs:
		rest := data[1:]
		name := rest
		lu := ""
		if i := bytes.IndexByte(rest, 0x01); i >= 0 {
			name = rest[:i]
			lu = string(rest[i+1:])
		}
		n.DeviceType = string(name)
		n.LUName = lu
		n.IsPrinter = IsPrinterDeviceType(n.DeviceType)
		if rows, cols, ok := ScreenSizeFor(n.DeviceType); ok && n.OnScreenResize != nil {
			n.OnScreenResize(rows, cols)
		}
		return nil
	case tnReject:
		n.deviceTypeAttempts++
		if n.deviceTypeAttempts >= n.MaxAttempts || len(n.candidateTypes) == 0 {
			return &NegotiationError{Reason: "device type negotiation exhausted its attempt budget"}
		}
		n.candidateTypes = n.candidateTypes[1:]
		if len(n.candidateTypes) == 0 {
			return &NegotiationError{Reason: "no remaining device type candidates after REJECT"}
		}
		return n.requestDeviceType(n.candidateTypes[0])
	}
	n.logger().Warnf("unrecognised DEVICE_TYPE subcommand 0x%02X", data[0])
	return nil
}

func (n *Negotiator) requestDeviceType(name string) error {
	body := append([]byte{IAC, SB, byte(OptTN3270E), tnDeviceType, tnRequest}, []byte(name)...)
	body = append(body, IAC, SE)
	return n.send(body)
}

// RequestDeviceType sends the client's initial TN3270E DEVICE_TYPE REQUEST,
// defaulting to the preferred name ("IBM-3279-4-E") unless a
// candidate list has already been set.
func (n *Negotiator) RequestDeviceType() error {
	return n.requestDeviceType(n.candidateTypes[0])
}

// SetPreferredDeviceType moves name to the front of the REQUEST/REJECT
// fallback list, so the next RequestDeviceType call (and any
// REJECT-driven retry) tries it first. A caller-supplied name that already
// appears further down the list is promoted rather than duplicated.
func (n *Negotiator) SetPreferredDeviceType(name string) {
	n.DeviceType = name
	filtered := []string{name}
	for _, c := range n.candidateTypes {
		if c != name {
			filtered = append(filtered, c)
		}
	}
	n.candidateTypes = filtered
}

func (n *Negotiator) handleFunctions(data []byte) error {
	if len(data) == 0 {
		return &NegotiationError{Reason: "empty FUNCTIONS subnegotiation"}
	}
	switch data[0] {
	case tnIs:
		var bitmap uint32
		for _, b := range data[1:] {
			bitmap |= 1 << b
		}
		n.Functions = bitmap
		n.TN3270ENegotiated = true
		return nil
	case tnRequest:
		// The host is proposing a function set; echo it back as IS,
		// accepting whatever the host asked for.
		out := append([]byte{IAC, SB, byte(OptTN3270E), tnFunctions, tnIs}, data[1:]...)
		out = append(out, IAC, SE)
		return n.send(out)
	}
	n.logger().Warnf("unrecognised FUNCTIONS subcommand 0x%02X", data[0])
	return nil
}

// RequestFunctions sends the client's TN3270E FUNCTIONS REQUEST with the
// given bitmap.
func (n *Negotiator) RequestFunctions(bitmap uint32) error {
	var bits []byte
	for i := byte(0); i < 32; i++ {
		if bitmap&(1<<i) != 0 {
			bits = append(bits, i)
		}
	}
	out := append([]byte{IAC, SB, byte(OptTN3270E), tnFunctions, tnRequest}, bits...)
	out = append(out, IAC, SE)
	return n.send(out)
}

// HandleBindImage applies an inbound BIND-IMAGE structured field:
// it records the geometry and, whenever it carries nonzero rows and columns,
// triggers OnScreenResize with them.
func (n *Negotiator) HandleBindImage(bi datastream.BindImage) {
	n.BindImage = &bi
	if bi.Rows > 0 && bi.Cols > 0 && n.OnScreenResize != nil {
		n.OnScreenResize(bi.Rows, bi.Cols)
	}
}

// UpdatePrinterStatus records an inline printer status code delivered via
// an SCS SOH sequence or a Printer Status structured field.
// This module only logs it; a richer session may surface it to the user.
func (n *Negotiator) UpdatePrinterStatus(code byte) {
	n.logger().Info("printer status", "code", fmt.Sprintf("0x%02X", code))
}

// HandleSNAResponse records an inbound SNA response. A negative response
// (exception bit or nonzero sense code) is logged at WARN with its sense
// code; positive responses are only retained.
func (n *Negotiator) HandleSNAResponse(r datastream.SNAResponse) {
	n.LastSNAResponse = &r
	if !r.IsPositive {
		n.logger().Warn("negative SNA response", "sense", fmt.Sprintf("0x%04X", r.SenseCode))
	}
}

// HandleUnbind ends the current session epoch: the TN3270E negotiation
// outcome and any BIND-IMAGE geometry are discarded, so a following BIND
// starts from a clean slate.
func (n *Negotiator) HandleUnbind() {
	n.TN3270ENegotiated = false
	n.BindImage = nil
	n.logger().Info("UNBIND received, session epoch ended")
}

// HandleQueryReplyRequest routes a host Read Partition Query request for
// the given query-reply types to OnQueryReplyRequest, one callback per
// requested ID.
func (n *Negotiator) HandleQueryReplyRequest(data []byte) {
	if n.OnQueryReplyRequest == nil {
		return
	}
	for _, id := range data {
		n.OnQueryReplyRequest(id)
	}
}

// ScreenSizeFor looks up the device-type → screen-size table,
// tolerating the "-E" (TN3270E-capable) suffix some hosts append.
func ScreenSizeFor(deviceType string) (rows, cols int, ok bool) {
	name := strings.TrimSuffix(deviceType, "-E")
	size, found := deviceTypeSizes[name]
	if !found {
		return 0, 0, false
	}
	return size[0], size[1], true
}

// IsPrinterDeviceType reports whether a device-type name designates a
// printer session: its name contains "PRINTER" or "3287", in any case.
func IsPrinterDeviceType(deviceType string) bool {
	upper := strings.ToUpper(deviceType)
	return strings.Contains(upper, "PRINTER") || strings.Contains(upper, "3287")
}
