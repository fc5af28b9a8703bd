// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package datastream

// SCS control codes this module recognises when routing a TN3270E
// DataTypeSCS record to a printer sink.
const (
	scsSOH byte = 0x01 // Start of Header: next byte is a printer status code
	scsENQ byte = 0x05
	scsACK byte = 0x06
	scsBEL byte = 0x07
	scsBS  byte = 0x08
	scsHT  byte = 0x09
	scsLF  byte = 0x0A
	scsVT  byte = 0x0B
	scsFF  byte = 0x0C
	scsCR  byte = 0x0D
	scsSO  byte = 0x0E // Shift Out: enter the GE character set
	scsSI  byte = 0x0F // Shift In: return to the base character set
	scsNL  byte = 0x15
)

// PrinterSink receives the output of an SCS data stream after control codes
// have been interpreted: WriteText for printable runs, and the remaining
// methods for the control codes that have no text representation.
type PrinterSink interface {
	WriteText(s string)
	CarriageReturn()
	LineFeed()
	NewLine()
	FormFeed()
	Tab()
	Backspace()
	VerticalTab()
}

// ParseSCS interprets an SCS (SNA Character String) record, the printer
// data stream carried in a TN3270E DataTypeSCS message, routing control
// codes and decoded text to sink. A nil sink makes this a no-op
// scan, useful when the session has no printer session bound. SOH
// introduces an inline status byte delivered through OnPrinterStatus rather
// than to the sink, the same path a Printer Status structured field uses.
func (p *Parser) ParseSCS(data []byte, sink PrinterSink) {
	cp := p.codepage()
	shiftedOut := false
	var text []byte
	flush := func() {
		if sink == nil || len(text) == 0 {
			text = text[:0]
			return
		}
		if shiftedOut {
			runes := make([]rune, len(text))
			for i, b := range text {
				runes[i] = cp.DecodeGEByte(b)
			}
			sink.WriteText(string(runes))
		} else {
			sink.WriteText(cp.Decode(text))
		}
		text = text[:0]
	}
	for i := 0; i < len(data); i++ {
		b := data[i]
		switch b {
		case scsSOH:
			flush()
			if i+1 < len(data) {
				i++
				if p.OnPrinterStatus != nil {
					p.OnPrinterStatus(data[i])
				}
			} else {
				p.logger().Warn("SOH with no following status byte")
			}
		case scsENQ, scsACK, scsBEL:
			flush()
			p.logger().Debugf("SCS control byte 0x%02X accepted", b)
		case scsSO:
			flush()
			shiftedOut = true
		case scsSI:
			flush()
			shiftedOut = false
		case scsCR:
			flush()
			if sink != nil {
				sink.CarriageReturn()
			}
		case scsLF:
			flush()
			if sink != nil {
				sink.LineFeed()
			}
		case scsNL:
			flush()
			if sink != nil {
				sink.NewLine()
			}
		case scsFF:
			flush()
			if sink != nil {
				sink.FormFeed()
			}
		case scsHT:
			flush()
			if sink != nil {
				sink.Tab()
			}
		case scsBS:
			flush()
			if sink != nil {
				sink.Backspace()
			}
		case scsVT:
			flush()
			if sink != nil {
				sink.VerticalTab()
			}
		default:
			text = append(text, b)
		}
	}
	flush()
}
