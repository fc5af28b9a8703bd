// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package datastream

import (
	"io"

	"github.com/charmbracelet/log"

	"github.com/mrwilson/tn3270e/ebcdic"
	"github.com/mrwilson/tn3270e/screen"
)

// discard is the default logger when a Parser is constructed without one.
var discard = log.New(io.Discard)

// Parser decodes outbound 3270 data-stream records into screen buffer
// mutations. It holds no network state of its own; the connection
// layer feeds it whole records already stripped of TN3270E headers and
// Telnet IAC escaping.
type Parser struct {
	Buf      *screen.ScreenBuffer
	Codepage ebcdic.Codepage
	Logger   *log.Logger

	// OnBindImage, OnUnbind, OnSNAResponse, and OnPrinterStatus deliver
	// structured fields the parser recognises but has no buffer mutation
	// for; a nil callback silently discards the field. The connection
	// layer wires these to the Telnet negotiator and session façade.
	OnBindImage     func(BindImage)
	OnUnbind        func()
	OnSNAResponse   func(SNAResponse)
	OnPrinterStatus func(code byte)
	OnQueryReply    func(data []byte)
	OnEraseReset    func(alternate bool)
}

func (p *Parser) logger() *log.Logger {
	if p.Logger == nil {
		return discard
	}
	return p.Logger
}

func (p *Parser) codepage() ebcdic.Codepage {
	if p.Codepage == nil {
		return ebcdic.Codepage037()
	}
	return p.Codepage
}

// Parse decodes one 3270-DATA record, dispatching on its command byte.
// Read-family commands (RB/RM/RMA) carry no payload to interpret here; the
// session façade builds their responses directly from the current buffer
// state via the Builder. A returned *ParseError means a Write/EW/EWA record
// contained an incomplete order: the buffer has already been rolled back
// to its state before this call by the time the error reaches the caller.
// Whether to propagate that error further, or simply log and continue, is
// a decision for the caller; Parse itself always performs the rollback.
func (p *Parser) Parse(record []byte) error {
	if len(record) == 0 {
		return nil
	}
	cmd := Command(record[0])
	switch cmd {
	case CmdWrite, CmdEraseWrite, CmdEraseWriteAlternate:
		return p.parseWrite(cmd, record[1:])
	case CmdWriteStructuredField:
		return p.parseWSF(record[1:])
	case CmdEraseAllUnprotected:
		p.Buf.EraseAllUnprotected()
		return nil
	case CmdReadBuffer, CmdReadModified, CmdReadModifiedAll:
		// Read-family commands are requests; they produce no mutation.
		return nil
	default:
		p.logger().Warnf("unrecognised command byte 0x%02X, ignoring", record[0])
		return nil
	}
}

func (p *Parser) parseWrite(cmd Command, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	snap := p.Buf.Snap()

	if cmd == CmdEraseWrite || cmd == CmdEraseWriteAlternate {
		p.Buf.Clear()
	}

	wcc := DecodeWCC(payload[0])
	if err := p.processOrders(payload, 1); err != nil {
		p.Buf.Restore(snap)
		return err
	}

	if wcc.ResetMDT {
		p.Buf.ResetMDT()
	}
	if wcc.KeyboardRestore {
		p.Buf.SetKeyboardLock(false)
		p.Buf.AIDPending = 0
	}
	if wcc.SoundAlarm {
		p.Buf.SoundAlarm()
	}
	return nil
}

func (p *Parser) critical(offset int, reason string) error {
	return &ParseError{Reason: reason, Offset: offset}
}

// processOrders walks payload[start:], interpreting order bytes and writing
// literal graphic characters. An order left without enough trailing bytes
// to satisfy its operands is a critical failure that aborts and rolls back
// the whole write; an order byte the parser doesn't recognise is merely
// logged and skipped, since every defined order in this module's scope is
// below 0x40 and any byte at or above 0x40 is unambiguously a graphic
// character rather than an order.
func (p *Parser) processOrders(payload []byte, start int) error {
	pos := start
	for pos < len(payload) {
		b := payload[pos]
		switch {
		case b == byte(OrderSBA):
			if pos+2 >= len(payload) {
				return p.critical(pos, "incomplete SBA order")
			}
			addr := screen.DecodeAddr(payload[pos+1], payload[pos+2])
			p.Buf.SetPositionAddr(addr)
			pos += 3

		case b == byte(OrderSF):
			if pos+1 >= len(payload) {
				return p.critical(pos, "incomplete SF order")
			}
			p.Buf.StartField(payload[pos+1])
			pos += 2

		case b == byte(OrderSFE):
			if pos+1 >= len(payload) {
				return p.critical(pos, "incomplete SFE order")
			}
			count := int(payload[pos+1])
			need := pos + 2 + count*2
			if need > len(payload) {
				return p.critical(pos, "incomplete SFE order")
			}
			var basic byte
			var ext screen.ExtendedAttrs
			for i := 0; i < count; i++ {
				typ := payload[pos+2+i*2]
				val := payload[pos+2+i*2+1]
				applyAttrPair(typ, val, &basic, &ext)
			}
			p.Buf.StartFieldExtended(basic, ext)
			pos = need

		case b == byte(OrderSA):
			if pos+2 >= len(payload) {
				return p.critical(pos, "incomplete SA order")
			}
			// SA sets a resting extended attribute at the current cursor
			// position's cell; subsequent writes carry it forward until
			// the next SA or field boundary. This module tracks SA only
			// as applied to the field covering the cursor, which is
			// sufficient for the attribute types this parser recognises.
			if f, ok := p.Buf.FieldAt(p.fieldStartAt(p.Buf.Cursor)); ok {
				var basic byte
				applyAttrPair(payload[pos+1], payload[pos+2], &basic, &f.Extended)
			}
			pos += 3

		case b == byte(OrderIC):
			// The cursor is already positioned by a preceding SBA (or left
			// where it was); IC carries no operands of its own.
			pos++

		case b == byte(OrderPT):
			p.Buf.ProgramTab()
			pos++

		case b == byte(OrderRA):
			if pos+3 >= len(payload) {
				return p.critical(pos, "incomplete RA order")
			}
			stop := screen.DecodeAddr(payload[pos+1], payload[pos+2])
			fill := payload[pos+3]
			p.repeatToAddress(stop, fill)
			pos += 4

		case b == byte(OrderEUA):
			if pos+2 >= len(payload) {
				return p.critical(pos, "incomplete EUA order")
			}
			stop := screen.DecodeAddr(payload[pos+1], payload[pos+2])
			p.eraseUnprotectedToAddress(stop)
			pos += 3

		case b == byte(OrderGE):
			if pos+1 >= len(payload) {
				return p.critical(pos, "incomplete GE order")
			}
			gb := payload[pos+1]
			if p.codepage().GEMapped(gb) {
				writePos := p.Buf.Cursor
				p.Buf.WriteChar(gb)
				p.Buf.Cells[writePos].Extended.Charset = screen.CharsetGE
			}
			// An unmapped graphic-escape byte is consumed without writing
			// a cell; see the design note on GE in the project docs.
			pos += 2

		case b == byte(OrderMF):
			if pos+1 >= len(payload) {
				return p.critical(pos, "incomplete MF order")
			}
			count := int(payload[pos+1])
			need := pos + 2 + count*2
			if need > len(payload) {
				return p.critical(pos, "incomplete MF order")
			}
			if f, ok := p.Buf.FieldAt(p.Buf.Cursor); ok {
				var basic byte
				for i := 0; i < count; i++ {
					typ := payload[pos+2+i*2]
					val := payload[pos+2+i*2+1]
					applyAttrPair(typ, val, &basic, &f.Extended)
				}
			} else {
				p.logger().Warnf("MF at address %d with no field start there, ignoring", p.Buf.Cursor)
			}
			// MF on a buffer address that is not a field start is a
			// logged no-op: this module does not synthesize a field to
			// satisfy a modify request that names no existing one.
			pos = need

		case b < 0x40:
			p.logger().Warnf("unrecognised order byte 0x%02X, skipping", b)
			pos++

		default:
			writePos := p.Buf.Cursor
			p.Buf.WriteChar(b)
			p.Buf.Cells[writePos].Extended.Charset = screen.CharsetDefault
			pos++
		}
	}
	return nil
}

// fieldStartAt returns the start address of the field covering addr, or
// addr itself if no field covers it (a degenerate buffer with no fields).
func (p *Parser) fieldStartAt(addr int) int {
	if f := p.coveringField(addr); f != nil {
		return f.Start
	}
	return addr
}

func (p *Parser) coveringField(addr int) *screen.Field {
	fields := p.Buf.Fields()
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i].Start <= addr {
			return fields[i]
		}
	}
	if len(fields) > 0 {
		return fields[len(fields)-1]
	}
	return nil
}

// repeatToAddress implements RA: fill cells from the cursor up to (not
// including) stop with fill, wrapping, then leave the cursor at stop.
func (p *Parser) repeatToAddress(stop int, fill byte) {
	pos := p.Buf.Cursor
	size := p.Buf.Rows * p.Buf.Cols
	for pos != stop {
		p.Buf.WriteChar(fill, pos)
		pos = (pos + 1) % size
	}
	p.Buf.SetPositionAddr(stop)
}

// eraseUnprotectedToAddress implements EUA: overwrite unprotected cells
// from the cursor up to (not including) stop with EBCDIC space, wrapping,
// leaving protected cells untouched.
func (p *Parser) eraseUnprotectedToAddress(stop int) {
	pos := p.Buf.Cursor
	size := p.Buf.Rows * p.Buf.Cols
	for pos != stop {
		if f := p.coveringField(pos); f == nil || f.IsInput() {
			p.Buf.WriteChar(0x40, pos)
		}
		pos = (pos + 1) % size
	}
	p.Buf.SetPositionAddr(stop)
}

// applyAttrPair applies one SA/SFE/MF (type, value) pair to either the
// basic attribute byte being accumulated or an extended attribute plane.
func applyAttrPair(typ, val byte, basic *byte, ext *screen.ExtendedAttrs) {
	switch typ {
	case AttrTypeBasic:
		*basic = val
	case AttrTypeColor:
		ext.Color = screen.Color(val)
	case AttrTypeHighlight:
		ext.Highlight = screen.Highlight(val)
	case AttrTypeCharset:
		ext.Charset = screen.Charset(val)
	case AttrTypeValidation:
		ext.Validation = screen.Validation(val)
	case AttrTypeTransparency:
		// Transparency affects presentation, not the model this module
		// keeps; recognised and otherwise ignored.
	}
}
