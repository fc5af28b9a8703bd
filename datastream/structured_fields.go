// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package datastream

// BindImage carries the screen geometry and query-reply capability list a
// host announces in a BIND-IMAGE structured field. The Telnet negotiator
// resizes the screen buffer from Rows and Cols; the alternate size is
// recorded but not applied.
type BindImage struct {
	Rows, Cols       int
	AltRows, AltCols int
	QueryReplyIDs    []byte
}

// SNAResponse is a decoded SNA response structured field: a
// positive or negative acknowledgement of a previous request, optionally
// carrying a sense code on failure.
type SNAResponse struct {
	IsPositive bool
	SenseCode  uint16
	Data       []byte
}

// parseWSF dispatches a Write Structured Field record: each
// structured field is a 2-byte big-endian length (including the length
// bytes themselves), an ID byte, and a payload. Length 0 means "read to
// end of record" — that field consumes everything remaining and ends the
// loop. A structured field whose declared nonzero length overruns the
// record is a critical failure — the same incomplete-order rollback
// applies to WSF records as to Write records, since both represent one
// transactional host write.
func (p *Parser) parseWSF(payload []byte) error {
	snap := p.Buf.Snap()
	pos := 0
	for pos < len(payload) {
		if pos+3 > len(payload) {
			p.Buf.Restore(snap)
			return p.critical(pos, "incomplete structured field header")
		}
		length := int(payload[pos])<<8 | int(payload[pos+1])
		id := payload[pos+2]
		if length == 0 {
			p.dispatchSF(id, payload[pos+3:])
			return nil
		}
		if length < 3 || pos+length > len(payload) {
			p.Buf.Restore(snap)
			return p.critical(pos, "incomplete structured field")
		}
		body := payload[pos+3 : pos+length]
		p.dispatchSF(id, body)
		pos += length
	}
	return nil
}

func (p *Parser) dispatchSF(id byte, body []byte) {
	switch id {
	case SFIDBindImage:
		if bi, ok := parseBindImage(body); ok && p.OnBindImage != nil {
			p.OnBindImage(bi)
		}
	case SFIDUnbind:
		if p.OnUnbind != nil {
			p.OnUnbind()
		}
	case SFIDSNAResponse:
		if p.OnSNAResponse != nil {
			p.OnSNAResponse(parseSNAResponse(body))
		}
	case SFIDPrinterStatus:
		if len(body) > 0 && p.OnPrinterStatus != nil {
			p.OnPrinterStatus(body[0])
		}
	case SFIDQueryReply:
		if p.OnQueryReply != nil {
			p.OnQueryReply(body)
		}
	case SFIDEraseReset:
		alternate := len(body) > 0 && body[0] != 0
		p.Buf.Clear()
		if p.OnEraseReset != nil {
			p.OnEraseReset(alternate)
		}
	default:
		p.logger().Warnf("unrecognised structured field ID 0x%02X, skipping", id)
	}
}

// parseBindImage decodes the subset of a BIND-IMAGE PSC this module cares
// about: the default and alternate presentation-space row/column counts.
// A body shorter than four bytes yields ok=false and is not delivered. A
// body of four or five bytes carries no alternate size: everything after
// the first two bytes is taken as query-reply IDs.
func parseBindImage(body []byte) (BindImage, bool) {
	if len(body) < 4 {
		return BindImage{}, false
	}
	bi := BindImage{
		Rows: int(body[0]),
		Cols: int(body[1]),
	}
	if len(body) >= 6 {
		bi.AltRows = int(body[2])
		bi.AltCols = int(body[3])
		bi.QueryReplyIDs = append([]byte(nil), body[4:]...)
	} else {
		bi.QueryReplyIDs = append([]byte(nil), body[2:]...)
	}
	return bi, true
}

// parseSNAResponse decodes the response payload: response_type, flags,
// sense_code_high, sense_code_low, then data. A response is positive only
// when the flags byte has no exception-response bit (0x80) and the sense
// code is 0x0000.
func parseSNAResponse(body []byte) SNAResponse {
	r := SNAResponse{IsPositive: true}
	if len(body) >= 2 && body[1]&0x80 != 0 {
		r.IsPositive = false
	}
	if len(body) >= 4 {
		r.SenseCode = uint16(body[2])<<8 | uint16(body[3])
		if r.SenseCode != 0 {
			r.IsPositive = false
		}
	}
	if len(body) > 4 {
		r.Data = append([]byte(nil), body[4:]...)
	}
	return r
}
