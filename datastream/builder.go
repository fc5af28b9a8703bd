// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package datastream

import "github.com/mrwilson/tn3270e/screen"

// Builder encodes client-to-host records: AID submissions, Read Modified
// responses, and the structured fields a client sends unsolicited or in
// reply to a host query.
type Builder struct {
	Buf *screen.ScreenBuffer
}

func encodeAddr(addr, size int) [2]byte {
	if size <= 4096 {
		return screen.EncodeAddr12(addr)
	}
	return screen.EncodeAddr14(addr)
}

func (b *Builder) size() int { return b.Buf.Rows * b.Buf.Cols }

func appendSBA(out []byte, addr, size int) []byte {
	a := encodeAddr(addr, size)
	return append(out, byte(OrderSBA), a[0], a[1])
}

// appendModifiedFields appends one SBA + content block per field to out,
// in screen order, for the fields ReadModified returns.
func (b *Builder) appendModifiedFields(out []byte) []byte {
	size := b.size()
	for _, f := range b.Buf.ReadModified() {
		out = appendSBA(out, f.Addr+1, size)
		out = append(out, f.Content...)
	}
	return out
}

// KeyPress builds an Enter/PF/PA submission: the AID byte, the cursor's
// buffer address, then the modified-field content.
func (b *Builder) KeyPress(aid AID) []byte {
	out := make([]byte, 0, 16)
	out = append(out, byte(aid))
	a := encodeAddr(b.Buf.Cursor, b.size())
	out = append(out, a[0], a[1])
	return b.appendModifiedFields(out)
}

// Clear builds a Clear key submission: the AID byte alone, since Clear
// carries no buffer content.
func (b *Builder) Clear() []byte {
	return []byte{byte(AIDClear)}
}

// ReadModifiedAll builds a Read Modified All submission: the AID byte, the
// cursor address, and every field's content regardless of its Modified Data
// Tag.
func (b *Builder) ReadModifiedAll(aid AID) []byte {
	out := make([]byte, 0, 32)
	out = append(out, byte(aid))
	a := encodeAddr(b.Buf.Cursor, b.size())
	out = append(out, a[0], a[1])
	size := b.size()
	for _, f := range b.Buf.Fields() {
		out = appendSBA(out, f.Start+1, size)
		length := b.fieldContentLength(f)
		for i := 1; i <= length; i++ {
			out = append(out, b.Buf.Cells[(f.Start+i)%size].EBCDIC)
		}
	}
	return out
}

func (b *Builder) fieldContentLength(f *screen.Field) int {
	fields := b.Buf.Fields()
	size := b.size()
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

// ReadModifiedFields builds the short Read Modified query form: AID
// Enter, the RM command byte, and the default partition ID.
func (b *Builder) ReadModifiedFields() []byte {
	return []byte{byte(AIDEnter), byte(CmdReadModified), 0xF0}
}

// SBA encodes a Set Buffer Address order targeting (row, col) in the
// current screen geometry.
func (b *Builder) SBA(row, col int) []byte {
	return appendSBA(nil, row*b.Buf.Cols+col, b.size())
}

// Write builds an outbound Erase/Write record around an already-encoded
// order stream — the form a test harness (or the trace replayer's
// round-trip checks) uses to fabricate host records.
func (b *Builder) Write(data []byte, wcc WCC) []byte {
	out := make([]byte, 0, len(data)+2)
	out = append(out, byte(CmdEraseWrite), wcc.Encode())
	return append(out, data...)
}

// StructuredField wraps body in a client structured field (length, ID,
// body) preceded by the WSF command byte, the form used to reply to a
// host's Read Partition Query. The length counts the two length bytes,
// the ID and the body, not the command byte.
func StructuredField(id byte, body []byte) []byte {
	length := 3 + len(body)
	out := make([]byte, 0, length+1)
	out = append(out, byte(CmdWriteStructuredField))
	out = append(out, byte(length>>8), byte(length))
	out = append(out, id)
	out = append(out, body...)
	return out
}

// QueryReply builds a Query Reply structured field carrying the given
// query-type ID and characteristics body, the client's answer to a host's
// Read Partition Query request.
func QueryReply(queryID byte, body []byte) []byte {
	payload := append([]byte{queryID}, body...)
	return StructuredField(SFIDQueryReply, payload)
}

// Query reply type IDs this client can answer.
const (
	QueryReplySummary    byte = 0x80
	QueryReplyUsableArea byte = 0x81
	QueryReplyColor      byte = 0x86
	QueryReplyHighlight  byte = 0x87
)

// SummaryQueryReply lists the query reply types this client answers,
// always leading with Summary itself.
func (b *Builder) SummaryQueryReply(ids ...byte) []byte {
	body := append([]byte{QueryReplySummary}, ids...)
	return QueryReply(QueryReplySummary, body)
}

// UsableAreaQueryReply reports the current screen geometry as a Usable
// Area query reply: 12/14-bit addressing allowed, cell units, then
// 16-bit width and height.
func (b *Builder) UsableAreaQueryReply() []byte {
	body := []byte{
		0x01, 0x00,
		byte(b.Buf.Cols >> 8), byte(b.Buf.Cols),
		byte(b.Buf.Rows >> 8), byte(b.Buf.Rows),
	}
	return QueryReply(QueryReplyUsableArea, body)
}
