// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package screen

import (
	"sort"
	"strings"

	"github.com/mrwilson/tn3270e/ebcdic"
)

// AID is an Attention Identifier: the byte a client sends at the head of
// an inbound record to say which key the user pressed.
type AID byte

// ModifiedField is one entry of a Read Modified submission: the field's
// start address and its content, stripped of trailing NULs.
type ModifiedField struct {
	Addr    int
	Content []byte
}

// ScreenBuffer is the 2-D character and attribute plane a 3270 session
// renders into, plus the cursor and field chain that govern it.
// None of its operations perform I/O; the data-stream parser and the
// session's explicit edit API are the only callers that mutate it, which
// keeps every mutation on a single happens-before timeline.
type ScreenBuffer struct {
	Rows, Cols int
	Cells      []Cell
	Cursor     int

	KeyboardLocked bool
	AlarmPending   bool
	AIDPending     AID

	fields []*Field // sorted ascending by Start; the field chain

	codepage ebcdic.Codepage
}

// NewScreenBuffer constructs a buffer of the given dimensions. cp is used
// by ToText; if nil, Codepage037 is used.
func NewScreenBuffer(rows, cols int, cp ebcdic.Codepage) *ScreenBuffer {
	if cp == nil {
		cp = ebcdic.Codepage037()
	}
	b := &ScreenBuffer{Rows: rows, Cols: cols, codepage: cp}
	b.Cells = make([]Cell, rows*cols)
	b.Clear()
	return b
}

func (b *ScreenBuffer) size() int { return b.Rows * b.Cols }

// Clear fills the buffer with EBCDIC space, drops all fields, and resets
// the cursor to 0.
func (b *ScreenBuffer) Clear() {
	for i := range b.Cells {
		b.Cells[i] = Cell{EBCDIC: 0x40}
	}
	b.fields = nil
	b.Cursor = 0
}

// Resize replaces the buffer with a new one of the given dimensions,
// dropping content — used when the negotiated device type or a BIND-IMAGE
// sets the screen size. The parser does not call it for EWA, which clears
// the buffer at its current size.
func (b *ScreenBuffer) Resize(rows, cols int) {
	b.Rows, b.Cols = rows, cols
	b.Cells = make([]Cell, rows*cols)
	b.Clear()
}

func wrap(addr, size int) int {
	addr %= size
	if addr < 0 {
		addr += size
	}
	return addr
}

// WriteChar places ebcdicByte at addr (or the cursor, if addr is omitted),
// then — only when addr was omitted — advances the cursor by one,
// wrapping at the end of the buffer. If the write lands in an input
// field, the field's Modified Data Tag is set.
func (b *ScreenBuffer) WriteChar(ebcdicByte byte, addr ...int) {
	pos := b.Cursor
	atCursor := len(addr) == 0
	if !atCursor {
		pos = wrap(addr[0], b.size())
	}
	b.Cells[pos].EBCDIC = ebcdicByte
	if f := b.fieldCoveringCell(pos); f != nil && f.IsInput() {
		f.Attribute.Modified = true
	}
	if atCursor {
		b.Cursor = wrap(b.Cursor+1, b.size())
	}
}

// SetPosition sets the cursor to (row, col), clamping out-of-range values
// into the valid range rather than returning an error.
func (b *ScreenBuffer) SetPosition(row, col int) {
	if row < 0 {
		row = 0
	} else if row >= b.Rows {
		row = b.Rows - 1
	}
	if col < 0 {
		col = 0
	} else if col >= b.Cols {
		col = b.Cols - 1
	}
	b.Cursor = row*b.Cols + col
}

// SetPositionAddr sets the cursor to a raw buffer address, clamping
// out-of-range values.
func (b *ScreenBuffer) SetPositionAddr(addr int) {
	if addr < 0 {
		addr = 0
	} else if addr >= b.size() {
		addr = b.size() - 1
	}
	b.Cursor = addr
}

// GetPosition returns the cursor's current (row, col).
func (b *ScreenBuffer) GetPosition() (row, col int) {
	return b.Cursor / b.Cols, b.Cursor % b.Cols
}

// StartField creates (or replaces) a field at addr (default: the cursor),
// writing its attribute byte (rendered as an EBCDIC space in the cell)
// and re-linking the field chain. The cursor advances by one past the
// attribute byte, as it would for any other order that writes a byte.
func (b *ScreenBuffer) StartField(attr byte, addr ...int) *Field {
	pos := b.Cursor
	if len(addr) > 0 {
		pos = wrap(addr[0], b.size())
	}
	b.Cells[pos] = Cell{EBCDIC: 0x40}

	f := &Field{Start: pos, Attribute: DecodeAttribute(attr)}
	b.removeFieldAt(pos)
	b.insertField(f)
	b.relinkAttributes()

	b.Cursor = wrap(pos+1, b.size())
	return f
}

// StartFieldExtended is StartField plus a set of extended attribute pairs
// (SFE), applied to the new field as its resting extended state.
func (b *ScreenBuffer) StartFieldExtended(attr byte, ext ExtendedAttrs, addr ...int) *Field {
	f := b.StartField(attr, addr...)
	f.Extended = ext
	return f
}

func (b *ScreenBuffer) insertField(f *Field) {
	i := sort.Search(len(b.fields), func(i int) bool { return b.fields[i].Start >= f.Start })
	b.fields = append(b.fields, nil)
	copy(b.fields[i+1:], b.fields[i:])
	b.fields[i] = f
}

func (b *ScreenBuffer) removeFieldAt(start int) {
	for i, f := range b.fields {
		if f.Start == start {
			b.fields = append(b.fields[:i], b.fields[i+1:]...)
			return
		}
	}
}

// FieldAt returns the field whose Start is exactly addr, if any.
func (b *ScreenBuffer) FieldAt(addr int) (*Field, bool) {
	for _, f := range b.fields {
		if f.Start == addr {
			return f, true
		}
	}
	return nil, false
}

// Fields returns the field chain in screen order (ascending by Start).
// The returned slice is not a copy; callers must not retain it across a
// mutating call.
func (b *ScreenBuffer) Fields() []*Field {
	return b.fields
}

// fieldCoveringCell returns the field governing the given cell address, by
// consulting the cell's attribute index rather than re-scanning the chain.
func (b *ScreenBuffer) fieldCoveringCell(addr int) *Field {
	c := b.Cells[addr]
	if !c.hasField() {
		return nil
	}
	f, _ := b.FieldAt(c.fieldStart())
	return f
}

// relinkAttributes recomputes every cell's attribute index from the
// current field chain: each field governs its own attribute-byte cell and
// every cell up to (but not including) the next field's start, wrapping.
// This keeps "attribute_index either references a valid field start or is
// 0" true after every field-chain mutation.
func (b *ScreenBuffer) relinkAttributes() {
	for i := range b.Cells {
		b.Cells[i].AttributeIndex = 0
	}
	if len(b.fields) == 0 {
		return
	}
	for i, f := range b.fields {
		next := b.fields[(i+1)%len(b.fields)]
		idx := uint16(f.Start + 1)
		pos := f.Start
		for {
			b.Cells[pos].AttributeIndex = idx
			nextPos := wrap(pos+1, b.size())
			if nextPos == next.Start {
				break
			}
			pos = nextPos
		}
	}
}

// fieldLength returns a field's length: the run of cells from its Start up
// to (not including) the next field's Start, wrapping.
func (b *ScreenBuffer) fieldLength(f *Field) int {
	idx := sort.Search(len(b.fields), func(i int) bool { return b.fields[i].Start >= f.Start })
	next := b.fields[(idx+1)%len(b.fields)]
	length := next.Start - f.Start
	if length <= 0 {
		length += b.size()
	}
	return length
}

// ProgramTab advances the cursor to the first data position (one past the
// attribute byte) of the next unprotected field in screen order, wrapping.
// If there is no unprotected field, the cursor is unchanged.
func (b *ScreenBuffer) ProgramTab() {
	if len(b.fields) == 0 {
		return
	}
	start := sort.Search(len(b.fields), func(i int) bool { return b.fields[i].Start > b.Cursor })
	for i := 0; i < len(b.fields); i++ {
		f := b.fields[(start+i)%len(b.fields)]
		if f.IsInput() {
			b.Cursor = wrap(f.Start+1, b.size())
			return
		}
	}
}

// BackTab moves the cursor to the start of the data portion of the
// previous unprotected field in screen order, wrapping. If there is no
// unprotected field, the cursor is unchanged. This mirrors ProgramTab's
// forward search run in reverse.
func (b *ScreenBuffer) BackTab() {
	if len(b.fields) == 0 {
		return
	}
	// A field whose data starts at the cursor is the current field, not a
	// previous one, so the search excludes it along with later fields.
	start := sort.Search(len(b.fields), func(i int) bool { return b.fields[i].Start >= b.Cursor-1 })
	for i := 1; i <= len(b.fields); i++ {
		idx := (start - i + 2*len(b.fields)) % len(b.fields)
		f := b.fields[idx]
		if f.IsInput() {
			b.Cursor = wrap(f.Start+1, b.size())
			return
		}
	}
}

// EraseEOF clears the content of the input field the cursor is in, from
// the cursor's position to the field's end, and sets its Modified Data
// Tag (the cursor itself does not move). Outside any field, or inside a
// protected field, it is a no-op.
func (b *ScreenBuffer) EraseEOF() {
	f := b.fieldCoveringCell(b.Cursor)
	if f == nil || !f.IsInput() {
		return
	}
	length := b.fieldLength(f)
	fieldEnd := wrap(f.Start+length, b.size())
	for pos := b.Cursor; pos != fieldEnd; pos = wrap(pos+1, b.size()) {
		b.Cells[pos].EBCDIC = 0x40
	}
	f.Attribute.Modified = true
}

// MoveToFirstInput sets the cursor to the first input field's start
// address in screen order, or 0 if there are no input fields.
func (b *ScreenBuffer) MoveToFirstInput() {
	for _, f := range b.fields {
		if f.IsInput() {
			b.Cursor = f.Start
			return
		}
	}
	b.Cursor = 0
}

// ReadModified enumerates input fields with the Modified Data Tag set, in
// screen order, returning each field's start address and content (the
// bytes from Start+1 through the field's end), with trailing NUL bytes
// stripped.
func (b *ScreenBuffer) ReadModified() []ModifiedField {
	var out []ModifiedField
	for _, f := range b.fields {
		if !f.IsInput() || !f.Attribute.Modified {
			continue
		}
		length := b.fieldLength(f)
		content := make([]byte, 0, length-1)
		for i := 1; i < length; i++ {
			content = append(content, b.Cells[wrap(f.Start+i, b.size())].EBCDIC)
		}
		for len(content) > 0 && content[len(content)-1] == 0x00 {
			content = content[:len(content)-1]
		}
		out = append(out, ModifiedField{Addr: f.Start, Content: content})
	}
	return out
}

// ResetMDT clears the Modified Data Tag on every field, as the Write
// Control Character's reset_mdt bit requires.
func (b *ScreenBuffer) ResetMDT() {
	for _, f := range b.fields {
		f.Attribute.Modified = false
	}
}

// EraseAllUnprotected clears the content of every unprotected field (but
// not protected fields or the screen's protected text) and resets their
// MDT, implementing the EAU command.
func (b *ScreenBuffer) EraseAllUnprotected() {
	for _, f := range b.fields {
		if !f.IsInput() {
			continue
		}
		length := b.fieldLength(f)
		for i := 1; i < length; i++ {
			b.Cells[wrap(f.Start+i, b.size())].EBCDIC = 0x40
		}
		f.Attribute.Modified = false
	}
	b.Cursor = 0
}

// ToText decodes the buffer, row by row, into a string with '\n' between
// rows. If strip is true, trailing spaces on each row are removed. Cells
// written by the GE order decode through the code page's graphic-escape
// sub-table rather than its base table.
func (b *ScreenBuffer) ToText(strip ...bool) string {
	doStrip := len(strip) > 0 && strip[0]
	var sb strings.Builder
	for r := 0; r < b.Rows; r++ {
		var row strings.Builder
		for c := 0; c < b.Cols; c++ {
			cell := b.Cells[r*b.Cols+c]
			if cell.Extended.Charset == CharsetGE {
				row.WriteRune(b.codepage.DecodeGEByte(cell.EBCDIC))
			} else {
				row.WriteRune(b.codepage.DecodeByte(cell.EBCDIC))
			}
		}
		line := row.String()
		if doStrip {
			line = strings.TrimRight(line, " ")
		}
		if r > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func (b *ScreenBuffer) SetKeyboardLock(locked bool) { b.KeyboardLocked = locked }

func (b *ScreenBuffer) SoundAlarm() { b.AlarmPending = true }

// TerminalReset unlocks the keyboard, clears any pending alarm, and clears
// the pending AID, without altering screen content.
func (b *ScreenBuffer) TerminalReset() {
	b.KeyboardLocked = false
	b.AlarmPending = false
	b.AIDPending = 0
}

// Snapshot is an opaque, restorable copy of the buffer state a
// transactional write needs: cells, attribute indices, cursor, and field
// MDT bits.
type Snapshot struct {
	cells  []Cell
	cursor int
	fields []Field // values, not pointers: a snapshot must not alias live fields
}

// Snap captures the buffer's current state.
func (b *ScreenBuffer) Snap() Snapshot {
	cells := make([]Cell, len(b.Cells))
	copy(cells, b.Cells)
	fields := make([]Field, len(b.fields))
	for i, f := range b.fields {
		fields[i] = *f
	}
	return Snapshot{cells: cells, cursor: b.Cursor, fields: fields}
}

// Restore reverts the buffer to a previously captured Snapshot.
func (b *ScreenBuffer) Restore(s Snapshot) {
	copy(b.Cells, s.cells)
	b.Cursor = s.cursor
	b.fields = make([]*Field, len(s.fields))
	for i := range s.fields {
		f := s.fields[i]
		b.fields[i] = &f
	}
}
