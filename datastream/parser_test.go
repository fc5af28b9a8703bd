// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package datastream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mrwilson/tn3270e/screen"
)

func newParser() (*Parser, *screen.ScreenBuffer) {
	buf := screen.NewScreenBuffer(24, 80, nil)
	return &Parser{Buf: buf}, buf
}

// A basic EW with two fields and literal text.
func TestParseEraseWriteTwoFields(t *testing.T) {
	p, buf := newParser()
	record := []byte{
		byte(CmdEraseWrite), 0xC3,
		byte(OrderSBA), 0x40, 0x40,
		byte(OrderSF), 0xF0,
		0xC1, 0xC2, 0xC3,
		byte(OrderSBA), 0xc1, 0x50, // addr 80 (row 1, col 0), 12-bit code-pair form
		0xC4, 0xC5, 0xC6,
	}
	require.NoError(t, p.Parse(record))
	assert.Equal(t, byte(0xC1), buf.Cells[0].EBCDIC)
	assert.Equal(t, byte(0xC2), buf.Cells[1].EBCDIC)
	assert.Equal(t, byte(0xC3), buf.Cells[2].EBCDIC)
	f, ok := buf.FieldAt(0)
	require.True(t, ok, "expected a field at 0")
	assert.Equal(t, byte(0xF0), f.AttributeByte())
}

// An incomplete SFE order at the end of a record rolls the buffer back to
// its pre-write state and returns a *ParseError.
func TestIncompleteSFERollsBack(t *testing.T) {
	p, buf := newParser()
	buf.WriteChar(0x40, 0) // pre-existing, unrelated content
	before := make([]screen.Cell, len(buf.Cells))
	copy(before, buf.Cells)

	record := []byte{
		byte(CmdEraseWrite), 0xC1,
		byte(OrderSBA), 0x40, 0x40,
		0xC1, 0xC2,
		byte(OrderSFE), // count byte and pairs missing
	}
	err := p.Parse(record)
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)

	assert.Equal(t, before, buf.Cells, "buffer must match its pre-record state after rollback")
}

// Any truncation of a valid write record either parses cleanly or rolls
// the buffer back bit-for-bit: no partial mutation ever survives an
// incomplete-order failure.
func TestTruncatedWriteNeverLeavesPartialState(t *testing.T) {
	full := []byte{
		byte(CmdEraseWrite), 0xC3,
		byte(OrderSBA), 0x40, 0x40,
		byte(OrderSFE), 0x02, AttrTypeBasic, 0x00, AttrTypeColor, 0xF2,
		0xC1, 0xC2, 0xC3,
		byte(OrderRA), 0xc1, 0x50, 0x40,
		byte(OrderSBA), 0xc1, 0x50,
		byte(OrderSF), 0xF0,
		0xC4, 0xC5,
	}
	rapid.Check(t, func(t *rapid.T) {
		p, buf := newParser()
		buf.StartField(0x00, 5)
		buf.WriteChar(0xC9, 6)
		before := buf.Snap()

		cut := rapid.IntRange(1, len(full)).Draw(t, "cut")
		err := p.Parse(full[:cut])
		if err == nil {
			return
		}
		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		after := buf.Snap()
		assert.Equal(t, before, after, "rollback must restore the exact pre-record state")
	})
}

// An empty WSF record does not corrupt state.
func TestEmptyWSFIsNoop(t *testing.T) {
	p, buf := newParser()
	buf.WriteChar(0xC1, 5)
	require.NoError(t, p.Parse([]byte{byte(CmdWriteStructuredField)}))
	assert.Equal(t, byte(0xC1), buf.Cells[5].EBCDIC, "empty WSF must not alter buffer content")
}

// RA wrapping fills through position 0 when start > stop.
func TestRepeatToAddressWraps(t *testing.T) {
	p, buf := newParser()
	buf.SetPositionAddr(buf.Rows*buf.Cols - 2)
	p.repeatToAddress(1, 0xC1)
	size := buf.Rows * buf.Cols
	for _, pos := range []int{size - 2, size - 1, 0} {
		assert.Equal(t, byte(0xC1), buf.Cells[pos].EBCDIC, "expected wrapped fill at %d", pos)
	}
	assert.Equal(t, 1, buf.Cursor, "cursor rests at the stop address")
}

func TestGraphicEscapeMarksCharset(t *testing.T) {
	p, buf := newParser()
	record := []byte{
		byte(CmdEraseWrite), 0xC1,
		byte(OrderSBA), 0x40, 0x40,
		byte(OrderGE), 0xAC, // a CP310-mapped byte
	}
	require.NoError(t, p.Parse(record))
	assert.Equal(t, screen.CharsetGE, buf.Cells[0].Extended.Charset)
}

func TestUnknownOrderByteIsSkippedNotFatal(t *testing.T) {
	p, _ := newParser()
	record := []byte{
		byte(CmdWrite), 0x00,
		0x02, // an unrecognised order byte below 0x40
		0xC1,
	}
	assert.NoError(t, p.Parse(record))
}
