// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package datastream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrwilson/tn3270e/screen"
)

// A submission carries exactly one (SBA, addr, content) block per modified
// input field, in ascending address order.
func TestKeyPressIncludesOnlyModifiedFields(t *testing.T) {
	buf := screen.NewScreenBuffer(24, 80, nil)
	buf.StartField(0x00, 0)
	buf.WriteChar(0xC1, 1)
	buf.WriteChar(0xC2, 2)
	buf.StartField(0x00, 3)  // untouched input field, immediately following: no MDT
	buf.StartField(0x20, 10) // protected

	b := &Builder{Buf: buf}
	out := b.KeyPress(AIDEnter)
	require.Equal(t, byte(AIDEnter), out[0], "submission leads with the AID byte")

	// cursor address follows, then exactly one SBA block for field 0.
	rest := out[3:]
	require.Equal(t, byte(OrderSBA), rest[0])
	assert.Equal(t, 1, screen.DecodeAddr(rest[1], rest[2]), "field content starts one past the attribute byte")
	assert.Equal(t, []byte{0xC1, 0xC2}, rest[3:])
}

func TestClearSubmissionIsJustAID(t *testing.T) {
	b := &Builder{Buf: screen.NewScreenBuffer(24, 80, nil)}
	assert.Equal(t, []byte{byte(AIDClear)}, b.Clear())
}

func TestReadModifiedFieldsShortForm(t *testing.T) {
	b := &Builder{Buf: screen.NewScreenBuffer(24, 80, nil)}
	assert.Equal(t, []byte{0x7D, 0xF6, 0xF0}, b.ReadModifiedFields())
}

func TestSBATargetsRowCol(t *testing.T) {
	b := &Builder{Buf: screen.NewScreenBuffer(24, 80, nil)}
	out := b.SBA(1, 0)
	require.Equal(t, byte(OrderSBA), out[0])
	assert.Equal(t, 80, screen.DecodeAddr(out[1], out[2]))
}

func TestWriteRoundTripsThroughParser(t *testing.T) {
	buf := screen.NewScreenBuffer(24, 80, nil)
	b := &Builder{Buf: buf}
	orders := append(b.SBA(0, 0), 0xC1, 0xC2)
	record := b.Write(orders, WCC{ResetMDT: true})

	p := &Parser{Buf: buf}
	require.NoError(t, p.Parse(record))
	assert.Equal(t, byte(0xC1), buf.Cells[0].EBCDIC)
	assert.Equal(t, byte(0xC2), buf.Cells[1].EBCDIC)
}

func TestUsableAreaQueryReplyCarriesGeometry(t *testing.T) {
	b := &Builder{Buf: screen.NewScreenBuffer(43, 80, nil)}
	out := b.UsableAreaQueryReply()
	require.Equal(t, byte(CmdWriteStructuredField), out[0])
	assert.Equal(t, SFIDQueryReply, out[3])
	assert.Equal(t, QueryReplyUsableArea, out[4])
	assert.Equal(t, byte(80), out[8], "width low byte")
	assert.Equal(t, byte(43), out[10], "height low byte")
}

func TestQueryReplyWrapsID(t *testing.T) {
	out := QueryReply(0x85, []byte{1, 2, 3})
	require.Equal(t, byte(CmdWriteStructuredField), out[0])
	assert.Equal(t, SFIDQueryReply, out[3])
	assert.Equal(t, byte(0x85), out[4], "the query type ID leads the body")
}
