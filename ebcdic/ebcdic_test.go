// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package ebcdic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

const printableASCII = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz" +
	"0123456789 .<(+|&!$*);-/,%_>?`:#@'=\""

// Any string drawn from the shared printable subset must survive an
// encode/decode round trip on every built-in code page.
func TestRoundTripPrintableASCII(t *testing.T) {
	pages := []Codepage{Codepage037(), Codepage500(), Codepage1047(), Codepage1140()}
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringOf(rapid.RuneFrom([]rune(printableASCII))).Draw(t, "s")
		for _, cp := range pages {
			assert.Equal(t, s, cp.Decode(cp.Encode(s)), "code page %s", cp.ID())
		}
	})
}

func TestDecodeUnmappableIsReplacementChar(t *testing.T) {
	cp := Codepage037()
	// Control bytes other than the handful of 3270 control assignments must
	// decode to U+FFFD, never panic or leak an invisible control rune into
	// screen text.
	assert.Equal(t, "�", cp.Decode([]byte{0x02}))
}

func TestEncodeUnmappableIsSubstitute(t *testing.T) {
	cp := Codepage037()
	out := cp.Encode("中") // a CJK ideograph with no CP037 mapping
	assert.Equal(t, []byte{substitute}, out)
}

func TestSpaceByte(t *testing.T) {
	cp := Codepage037()
	assert.Equal(t, byte(0x40), cp.EncodeRune(' '))
	assert.Equal(t, ' ', cp.DecodeByte(0x40))
}

func TestCodepage500BracketPositions(t *testing.T) {
	cp := Codepage500()
	assert.Equal(t, byte(0x4A), cp.EncodeRune('['))
	assert.Equal(t, byte(0x5A), cp.EncodeRune(']'))
	assert.Equal(t, '!', cp.DecodeByte(0x4F))
}

func TestByID(t *testing.T) {
	for _, id := range []string{"037", "500", "1047", "1140"} {
		cp, ok := ByID(id)
		assert.True(t, ok, "expected %s to be registered", id)
		assert.Equal(t, id, cp.ID())
	}
	_, ok := ByID("9999")
	assert.False(t, ok)
}

func TestGraphicEscape(t *testing.T) {
	cp := Codepage037()
	// GE (0x08) followed by 0x70 should decode to the lozenge symbol.
	assert.Equal(t, "◊", cp.Decode([]byte{0x08, 0x70}))
}
