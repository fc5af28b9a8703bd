// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package ebcdic

import "golang.org/x/text/encoding/charmap"

// After careful consideration, this library's default code page for EBCDIC
// is IBM CP037, matching the common default for US-English 3270 sessions.
// The base byte↔rune assignments come from golang.org/x/text's charmap
// tables rather than tables maintained here; this package adds the three
// things charmap has no notion of: the 3270 control bytes the data-stream
// orders care about (DUP, FM, SUB), the "control bytes decode to U+FFFD on
// a screen" rule, and the CP310 graphic-escape sub-table behind the GE
// order.
//
// CP500 has no charmap table, but it differs from CP037 at exactly seven
// code points (the bracket/bang/broken-bar shuffle), so it is built from
// the CP037 table with those positions overridden.

// fromCharmap builds a codepage from one of x/text's charmap tables,
// applying overrides first (they win both directions), then the 3270
// control-byte assignments, then every printable mapping the charmap
// carries. C0/C1 control runes are deliberately left unmapped: a control
// byte in a screen cell renders as U+FFFD, not as an invisible control
// character embedded in ToText output.
func fromCharmap(id string, cm *charmap.Charmap, overrides map[byte]rune) *codepage {
	cp := &codepage{
		id:   id,
		ge:   0x08,
		u2e:  make(map[rune]byte),
		u2ge: make(map[rune]byte),
	}

	for b, r := range overrides {
		cp.set(b, r)
	}

	// 3270-specific control bytes used directly by the data-stream orders
	// (SUB doubles as the codec's unmappable-input substitute).
	cp.set(0x1C, 0x001C) // DUP
	cp.set(0x1E, 0x001E) // FM (field mark)
	cp.set(substitute, 0x001A)

	for i := 0; i < 256; i++ {
		b := byte(i)
		if _, done := overrides[b]; done {
			continue
		}
		r := cm.DecodeByte(b)
		if r < 0x20 || (r >= 0x7F && r <= 0x9F) || r == replacement {
			continue
		}
		cp.set(b, r)
	}

	loadCP310(cp)
	return cp
}

// Codepage037 implements IBM CP037, the default US-English EBCDIC code page.
func Codepage037() Codepage {
	return fromCharmap("037", charmap.CodePage037, nil)
}

// Codepage500 implements IBM CP500, the international EBCDIC code page:
// CP037 with '[', '!', ']', '^', '¢', '¬', and '|' relocated.
func Codepage500() Codepage {
	return fromCharmap("500", charmap.CodePage037, map[byte]rune{
		0x4A: '[', 0x4F: '!', 0x5A: ']', 0x5F: '^',
		0xB0: '¢', 0xBA: '¬', 0xBB: '|',
	})
}

// Codepage1047 implements IBM CP1047, the open-systems/POSIX EBCDIC code
// page negotiated by many modern z/OS UNIX sessions.
func Codepage1047() Codepage {
	return fromCharmap("1047", charmap.CodePage1047, nil)
}

// Codepage1140 implements IBM CP1140, CP037 with the euro sign replacing
// the international currency symbol.
func Codepage1140() Codepage {
	return fromCharmap("1140", charmap.CodePage1140, nil)
}

var byID = map[string]func() Codepage{
	"037":  Codepage037,
	"500":  Codepage500,
	"1047": Codepage1047,
	"1140": Codepage1140,
}

// ByID returns the Codepage constructor registered for id, and false if no
// code page with that identifier is known to this package.
func ByID(id string) (Codepage, bool) {
	ctor, ok := byID[id]
	if !ok {
		return nil, false
	}
	return ctor(), true
}

// loadCP310 populates the graphic-escape sub-table (CP310, the APL/math
// symbol set reachable via the GE order, 0x08) with the handful of symbols
// 3270 query-reply and BIND-IMAGE exercises commonly carry. Unlike the
// base table this is intentionally sparse: bytes with no assignment
// decode to U+FFFD per Decode's contract, which is the expected behavior
// for a graphic-escape byte this package does not recognize.
func loadCP310(cp *codepage) {
	sym := map[byte]rune{
		0x70: '◊', // lozenge
		0x71: '∩', // intersection
		0x72: '®',
		0xA2: '±',
		0xAC: '⊕',
		0xBC: '≤',
		0xBE: '≠',
	}
	for b, r := range sym {
		cp.setGE(b, r)
	}
}
