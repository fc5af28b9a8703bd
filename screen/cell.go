// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package screen

// Display is the field display intensity, part of a field's basic
// attribute byte.
type Display int

const (
	DisplayNormal Display = iota
	DisplayIntensified
	DisplayNonDisplay
)

// Color, Highlight, Charset, and Validation are the extended attribute
// values a field or individual cell may carry (set via SFE/SA).
type Color byte
type Highlight byte
type Charset byte
type Validation byte

const (
	ColorDefault Color = 0
	HighlightDefault Highlight = 0
	CharsetDefault   Charset   = 0

	// CharsetGE marks a cell written by the GE order: ToText decodes it
	// through the code page's graphic-escape sub-table instead of the base
	// table.
	CharsetGE Charset = 1
)

// ExtendedAttrs carries the per-cell extended attribute plane (color,
// highlight, charset, field validation) introduced by SA and SFE.
type ExtendedAttrs struct {
	Color      Color
	Highlight  Highlight
	Charset    Charset
	Validation Validation
}

// Cell is one position in the screen buffer: the raw EBCDIC byte stored
// there, the index of the field that governs it (0 = no field, i.e. the
// buffer has no fields at all; a field's own attribute cell carries that
// field's index), and the cell's extended attribute plane.
//
// attribute_index does not literally index an array: it is the covering
// field's start address plus one, which both satisfies "0 = no field" and
// lets the buffer look the field up directly in its address-sorted field
// chain without needing stable array positions across inserts/removals.
type Cell struct {
	EBCDIC        byte
	AttributeIndex uint16
	Extended      ExtendedAttrs
}

func (c Cell) hasField() bool { return c.AttributeIndex != 0 }

func (c Cell) fieldStart() int { return int(c.AttributeIndex) - 1 }
