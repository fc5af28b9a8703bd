// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package screen

// Attribute is a field's basic 3270 attribute byte, decomposed into its
// meaningful bits.
type Attribute struct {
	Protected bool
	Numeric   bool
	Display   Display
	Modified  bool // the Modified Data Tag (MDT)
	Reserved  byte // the two reserved bits, preserved but not interpreted
}

// Field is a contiguous run of cells anchored at Start, running (in screen
// order, wrapping at the end of the buffer) up to but not including the
// next field's Start. Fields are stored in a cyclic order by Start address
//: "next field" is the modular successor in that order, so no
// field stores a next/prev pointer.
type Field struct {
	Start     int
	Attribute Attribute
	Extended  ExtendedAttrs
}

// IsInput reports whether this field accepts client input, i.e. is not
// protected.
func (f *Field) IsInput() bool {
	return !f.Attribute.Protected
}

// AttributeByte encodes Attribute back into a single 3270 attribute byte.
// The cell at Start holds an EBCDIC space, not this byte; the attribute
// lives only on the Field.
func (f *Field) AttributeByte() byte {
	var b byte
	if f.Attribute.Protected {
		b |= 0x20
	}
	if f.Attribute.Numeric {
		b |= 0x10
	}
	switch f.Attribute.Display {
	case DisplayIntensified:
		b |= 0x08
	case DisplayNonDisplay:
		b |= 0x0C
	}
	if f.Attribute.Modified {
		b |= 0x01
	}
	b |= (f.Attribute.Reserved & 0x03) << 6
	return b
}

// DecodeAttribute decomposes a raw 3270 attribute byte into an Attribute.
func DecodeAttribute(b byte) Attribute {
	a := Attribute{
		Protected: b&0x20 != 0,
		Numeric:   b&0x10 != 0,
		Modified:  b&0x01 != 0,
		Reserved:  (b >> 6) & 0x03,
	}
	switch {
	case b&0x0C == 0x0C:
		a.Display = DisplayNonDisplay
	case b&0x08 != 0:
		a.Display = DisplayIntensified
	default:
		a.Display = DisplayNormal
	}
	return a
}
