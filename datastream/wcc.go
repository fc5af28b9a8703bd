// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package datastream

// WCC decomposes a Write Control Character, the byte that follows the
// command byte in a Write/EW/EWA record.
type WCC struct {
	ResetMDT        bool
	KeyboardRestore bool
	SoundAlarm      bool
	StartPrinter    bool
	ResetPartition  bool
}

// DecodeWCC decomposes a raw WCC byte. Bit assignments:
// 0x80 reset MDT, 0x40 keyboard restore, 0x20 sound alarm, 0x10 start
// printer, 0x08 printout format (ignored for displays), 0x04 reset,
// 0x02 reserved, 0x01 parity. The common host WCCs 0xC1 and 0xC3 therefore
// both decode to "reset MDT + keyboard restore".
func DecodeWCC(b byte) WCC {
	return WCC{
		ResetMDT:        b&0x80 != 0,
		KeyboardRestore: b&0x40 != 0,
		SoundAlarm:      b&0x20 != 0,
		StartPrinter:    b&0x10 != 0,
		ResetPartition:  b&0x04 != 0,
	}
}

// Encode renders a WCC back into its wire byte (parity bit left 0).
func (w WCC) Encode() byte {
	var b byte
	if w.ResetMDT {
		b |= 0x80
	}
	if w.KeyboardRestore {
		b |= 0x40
	}
	if w.SoundAlarm {
		b |= 0x20
	}
	if w.StartPrinter {
		b |= 0x10
	}
	if w.ResetPartition {
		b |= 0x04
	}
	return b
}
