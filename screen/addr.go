// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package screen

// Package screen implements the 3270 screen buffer data model: cells,
// fields, and buffer-address encoding, per the IBM 3270 Data Stream
// Programmer's Reference.

// codes is the 3270 6-bit buffer-address translate table, used both to
// encode a 12-bit address into the wire's 6-bit-per-byte form and (via
// decodeTable, its inverse) to decode one. Values from Figure D-1 of
// GA23-0059-00 (Figure C-1 in later editions), as reproduced at
// http://www.tommysprinkle.com/mvs/P3270/iocodes.htm.
var codes = [64]byte{0x40, 0xc1, 0xc2, 0xc3, 0xc4, 0xc5, 0xc6, 0xc7, 0xc8,
	0xc9, 0x4a, 0x4b, 0x4c, 0x4d, 0x4e, 0x4f, 0x50, 0xd1, 0xd2, 0xd3, 0xd4,
	0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0x5a, 0x5b, 0x5c, 0x5d, 0x5e, 0x5f, 0x60,
	0x61, 0xe2, 0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0x6a, 0x6b, 0x6c,
	0x6d, 0x6e, 0x6f, 0xf0, 0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
	0xf9, 0x7a, 0x7b, 0x7c, 0x7d, 0x7e, 0x7f}

// decodeTable maps a wire byte back to its 6-bit value; 0xFF marks a byte
// not present in codes (an invalid 6-bit code pair member).
var decodeTable [256]byte

func init() {
	for i := range decodeTable {
		decodeTable[i] = 0xFF
	}
	for i, b := range codes {
		decodeTable[b] = byte(i)
	}
}

// EncodeAddr12 encodes addr using the 12-bit, 6-bit-code-pair wire format
// (high two bits of byte 0 are "01" or "11", never "00"). Valid for addr in
// [0, 4096).
func EncodeAddr12(addr int) [2]byte {
	hi := (addr & 0xFC0) >> 6
	lo := addr & 0x3F
	return [2]byte{codes[hi], codes[lo]}
}

// EncodeAddr14 encodes addr using the 14-bit binary wire format (high two
// bits of byte 0 are "00"). Valid for addr in [0, 16384).
func EncodeAddr14(addr int) [2]byte {
	return [2]byte{byte((addr >> 8) & 0x3F), byte(addr & 0xFF)}
}

// DecodeAddr decodes a two-byte wire buffer address, accepting either the
// 12-bit 6-bit-code-pair encoding or the 14-bit binary encoding, selected
// by the top two bits of the first byte: "00" means 14-bit binary;
// any other value (the code-pair alphabet never produces "00") means the
// 12-bit 6-bit-code-pair form.
func DecodeAddr(b0, b1 byte) int {
	if b0>>6 == 0b00 {
		return ((int(b0) & 0x3F) << 8) | int(b1)
	}
	hi := decodeTable[b0]
	lo := decodeTable[b1]
	if hi == 0xFF {
		hi = 0
	}
	if lo == 0xFF {
		lo = 0
	}
	return (int(hi) << 6) | int(lo)
}
