// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

// Package datastream implements the 3270 data-stream parser (decodes
// outbound host streams into screen buffer mutations) and builder (encodes
// inbound client streams: AID submissions, Read Modified, query replies).
package datastream

import "strings"

// Command is the leading byte of a 3270-DATA record.
type Command byte

const (
	CmdWrite               Command = 0xF1 // W
	CmdEraseWrite          Command = 0xF5 // EW
	CmdEraseWriteAlternate Command = 0x7E // EWA
	CmdReadBuffer          Command = 0xF2 // RB
	CmdReadModified        Command = 0xF6 // RM
	CmdReadModifiedAll     Command = 0x6E // RMA
	CmdEraseAllUnprotected Command = 0x6F // EAU
	CmdWriteStructuredField Command = 0xF3 // WSF
)

// Order is a byte that introduces an order inside a Write/EW/EWA payload.
type Order byte

const (
	OrderSBA Order = 0x11 // Set Buffer Address
	OrderSF  Order = 0x1D // Start Field
	OrderSFE Order = 0x29 // Start Field Extended
	OrderSA  Order = 0x28 // Set Attribute
	OrderIC  Order = 0x13 // Insert Cursor
	OrderPT  Order = 0x05 // Program Tab
	OrderRA  Order = 0x3C // Repeat to Address
	OrderEUA Order = 0x12 // Erase Unprotected to Address
	OrderGE  Order = 0x08 // Graphic Escape
	OrderMF  Order = 0x2C // Modify Field
)

// Literal control bytes that an order stream may carry through to a cell
// verbatim rather than interpreting as text or as an order.
const (
	ControlNUL byte = 0x00
	ControlDUP byte = 0x1C
	ControlFM  byte = 0x1E
	ControlSUB byte = 0x3F
)

// SA/SFE attribute type bytes.
const (
	AttrTypeBasic     byte = 0xC0
	AttrTypeColor     byte = 0xC1
	AttrTypeHighlight byte = 0x41
	AttrTypeCharset   byte = 0xC2
	AttrTypeValidation byte = 0xC3
	AttrTypeTransparency byte = 0xC4
)

// AID is an Attention Identifier, the leading byte of a client submission.
type AID byte

const (
	AIDNone  AID = 0x60
	AIDEnter AID = 0x7D
	AIDClear AID = 0x6D
	AIDPA1   AID = 0x6C
	AIDPA2   AID = 0x6E
	AIDPA3   AID = 0x6B

	AIDPF1  AID = 0xF1
	AIDPF2  AID = 0xF2
	AIDPF3  AID = 0xF3
	AIDPF4  AID = 0xF4
	AIDPF5  AID = 0xF5
	AIDPF6  AID = 0xF6
	AIDPF7  AID = 0xF7
	AIDPF8  AID = 0xF8
	AIDPF9  AID = 0xF9
	AIDPF10 AID = 0x7A
	AIDPF11 AID = 0x7B
	AIDPF12 AID = 0x7C
	AIDPF13 AID = 0xC1
	AIDPF14 AID = 0xC2
	AIDPF15 AID = 0xC3
	AIDPF16 AID = 0xC4
	AIDPF17 AID = 0xC5
	AIDPF18 AID = 0xC6
	AIDPF19 AID = 0xC7
	AIDPF20 AID = 0xC8
	AIDPF21 AID = 0xC9
	AIDPF22 AID = 0x4A
	AIDPF23 AID = 0x4B
	AIDPF24 AID = 0x4C
)

// PF returns the AID for PF key n (1-24).
func PF(n int) AID {
	switch {
	case n >= 1 && n <= 9:
		return AID(0xF0 + byte(n))
	case n >= 10 && n <= 12:
		return AID(0x7A + byte(n-10))
	case n >= 13 && n <= 21:
		return AID(0xC1 + byte(n-13))
	case n == 22:
		return AIDPF22
	case n == 23:
		return AIDPF23
	case n == 24:
		return AIDPF24
	}
	return AIDNone
}

// PA returns the AID for PA key n (1-3).
func PA(n int) AID {
	switch n {
	case 1:
		return AIDPA1
	case 2:
		return AIDPA2
	case 3:
		return AIDPA3
	}
	return AIDNone
}

// String renders an AID as the name used in s3270 documentation and logs.
func (a AID) String() string {
	switch a {
	case AIDNone:
		return "[none]"
	case AIDEnter:
		return "Enter"
	case AIDClear:
		return "Clear"
	case AIDPA1:
		return "PA1"
	case AIDPA2:
		return "PA2"
	case AIDPA3:
		return "PA3"
	}
	for n := 1; n <= 24; n++ {
		if PF(n) == a {
			return "PF" + itoa(n)
		}
	}
	return "[unknown]"
}

// AIDByName is the inverse of AID.String: it resolves a key name (as a
// session façade's caller would spell it — "Enter", "Clear", "PF3",
// "PA1") to its AID byte. Matching is case-insensitive.
func AIDByName(name string) (AID, bool) {
	switch strings.ToLower(name) {
	case "enter":
		return AIDEnter, true
	case "clear":
		return AIDClear, true
	}
	lower := strings.ToLower(name)
	for n := 1; n <= 24; n++ {
		if lower == "pf"+itoa(n) {
			return PF(n), true
		}
	}
	for n := 1; n <= 3; n++ {
		if lower == "pa"+itoa(n) {
			return PA(n), true
		}
	}
	return AIDNone, false
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Structured field IDs.
const (
	SFIDSNAResponse  byte = 0x01
	SFIDBindImage    byte = 0x03
	SFIDUnbind       byte = 0x0F
	SFIDEraseReset   byte = 0x40
	SFIDQueryReply   byte = 0x81
	SFIDPrinterStatus byte = 0x85
)

// TN3270E header data types.
type DataType byte

const (
	DataType3270         DataType = 0x00
	DataTypeSCS          DataType = 0x01
	DataTypeResponse     DataType = 0x02
	DataTypeBindImage    DataType = 0x03
	DataTypeUnbind       DataType = 0x04
	DataTypeNVT          DataType = 0x05
	DataTypeRequest      DataType = 0x06
	DataTypeSSCPLUData   DataType = 0x07
	DataTypePrintEOJ     DataType = 0x08
	DataTypePrinterStatus DataType = 0x09
	DataTypeSNAResponse  DataType = 0x0A
)

// TN3270E response/request flags.
const (
	RequestFlagNone byte = 0x00

	ResponseFlagNoResponse   byte = 0x00
	ResponseFlagErrorOnly    byte = 0x01
	ResponseFlagAlways       byte = 0x02
)

// Header is the 5-byte TN3270E message header.
type Header struct {
	DataType      DataType
	RequestFlag   byte
	ResponseFlag  byte
	SeqNo         uint16
}

// Encode renders the header as its 5-byte wire form.
func (h Header) Encode() [5]byte {
	return [5]byte{
		byte(h.DataType), h.RequestFlag, h.ResponseFlag,
		byte(h.SeqNo >> 8), byte(h.SeqNo),
	}
}

// DecodeHeader parses a 5-byte TN3270E header.
func DecodeHeader(b []byte) (Header, bool) {
	if len(b) < 5 {
		return Header{}, false
	}
	return Header{
		DataType:     DataType(b[0]),
		RequestFlag:  b[1],
		ResponseFlag: b[2],
		SeqNo:        uint16(b[3])<<8 | uint16(b[4]),
	}, true
}
