// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package tn3270conn

import (
	"sync"

	"github.com/mrwilson/tn3270e/datastream"
)

const (
	iac byte = 0xFF
	eor byte = 0xEF
)

// EscapeIAC doubles every literal 0xFF byte in b, the encoding a classic
// TN3270 or TN3270E record needs before it is terminated with IAC EOR.
func EscapeIAC(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == iac {
			out = append(out, iac)
		}
		out = append(out, c)
	}
	return out
}

// UnescapeIAC reverses EscapeIAC: a doubled 0xFF collapses to one literal
// byte. Input is assumed to already be split on the terminating IAC EOR.
func UnescapeIAC(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		out = append(out, b[i])
		if b[i] == iac && i+1 < len(b) && b[i+1] == iac {
			i++
		}
	}
	return out
}

// RecordSplitter accumulates inbound bytes and yields complete records
// delimited by IAC EOR, tolerating a record arriving across many reads —
// the pending-record accumulator that keeps a read split mid-header from
// corrupting anything.
type RecordSplitter struct {
	pending []byte
}

// Feed appends data to the accumulator and returns every complete,
// IAC-unescaped record now available, leaving a partial trailing record (if
// any) buffered for the next call.
func (s *RecordSplitter) Feed(data []byte) [][]byte {
	s.pending = append(s.pending, data...)
	var records [][]byte
	for {
		idx := indexEOR(s.pending)
		if idx < 0 {
			break
		}
		records = append(records, UnescapeIAC(s.pending[:idx]))
		s.pending = s.pending[idx+2:]
	}
	return records
}

// indexEOR finds the first unescaped IAC EOR (0xFF 0xEF) in b, skipping
// escaped IAC IAC pairs.
func indexEOR(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] != iac {
			continue
		}
		if b[i+1] == eor {
			return i
		}
		if b[i+1] == iac {
			i++ // escaped IAC: skip the pair
		}
	}
	return -1
}

// SeqNoGenerator produces TN3270E header sequence numbers under a small
// dedicated lock, wrapping mod 2^16: N concurrent callers always get N
// distinct values per wrap window.
type SeqNoGenerator struct {
	mu   sync.Mutex
	next uint16
}

// Next returns the next sequence number and advances the counter.
func (g *SeqNoGenerator) Next() uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.next
	g.next++
	return v
}

// FrameOutbound builds one outbound record: an optional TN3270E header (if
// tn3270e is true), the payload, IAC-escaped, terminated with IAC EOR.
func FrameOutbound(tn3270e bool, dataType datastream.DataType, payload []byte, seq *SeqNoGenerator) []byte {
	var out []byte
	if tn3270e {
		h := datastream.Header{DataType: dataType, SeqNo: seq.Next()}
		hb := h.Encode()
		out = append(out, hb[:]...)
	}
	out = append(out, EscapeIAC(payload)...)
	out = append(out, iac, eor)
	return out
}

// SplitHeader strips a 5-byte TN3270E header from record, if tn3270e is
// true, returning the header and remaining payload.
func SplitHeader(tn3270e bool, record []byte) (datastream.Header, []byte, bool) {
	if !tn3270e {
		return datastream.Header{}, record, true
	}
	h, ok := datastream.DecodeHeader(record)
	if !ok {
		return datastream.Header{}, nil, false
	}
	return h, record[5:], true
}
