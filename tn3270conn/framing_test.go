// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package tn3270conn

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/mrwilson/tn3270e/datastream"
)

func TestEscapeIACKnown(t *testing.T) {
	in := []byte{0x01, 0xFF, 0x02, 0xFF, 0xFF, 0x03}
	want := []byte{0x01, 0xFF, 0xFF, 0x02, 0xFF, 0xFF, 0xFF, 0xFF, 0x03}
	assert.Equal(t, want, EscapeIAC(in))
}

// Escaping then unescaping any byte sequence is the identity, and the
// escaped form never contains an unescaped IAC EOR that could split a
// record early.
func TestEscapeUnescapeIACRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.SliceOf(rapid.Byte()).Draw(t, "in")
		escaped := EscapeIAC(in)
		assert.Equal(t, append([]byte{}, in...), UnescapeIAC(escaped))
		assert.Less(t, indexEOR(escaped), 0, "escaped payload must not contain a record terminator")
	})
}

func TestRecordSplitterAccumulatesAcrossFeeds(t *testing.T) {
	var s RecordSplitter
	recs := s.Feed([]byte{0x01, 0x02})
	require.Empty(t, recs, "no complete records yet")
	recs = s.Feed([]byte{0x03, iac, eor, 0x04})
	require.Len(t, recs, 1)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, recs[0])
	recs = s.Feed([]byte{iac, eor})
	require.Len(t, recs, 1)
	assert.Equal(t, []byte{0x04}, recs[0], "the trailing partial record completes on the next feed")
}

func TestRecordSplitterSkipsEscapedIAC(t *testing.T) {
	var s RecordSplitter
	recs := s.Feed([]byte{0xC1, iac, iac, 0xC2, iac, eor})
	require.Len(t, recs, 1)
	assert.Equal(t, []byte{0xC1, iac, 0xC2}, recs[0], "the escaped IAC collapses to one literal byte")
}

// N concurrent callers of Next always receive N distinct values per wrap
// window.
func TestSeqNoGeneratorConcurrentDistinctValues(t *testing.T) {
	const n = 500
	g := &SeqNoGenerator{}
	results := make([]uint16, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i] = g.Next()
		}()
	}
	wg.Wait()

	seen := make(map[uint16]bool, n)
	for _, v := range results {
		require.False(t, seen[v], "duplicate sequence number %d", v)
		seen[v] = true
	}
	assert.Len(t, seen, n)
}

func TestFrameOutboundWithHeaderAndEscaping(t *testing.T) {
	seq := &SeqNoGenerator{}
	payload := []byte{0xC1, iac, 0xC2}
	out := FrameOutbound(true, datastream.DataType3270, payload, seq)

	h, rest, ok := SplitHeader(true, out[:len(out)-2])
	require.True(t, ok, "expected a decodable header")
	assert.Equal(t, datastream.DataType3270, h.DataType)
	assert.Equal(t, uint16(0), h.SeqNo)
	assert.Equal(t, payload, UnescapeIAC(rest))
	assert.Equal(t, []byte{iac, eor}, out[len(out)-2:])
}

func TestFrameOutboundWithoutHeader(t *testing.T) {
	out := FrameOutbound(false, datastream.DataType3270, []byte{0x01, 0x02}, &SeqNoGenerator{})
	_, rest, ok := SplitHeader(false, out[:len(out)-2])
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02}, rest, "payload is unchanged when no header is negotiated")
}
