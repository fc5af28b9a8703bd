// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package telnet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrwilson/tn3270e/datastream"
)

func newTestNegotiator() (*Negotiator, *[][]byte) {
	var sent [][]byte
	n := NewNegotiator(func(b []byte) error {
		cp := append([]byte(nil), b...)
		sent = append(sent, cp)
		return nil
	})
	return n, &sent
}

// Full TN3270E negotiation through device type and functions.
func TestFullTN3270ENegotiation(t *testing.T) {
	n, _ := newTestNegotiator()
	require.NoError(t, n.Start())

	var resized [2]int
	n.OnScreenResize = func(rows, cols int) { resized = [2]int{rows, cols} }

	require.NoError(t, n.HandleCommand(DO, OptEOR))
	require.NoError(t, n.HandleCommand(WILL, OptTN3270E))
	require.NoError(t, n.RequestDeviceType())
	require.NoError(t, n.HandleSubnegotiation(append([]byte{tnDeviceType, tnIs}, []byte("IBM-3279-4-E")...)))
	assert.Equal(t, "IBM-3279-4-E", n.DeviceType)
	assert.Equal(t, [2]int{43, 80}, resized)

	require.NoError(t, n.HandleSubnegotiation([]byte{tnFunctions, tnIs, 0x00, 0x02, 0x04}))
	assert.True(t, n.TN3270ENegotiated)
	assert.Equal(t, FuncBindImage|FuncResponses|FuncSysreq, n.Functions)
}

// TN3270E rejected via DONT leaves the session in classic TN3270.
func TestTN3270ERejectedFallsBack(t *testing.T) {
	n, _ := newTestNegotiator()
	require.NoError(t, n.Start())
	require.NoError(t, n.HandleCommand(DO, OptEOR))
	require.NoError(t, n.HandleCommand(DONT, OptTN3270E))
	assert.False(t, n.TN3270ENegotiated)
	assert.Equal(t, StateYes, n.State(OptEOR), "EOR stays negotiated for classic TN3270 fallback")
	assert.False(t, n.ASCIIMode, "ASCII mode must not engage when EOR survived")
}

func TestASCIIModeFallbackWhenEORAlsoRefused(t *testing.T) {
	n, _ := newTestNegotiator()
	require.NoError(t, n.Start())
	require.NoError(t, n.HandleCommand(WONT, OptEOR))
	require.NoError(t, n.HandleCommand(DONT, OptTN3270E))
	assert.True(t, n.ASCIIMode, "expected ASCII/NVT fallback when both EOR and TN3270E are refused")
}

func TestDetectASCIIModeHeuristic(t *testing.T) {
	n, _ := newTestNegotiator()
	assert.True(t, n.DetectASCIIMode([]byte{0x1B, '[', '2', 'J'}))
}

func TestDetectASCIIModeNotSetOnceTN3270ENegotiated(t *testing.T) {
	n, _ := newTestNegotiator()
	n.TN3270ENegotiated = true
	assert.False(t, n.DetectASCIIMode([]byte{0x1B, '['}))
}

// A pending subnegotiation with no terminating SE times out as a
// negotiation error and clears the pending flag.
func TestSubnegotiationTimeout(t *testing.T) {
	n, _ := newTestNegotiator()
	now := time.Unix(0, 0)
	n.StartSubnegotiation(OptTN3270E, now)

	err := n.TimeoutPendingSubnegotiation()
	require.Error(t, err)
	var ne *NegotiationError
	require.ErrorAs(t, err, &ne)
	_, pending := n.SubnegotiationDeadline()
	assert.False(t, pending, "pending flag must clear after timeout so future records are not blocked")

	// A second call, with nothing pending, must be a no-op rather than a
	// repeat error.
	assert.NoError(t, n.TimeoutPendingSubnegotiation())
}

func TestDeviceTypeRejectFallsThroughCandidates(t *testing.T) {
	n, sent := newTestNegotiator()
	n.MaxAttempts = 3
	require.NoError(t, n.RequestDeviceType())
	first := n.candidateTypes[0]
	require.NoError(t, n.HandleSubnegotiation([]byte{tnDeviceType, tnReject}))
	assert.NotEqual(t, first, n.candidateTypes[0], "the rejected candidate should be dropped")
	assert.GreaterOrEqual(t, len(*sent), 2, "a follow-up REQUEST must be sent after REJECT")
}

func TestHandleUnbindEndsEpoch(t *testing.T) {
	n, _ := newTestNegotiator()
	n.TN3270ENegotiated = true
	n.BindImage = &datastream.BindImage{Rows: 43, Cols: 80}
	n.HandleUnbind()
	assert.False(t, n.TN3270ENegotiated)
	assert.Nil(t, n.BindImage)
}

func TestHandleSNAResponseRetainsLast(t *testing.T) {
	n, _ := newTestNegotiator()
	n.HandleSNAResponse(datastream.SNAResponse{IsPositive: true})
	require.NotNil(t, n.LastSNAResponse)
	assert.True(t, n.LastSNAResponse.IsPositive)

	n.HandleSNAResponse(datastream.SNAResponse{SenseCode: 0x0801})
	assert.Equal(t, uint16(0x0801), n.LastSNAResponse.SenseCode)
}

func TestPrinterDeviceTypeDetection(t *testing.T) {
	assert.True(t, IsPrinterDeviceType("IBM-3287-1"))
	assert.False(t, IsPrinterDeviceType("IBM-3279-4-E"))
}
