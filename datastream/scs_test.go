// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package datastream

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSink struct {
	text []string
	nl   int
	cr   int
	lf   int
	ff   int
	tab  int
	bs   int
	vt   int
}

func (f *fakeSink) WriteText(s string) { f.text = append(f.text, s) }
func (f *fakeSink) CarriageReturn()    { f.cr++ }
func (f *fakeSink) LineFeed()          { f.lf++ }
func (f *fakeSink) NewLine()           { f.nl++ }
func (f *fakeSink) FormFeed()          { f.ff++ }
func (f *fakeSink) Tab()               { f.tab++ }
func (f *fakeSink) Backspace()         { f.bs++ }
func (f *fakeSink) VerticalTab()       { f.vt++ }

func TestParseSCSControlCodes(t *testing.T) {
	p, _ := newParser()
	sink := &fakeSink{}
	// "AB" CR "CD" NL
	data := []byte{0xC1, 0xC2, scsCR, 0xC3, 0xC4, scsNL}
	p.ParseSCS(data, sink)

	assert.Equal(t, []string{"AB", "CD"}, sink.text)
	assert.Equal(t, 1, sink.cr)
	assert.Equal(t, 1, sink.nl)
}

func TestParseSCSStatusByteDeliveredToPrinterStatusCallback(t *testing.T) {
	p, _ := newParser()
	var gotCode byte
	var called bool
	p.OnPrinterStatus = func(code byte) { gotCode = code; called = true }

	data := []byte{scsSOH, 0x42, 0xC1}
	p.ParseSCS(data, &fakeSink{})
	assert.True(t, called)
	assert.Equal(t, byte(0x42), gotCode)
}

func TestParseSCSNilSinkIsNoop(t *testing.T) {
	p, _ := newParser()
	p.ParseSCS([]byte{0xC1, scsCR}, nil)
}
