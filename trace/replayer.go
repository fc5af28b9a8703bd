// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package trace

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/mrwilson/tn3270e/datastream"
	"github.com/mrwilson/tn3270e/ebcdic"
	"github.com/mrwilson/tn3270e/screen"
)

// traceLine matches "< 0xOFFSET HEXDATA" or "> 0xOFFSET HEXDATA": a
// direction marker, a byte offset, and the record's hex-encoded bytes.
var traceLine = regexp.MustCompile(`^[<>]\s+0x[0-9a-fA-F]+\s+([0-9a-fA-F]+)`)

// Result is the reconstructed state after replaying a trace.
type Result struct {
	Buf           *screen.ScreenBuffer
	RecordsTotal  int
	RecordsParsed int
}

// Replayer feeds a recorded trace file's records through a data-stream
// parser to reconstruct screen state for offline inspection.
type Replayer struct {
	Buf    *screen.ScreenBuffer
	Parser *datastream.Parser
}

// NewReplayer constructs a Replayer with a fresh 24x80 screen buffer under
// the given code page.
func NewReplayer(cp ebcdic.Codepage) *Replayer {
	buf := screen.NewScreenBuffer(24, 80, cp)
	return &Replayer{
		Buf:    buf,
		Parser: &datastream.Parser{Buf: buf, Codepage: cp},
	}
}

// ReplayFile parses the lines of the file at path and feeds every decodable record
// through the parser, skipping and continuing past any record that fails
// to parse (a malformed trace line should never abort the whole replay).
func (r *Replayer) ReplayFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return r.Replay(f)
}

// Replay is ReplayFile without the filesystem dependency, for callers that
// already have the trace content in memory.
func (r *Replayer) Replay(src io.Reader) (Result, error) {
	records, err := parseTraceLines(src)
	if err != nil {
		return Result{}, fmt.Errorf("trace: %w", err)
	}

	res := Result{Buf: r.Buf, RecordsTotal: len(records)}
	for _, rec := range records {
		payload := stripFramingNoise(rec)
		if len(payload) == 0 {
			continue
		}
		if err := r.Parser.Parse(payload); err != nil {
			continue
		}
		res.RecordsParsed++
	}
	return res, nil
}

func parseTraceLines(src io.Reader) ([][]byte, error) {
	var records [][]byte
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := scanner.Text()
		m := traceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		data, err := hex.DecodeString(m[1])
		if err != nil {
			continue
		}
		records = append(records, data)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// stripFramingNoise drops a leading TN3270E 5-byte header, if the record is
// long enough to plausibly carry one and its data-type byte names a known
// TN3270E data type, so a trace line capturing raw wire bytes (header and
// all) still resolves to a parseable 3270-DATA payload. A record that starts
// with a Telnet IAC WILL/WONT/DO/DONT command is dropped whole (nil).
func stripFramingNoise(rec []byte) []byte {
	if len(rec) >= 2 && rec[0] == 0xFF && (rec[1] == 0xFB || rec[1] == 0xFC || rec[1] == 0xFD || rec[1] == 0xFE) {
		return nil // a bare Telnet command line, not a data-stream record
	}
	if len(rec) >= 5 && isKnownDataType(rec[0]) {
		return rec[5:]
	}
	return rec
}

func isKnownDataType(b byte) bool {
	switch datastream.DataType(b) {
	case datastream.DataType3270, datastream.DataTypeSCS, datastream.DataTypeResponse,
		datastream.DataTypeBindImage, datastream.DataTypeUnbind, datastream.DataTypeNVT,
		datastream.DataTypeRequest, datastream.DataTypeSSCPLUData, datastream.DataTypePrintEOJ,
		datastream.DataTypePrinterStatus, datastream.DataTypeSNAResponse:
		return true
	}
	return false
}
