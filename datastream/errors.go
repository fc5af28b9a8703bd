// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package datastream

import "fmt"

// ParseError is raised for a critical parse failure: an order left
// incomplete by the end of a record. Encountering one means the whole
// write has already been rolled back by the time this error reaches the
// caller.
type ParseError struct {
	Reason string
	Offset int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("datastream: parse error at offset %d: %s", e.Offset, e.Reason)
}
