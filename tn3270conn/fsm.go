// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

// Package tn3270conn owns the connection lifecycle: the state machine,
// record framing (IAC escaping, EOR, TN3270E headers), and sequence number
// generation.
package tn3270conn

import "sync"

// State is one node of the connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Negotiating
	Connected
	ASCIIMode
	TN3270Mode
	Error
	Recovering
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Negotiating:
		return "NEGOTIATING"
	case Connected:
		return "CONNECTED"
	case ASCIIMode:
		return "ASCII_MODE"
	case TN3270Mode:
		return "TN3270_MODE"
	case Error:
		return "ERROR"
	case Recovering:
		return "RECOVERING"
	case Closing:
		return "CLOSING"
	}
	return "UNKNOWN"
}

// transitions is the fixed adjacency table for the connection lifecycle:
// DISCONNECTED → CONNECTING → NEGOTIATING → CONNECTED →
// {ASCII_MODE|TN3270_MODE} → (ERROR|RECOVERING)* → CLOSING → DISCONNECTED.
var transitions = map[State]map[State]bool{
	Disconnected: {Connecting: true},
	Connecting:   {Negotiating: true, Error: true, Closing: true},
	Negotiating:  {Connected: true, Error: true, Closing: true},
	Connected:    {ASCIIMode: true, TN3270Mode: true, Error: true, Closing: true},
	ASCIIMode:    {Error: true, Recovering: true, Closing: true},
	TN3270Mode:   {Error: true, Recovering: true, Closing: true},
	Error:        {Recovering: true, Closing: true},
	Recovering:   {Connecting: true, Error: true, Closing: true},
	Closing:      {Disconnected: true},
}

// IsValidTransition reports whether moving from s1 to s2 is permitted. It
// is a pure function of the fixed table above: it consults
// no mutable state, so its answer for any (s1, s2) pair never changes
// across any number of successful transitions elsewhere.
func IsValidTransition(s1, s2 State) bool {
	return transitions[s1][s2]
}

// TransitionRecord is one entry of the state machine's bounded history.
type TransitionRecord struct {
	State     State
	Timestamp int64 // unix nanoseconds, supplied by the caller
	Reason    string
}

// StateMachine guards connection state behind a single lock:
// reads of the current state take that lock too, and transition
// counters/history share it so they can never observe a transition only
// partially applied.
type StateMachine struct {
	mu      sync.Mutex
	current State
	history []TransitionRecord
	counts  map[State]int
	maxHist int

	onChange []func(from, to State)
}

// NewStateMachine constructs a machine starting at DISCONNECTED, retaining
// at most maxHistory transition records (0 means unbounded).
func NewStateMachine(maxHistory int) *StateMachine {
	return &StateMachine{
		current: Disconnected,
		counts:  make(map[State]int),
		maxHist: maxHistory,
	}
}

// Current returns the machine's current state. It is read under the state
// lock, so it is never torn, though it may be stale by the time the caller acts on it — callers needing a
// consistent read-then-transition should use Transition's return value
// instead.
func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// OnChange registers a callback fired synchronously, under the state lock,
// on every successful transition. Registration order is call order.
func (m *StateMachine) OnChange(f func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, f)
}

// Transition attempts to move to next, recording (state, timestamp,
// reason) in history and incrementing next's counter on success. Invalid
// transitions are refused (not applied) and reported via ok=false; the
// StateMachine has no logger of its own and does not log the refusal.
func (m *StateMachine) Transition(next State, timestampNanos int64, reason string) (ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !transitions[m.current][next] {
		return false
	}
	from := m.current
	m.current = next
	m.counts[next]++
	m.history = append(m.history, TransitionRecord{State: next, Timestamp: timestampNanos, Reason: reason})
	if m.maxHist > 0 && len(m.history) > m.maxHist {
		m.history = m.history[len(m.history)-m.maxHist:]
	}
	for _, f := range m.onChange {
		f(from, next)
	}
	return true
}

// History returns a copy of the retained transition history, oldest first.
func (m *StateMachine) History() []TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}

// Count returns how many times the machine has entered s.
func (m *StateMachine) Count(s State) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[s]
}
