// This file is part of https://github.com/mrwilson/tn3270e/
// Copyright 2025 by Matthew R. Wilson, licensed under the MIT license. See
// LICENSE in the project root for license information.

package session

// Step is one stage of a scripted client interaction against a Session: it
// is called with the session and a "data" value carried over from the
// previous step, and returns the next step to run (or nil to stop), the
// data to pass into it, and any error. A non-nil error stops the run and
// is not passed to a further step. Useful for scripting a login, a menu
// walk, or any other multi-screen mainframe dialogue as a chain of steps
// instead of one long function.
type Step func(s *Session, data any) (next Step, newdata any, err error)

// RunSteps drives a Session through a chain of Steps starting at initial,
// passing data through as each step directs, until a step returns a nil
// next step or a non-nil error.
func RunSteps(s *Session, initial Step, data any) error {
	next := initial
	var err error
	for {
		next, data, err = next(s, data)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
	}
}
