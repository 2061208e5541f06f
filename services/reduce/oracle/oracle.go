// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle decides whether the program on disk is still interesting.
//
// An oracle is re-read from disk on every call; it never sees the reducer's
// in-memory state. A call has three outcomes: interesting (true, nil), not
// interesting (false, nil), or an invocation failure (false, err) when the
// check itself could not be carried out. Invocation failures are always
// *InvocationError values so callers can apply their own policy.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Oracle is the interestingness test.
type Oracle interface {
	// Check evaluates the current on-disk state. The bool is meaningful
	// only when err is nil.
	Check(ctx context.Context) (bool, error)
}

// Func adapts an in-process predicate to Oracle.
type Func func(ctx context.Context) (bool, error)

// Check implements Oracle.
func (f Func) Check(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Sentinel causes of an invocation failure.
var (
	// ErrTimeout indicates the check did not finish within its time limit.
	ErrTimeout = errors.New("oracle timed out")

	// ErrUnavailable indicates the check could not be started.
	ErrUnavailable = errors.New("oracle unavailable")
)

// InvocationError reports that the oracle could not produce an answer.
type InvocationError struct {
	// Command is a short description of what was run.
	Command string

	// Err is ErrTimeout, ErrUnavailable, or a context error.
	Err error

	// Output is a bounded tail of the combined output, if any.
	Output string

	// Duration is how long the failed attempt took.
	Duration time.Duration
}

// Error implements error.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("oracle %q: %v (after %s)", e.Command, e.Err, e.Duration.Round(time.Millisecond))
}

// Unwrap returns the cause.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// IsInvocationError reports whether err is an oracle invocation failure.
func IsInvocationError(err error) bool {
	var ie *InvocationError
	return errors.As(err, &ie)
}

// IsTimeout reports whether err is an oracle timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
