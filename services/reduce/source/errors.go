// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import "errors"

// Sentinel errors for the source text store.
//
// These errors can be checked using errors.Is() to determine the
// category of failure without inspecting error messages.
var (
	// ErrInvalidRange indicates a range outside the buffer's original text
	// or with End before Start.
	ErrInvalidRange = errors.New("invalid source range")

	// ErrUnknownBuffer indicates a range or snapshot refers to a path that
	// was never opened in the store.
	ErrUnknownBuffer = errors.New("unknown source buffer")

	// ErrFileTooLarge is returned when a file cannot be addressed with
	// 32-bit offsets.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrFlushFailed indicates the in-memory state could not be written to
	// its backing file. Callers must treat this as fatal: the on-disk file
	// no longer provably matches the store.
	ErrFlushFailed = errors.New("flush failed")
)

// IsFlushFailed reports whether err is or wraps ErrFlushFailed.
func IsFlushFailed(err error) bool {
	return errors.Is(err, ErrFlushFailed)
}
