// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint archives the intermediate states of a reduction.
//
// The editor notifies a Recorder after every oracle round-trip with the pass
// name, the outcome and the text the oracle saw. Recording is advisory: a
// failing recorder is logged and never stops the reduction.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Checkpoint is one archived oracle round-trip.
type Checkpoint struct {
	// RunID identifies the reduction run.
	RunID string `json:"run_id"`

	// Seq is the 1-based oracle call number within the run.
	Seq int `json:"seq"`

	// Pass is the pass that made the attempt.
	Pass string `json:"pass"`

	// Accepted is the oracle verdict.
	Accepted bool `json:"accepted"`

	// Ranges is the number of ranges the attempt removed.
	Ranges int `json:"ranges"`

	// Bytes is the number of bytes the attempt removed.
	Bytes int `json:"bytes"`

	// Files is the on-disk text the oracle was asked about, by path.
	Files map[string][]byte `json:"files,omitempty"`

	// At is when the verdict was recorded.
	At time.Time `json:"at"`
}

// Outcome returns "ok" or "fail".
func (c Checkpoint) Outcome() string {
	if c.Accepted {
		return "ok"
	}
	return "fail"
}

// Recorder receives checkpoints.
type Recorder interface {
	Record(ctx context.Context, c Checkpoint) error
}

// Nop discards checkpoints.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Checkpoint) error { return nil }

// Multi fans a checkpoint out to several recorders. Every recorder is called;
// their errors are joined.
type Multi []Recorder

// Record implements Recorder.
func (m Multi) Record(ctx context.Context, c Checkpoint) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
