// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package editor applies tentative deletions to the source store and keeps
// them only if the oracle still finds the program interesting.
//
// Every TryRemove is a transaction: the ranges are deleted and flushed, the
// oracle is asked, and on rejection the deletions are undone and flushed
// again. When TryRemove returns, the store and the files on disk reflect
// either all of the ranges removed or none of them.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianReduce/services/reduce/checkpoint"
	"github.com/AleutianAI/AleutianReduce/services/reduce/oracle"
	"github.com/AleutianAI/AleutianReduce/services/reduce/source"
	"github.com/AleutianAI/AleutianReduce/services/reduce/stats"
)

var tracer = otel.Tracer("aleutian.reduce.editor")

// ErrOverlappingRanges indicates a TryRemove batch whose ranges intersect.
var ErrOverlappingRanges = errors.New("overlapping ranges")

// ErrorPolicy decides what an oracle invocation failure means.
type ErrorPolicy int

const (
	// TreatAsRejection rolls back and reports false, as if the oracle had
	// said "not interesting".
	TreatAsRejection ErrorPolicy = iota

	// Abort rolls back and returns the invocation error.
	Abort
)

// String returns the string representation of the policy.
func (p ErrorPolicy) String() string {
	switch p {
	case TreatAsRejection:
		return "reject"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("ErrorPolicy(%d)", int(p))
	}
}

// ParseErrorPolicy parses "reject" or "abort". The empty string is reject.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return TreatAsRejection, nil
	case "abort":
		return Abort, nil
	}
	return TreatAsRejection, fmt.Errorf("unknown oracle error policy %q", s)
}

// Option configures an Editor.
type Option func(*Editor)

// WithErrorPolicy sets the invocation failure policy.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(e *Editor) { e.policy = p }
}

// WithRecorder sets the checkpoint recorder and the run it records under.
func WithRecorder(r checkpoint.Recorder, runID string) Option {
	return func(e *Editor) {
		if r != nil {
			e.recorder = r
		}
		e.runID = runID
	}
}

// WithCounters sets the counters updated by every call.
func WithCounters(c *stats.Counters) Option {
	return func(e *Editor) {
		if c != nil {
			e.counters = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Editor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Editor is the oracle-validated transactional editor.
//
// Thread Safety: not safe for concurrent use. One TryRemove runs at a time.
type Editor struct {
	store    *source.Store
	oracle   oracle.Oracle
	policy   ErrorPolicy
	recorder checkpoint.Recorder
	runID    string
	counters *stats.Counters
	logger   *slog.Logger
	seq      int
}

// New creates an Editor over store validated by o.
func New(store *source.Store, o oracle.Oracle, opts ...Option) *Editor {
	e := &Editor{
		store:    store,
		oracle:   o,
		recorder: checkpoint.Nop{},
		counters: stats.New(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(slog.String("component", "editor.Editor"))
	return e
}

// Calls returns the number of oracle calls made so far.
func (e *Editor) Calls() int {
	return e.seq
}

// Counters returns the counters the editor updates.
func (e *Editor) Counters() *stats.Counters {
	return e.counters
}

// Check asks the oracle about the current state without changing anything.
// The call is counted but not checkpointed.
func (e *Editor) Check(ctx context.Context, pass string) (bool, error) {
	e.seq++
	e.counters.Pass(pass).OracleCalls++
	return e.oracle.Check(ctx)
}

// TryRemove deletes ranges if and only if the oracle accepts the result.
//
// Description:
//
//	1. Captures the visible text of every range and deletes it.
//	2. Flushes every modified buffer.
//	3. Asks the oracle.
//	4. On acceptance the deletion is permanent. On rejection every range is
//	   restored and the buffers are flushed again.
//
//	An empty batch is trivially accepted without asking the oracle.
//	Ranges must be pairwise disjoint; they may be given in any order.
//
// Inputs:
//   - ctx: Cancellation for the oracle call.
//   - pass: Name of the calling pass, for counters and checkpoints.
//   - ranges: The batch to delete.
//
// Outputs:
//   - bool: True if the deletion was committed.
//   - error: Wraps source.ErrFlushFailed if the on-disk state could not be
//     brought in line with the store, which is fatal for the run. Under the
//     Abort policy an *oracle.InvocationError is returned after rollback.
//     Context cancellation and oracle errors that are not invocation
//     failures are returned after rollback under either policy.
func (e *Editor) TryRemove(ctx context.Context, pass string, ranges []source.Range) (bool, error) {
	if len(ranges) == 0 {
		return true, nil
	}
	sorted, err := normalize(ranges)
	if err != nil {
		return false, err
	}

	ctx, span := tracer.Start(ctx, "editor.try_remove",
		trace.WithAttributes(
			attribute.String("reduce.pass", pass),
			attribute.Int("reduce.ranges", len(sorted)),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	counters := e.counters.Pass(pass)
	before := e.store.Len()

	tx := make([]source.Snapshot, 0, len(sorted))
	for _, r := range sorted {
		snap, err := e.store.Delete(r)
		if err != nil {
			e.rollback(tx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return false, fmt.Errorf("delete %s: %w", r, err)
		}
		tx = append(tx, snap)
	}
	if err := e.store.Flush(); err != nil {
		e.rollback(tx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	removed := before - e.store.Len()

	e.seq++
	seq := e.seq
	counters.OracleCalls++
	start := time.Now()
	ok, oerr := e.oracle.Check(ctx)
	elapsed := time.Since(start)

	if oerr != nil {
		counters.InvocationErrors++
		cause := "other"
		if oracle.IsTimeout(oerr) {
			counters.Timeouts++
			cause = "timeout"
		} else if errors.Is(oerr, oracle.ErrUnavailable) {
			cause = "unavailable"
		}
		recordOracleError(ctx, pass, cause)
		e.logger.Warn("oracle invocation failed",
			slog.String("pass", pass),
			slog.Int("seq", seq),
			slog.String("error", oerr.Error()))
		ok = false
	}

	e.notify(ctx, checkpoint.Checkpoint{
		RunID:    e.runID,
		Seq:      seq,
		Pass:     pass,
		Accepted: ok,
		Ranges:   len(sorted),
		Bytes:    removed,
	})

	if ok {
		counters.Accepted++
		counters.BytesRemoved += removed
		recordTry(ctx, pass, "accepted", elapsed, removed)
		span.SetAttributes(attribute.Bool("reduce.accepted", true), attribute.Int("reduce.bytes_removed", removed))
		span.SetStatus(codes.Ok, "")
		e.logger.Debug("removal accepted",
			slog.String("pass", pass),
			slog.Int("seq", seq),
			slog.Int("bytes", removed),
			slog.Duration("oracle", elapsed))
		return true, nil
	}

	counters.Rejected++
	recordTry(ctx, pass, "rejected", elapsed, 0)
	e.rollback(tx)
	if err := e.store.Flush(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetAttributes(attribute.Bool("reduce.accepted", false))

	if oerr != nil && (e.policy == Abort || !oracle.IsInvocationError(oerr) || ctx.Err() != nil) {
		span.RecordError(oerr)
		span.SetStatus(codes.Error, oerr.Error())
		return false, oerr
	}
	span.SetStatus(codes.Ok, "")
	return false, nil
}

// rollback restores snapshots in reverse order.
func (e *Editor) rollback(tx []source.Snapshot) {
	for i := len(tx) - 1; i >= 0; i-- {
		if err := e.store.Restore(tx[i]); err != nil {
			// snapshots come from this store; failure means a bug
			e.logger.Error("restore failed",
				slog.String("range", tx[i].Range.String()),
				slog.String("error", err.Error()))
		}
	}
}

// notify hands the checkpoint to the recorder. Errors are logged only.
func (e *Editor) notify(ctx context.Context, c checkpoint.Checkpoint) {
	if _, nop := e.recorder.(checkpoint.Nop); nop {
		return
	}
	c.Files = e.store.Contents()
	c.At = time.Now().UTC()
	if err := e.recorder.Record(ctx, c); err != nil {
		recordCheckpointError(ctx)
		e.logger.Warn("checkpoint failed",
			slog.Int("seq", c.Seq),
			slog.String("error", err.Error()))
	}
}

// normalize sorts a copy of ranges and rejects overlaps.
func normalize(ranges []source.Range) ([]source.Range, error) {
	sorted := make([]source.Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].Start < sorted[j].Start
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Overlaps(sorted[i-1]) {
			return nil, fmt.Errorf("%w: %s and %s", ErrOverlappingRanges, sorted[i-1], sorted[i])
		}
	}
	return sorted, nil
}
