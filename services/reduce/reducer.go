// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reduce shrinks a C or C++ source file while an oracle keeps
// reporting it as interesting.
//
// A Reducer runs a list of passes over the file, round after round, until a
// round commits nothing or the round limit is reached. Every edit is made in
// place through a transactional editor, so the file on disk is always the
// last state the oracle accepted.
//
// # Usage
//
//	o := oracle.NewShell("./crashes.sh", dir, time.Minute, logger)
//	r, err := reduce.New(o, reduce.Options{Diagnostics: diag.NewCompilerSource("", nil, logger)})
//	if err != nil {
//	    return err
//	}
//	report, err := r.Run(ctx, "bug.c")
package reduce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianReduce/services/reduce/ast"
	"github.com/AleutianAI/AleutianReduce/services/reduce/checkpoint"
	"github.com/AleutianAI/AleutianReduce/services/reduce/deps"
	"github.com/AleutianAI/AleutianReduce/services/reduce/diag"
	"github.com/AleutianAI/AleutianReduce/services/reduce/editor"
	"github.com/AleutianAI/AleutianReduce/services/reduce/oracle"
	"github.com/AleutianAI/AleutianReduce/services/reduce/passes"
	"github.com/AleutianAI/AleutianReduce/services/reduce/source"
	"github.com/AleutianAI/AleutianReduce/services/reduce/stats"
	"github.com/AleutianAI/AleutianReduce/services/reduce/telemetry"
)

var tracer = otel.Tracer("aleutian.reduce")

// Sentinel errors for a reduction run.
var (
	// ErrNotInteresting indicates the oracle rejected the unmodified input.
	ErrNotInteresting = errors.New("input is not interesting to the oracle")

	// ErrNoOracle indicates a Reducer built without an oracle.
	ErrNoOracle = errors.New("oracle is required")
)

// BackupSuffix is appended to the input path for the pre-run copy.
const BackupSuffix = ".orig"

// SanityPass is the counter name of the initial oracle check.
const SanityPass = "sanity"

// Options configures a Reducer. The zero value runs the default passes for
// up to DefaultMaxRounds rounds without backup or checkpoints.
type Options struct {
	// Passes run in order every round. Nil runs passes.DefaultOrder.
	Passes []passes.Pass

	// MaxRounds bounds the number of rounds. Zero means DefaultMaxRounds.
	MaxRounds int

	// Policy selects how the globals pass counts uses.
	Policy deps.Policy

	// ErrorPolicy decides what an oracle invocation failure means.
	ErrorPolicy editor.ErrorPolicy

	// Diagnostics feeds the unused-locals pass. Nil skips that pass.
	Diagnostics diag.Source

	// Recorder receives a checkpoint per oracle call. Nil records nothing.
	Recorder checkpoint.Recorder

	// Backup writes <file>.orig before the first edit, unless it exists.
	Backup bool

	// RunID names the run in checkpoints. Empty generates a UUID.
	RunID string

	// Logger. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultMaxRounds is the round limit when Options.MaxRounds is zero.
const DefaultMaxRounds = 8

// Report summarizes a run.
type Report struct {
	RunID string
	File  string

	// InitialBytes and FinalBytes are the file sizes before and after.
	InitialBytes int
	FinalBytes   int

	// Rounds is the number of rounds started.
	Rounds int

	// FixedPoint is true if the last round committed nothing.
	FixedPoint bool

	// OracleCalls includes the sanity check.
	OracleCalls int

	// PerPass holds the counters of every pass, in first-use order.
	PerPass []stats.Pass

	Duration time.Duration
}

// Removed returns the number of bytes the run deleted.
func (r Report) Removed() int {
	return r.InitialBytes - r.FinalBytes
}

// Reduction returns the removed fraction of the input, 0 for an empty input.
func (r Report) Reduction() float64 {
	if r.InitialBytes == 0 {
		return 0
	}
	return float64(r.Removed()) / float64(r.InitialBytes)
}

// Reducer runs the pass pipeline against one oracle.
//
// Thread Safety: not safe for concurrent use; runs are sequential.
type Reducer struct {
	oracle oracle.Oracle
	opts   Options
	logger *slog.Logger
}

// New creates a Reducer.
func New(o oracle.Oracle, opts Options) (*Reducer, error) {
	if o == nil {
		return nil, ErrNoOracle
	}
	if opts.Passes == nil {
		ps, err := passes.Lookup(passes.DefaultOrder)
		if err != nil {
			return nil, err
		}
		opts.Passes = ps
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reducer{
		oracle: o,
		opts:   opts,
		logger: logger.With(slog.String("component", "reduce.Reducer")),
	}, nil
}

// Run reduces the file at path in place.
//
// Description:
//
//	Asks the oracle about the untouched file first; a rejection returns
//	ErrNotInteresting without writing anything. Then writes the backup and
//	runs the passes round by round, re-reading the file before each pass,
//	until a round removes nothing or MaxRounds is reached.
//
// Outputs:
//   - Report: Filled in as far as the run got, also on error.
//   - error: ErrNotInteresting, a storage failure (wrapping
//     source.ErrFlushFailed), cancellation, or an oracle error surfaced by
//     the editor's policy.
func (r *Reducer) Run(ctx context.Context, path string) (report Report, err error) {
	start := time.Now()
	runID := r.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "reduce.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(
		attribute.String("reduce.run_id", runID),
		attribute.String("reduce.file", path),
	)
	logger := telemetry.LoggerWithTrace(ctx, r.logger).With(slog.String("run_id", runID))

	store := source.NewStore(logger)
	buf, err := store.Open(path)
	if err != nil {
		return Report{RunID: runID, File: path}, err
	}
	path = buf.Path()
	counters := stats.New()
	report = Report{RunID: runID, File: path, InitialBytes: buf.Size(), FinalBytes: buf.Size()}

	ed := editor.New(store, r.oracle,
		editor.WithErrorPolicy(r.opts.ErrorPolicy),
		editor.WithRecorder(r.opts.Recorder, runID),
		editor.WithCounters(counters),
		editor.WithLogger(logger),
	)
	defer func() {
		report.OracleCalls = ed.Calls()
		report.PerPass = counters.Passes()
		report.Duration = time.Since(start)
		if info, statErr := os.Stat(path); statErr == nil {
			report.FinalBytes = int(info.Size())
		}
	}()

	ok, err := ed.Check(ctx, SanityPass)
	if err != nil {
		return report, fmt.Errorf("sanity check: %w", err)
	}
	if !ok {
		return report, ErrNotInteresting
	}

	if r.opts.Backup {
		if err := backup(path, buf.Original(), logger); err != nil {
			return report, err
		}
	}

	env := &passes.Env{
		Store:       store,
		Editor:      ed,
		Parser:      ast.NewParser(ast.WithLogger(logger)),
		Diagnostics: r.opts.Diagnostics,
		Policy:      r.opts.Policy,
		Logger:      logger,
	}

	for round := 1; round <= r.opts.MaxRounds; round++ {
		report.Rounds = round
		before := counters.Total().Accepted
		for _, p := range r.opts.Passes {
			if err := p.Run(ctx, env, path); err != nil {
				return report, fmt.Errorf("round %d, pass %s: %w", round, p.Name(), err)
			}
		}
		accepted := counters.Total().Accepted - before
		logger.Info("round complete",
			slog.Int("round", round),
			slog.Int("accepted", accepted),
			slog.Int("bytes", store.Len()))
		if accepted == 0 {
			report.FixedPoint = true
			break
		}
	}
	span.SetAttributes(
		attribute.Int("reduce.rounds", report.Rounds),
		attribute.Bool("reduce.fixed_point", report.FixedPoint),
	)
	return report, nil
}

// backup writes content to path+BackupSuffix unless that file exists, in
// which case it holds an earlier original and is kept.
func backup(path string, content []byte, logger *slog.Logger) error {
	dst := path + BackupSuffix
	if _, err := os.Stat(dst); err == nil {
		logger.Info("backup exists, keeping it", slog.String("path", dst))
		return nil
	}
	if err := os.WriteFile(dst, content, 0o644); err != nil {
		return fmt.Errorf("write backup %s: %w", dst, err)
	}
	logger.Debug("wrote backup", slog.String("path", dst))
	return nil
}
