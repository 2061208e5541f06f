// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package passes contains the reduction passes.
//
// Every pass reloads the file from disk and parses it afresh before it starts,
// so element offsets always index the text the pass begins with. Deletions go
// through the editor, which keeps the file on disk in step with the store.
package passes

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
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianReduce/services/reduce/ast"
	"github.com/AleutianAI/AleutianReduce/services/reduce/deps"
	"github.com/AleutianAI/AleutianReduce/services/reduce/diag"
	"github.com/AleutianAI/AleutianReduce/services/reduce/editor"
	"github.com/AleutianAI/AleutianReduce/services/reduce/source"
	"github.com/AleutianAI/AleutianReduce/services/reduce/stats"
)

var tracer = otel.Tracer("aleutian.reduce.passes")

// ErrUnknownPass indicates a pass name with no registered pass.
var ErrUnknownPass = errors.New("unknown pass")

// Pass names.
const (
	NameUnusedLocals    = "unused-locals"
	NameRedundantBlocks = "redundant-blocks"
	NameGlobals         = "globals"
)

// Env is everything a pass needs. It is shared by all passes of a run.
type Env struct {
	// Store holds the file being reduced. Passes reopen it before they start.
	Store *source.Store

	// Editor performs every deletion.
	Editor *editor.Editor

	// Parser builds the tree each pass collects from.
	Parser *ast.Parser

	// Diagnostics supplies unused-entity warnings. Required by unused-locals.
	Diagnostics diag.Source

	// Policy is how the globals pass evaluates use counts.
	Policy deps.Policy

	// Logger. Nil uses slog.Default().
	Logger *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// counters returns the counters of pass name.
func (e *Env) counters(name string) *stats.Pass {
	return e.Editor.Counters().Pass(name)
}

// errUnparsable marks a file the front end cannot handle. The pass that
// hits it is skipped; the run goes on.
var errUnparsable = errors.New("file cannot be parsed")

// load reopens path and parses its current content. A parse failure other
// than cancellation is logged and returned wrapping errUnparsable.
func (e *Env) load(ctx context.Context, pass, path string) (*source.Buffer, *ast.Tree, error) {
	buf, err := e.Store.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	tree, err := e.Parser.Parse(ctx, buf.Original(), buf.Path())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		e.logger().Warn("cannot parse file, skipping pass",
			slog.String("pass", pass),
			slog.String("file", buf.Path()),
			slog.Bool("unsupported_language", ast.IsUnsupportedLanguage(err)),
			slog.String("error", err.Error()))
		return nil, nil, fmt.Errorf("%w: %w", errUnparsable, err)
	}
	return buf, tree, nil
}

// skipUnparsable turns a load failure caused by the front end into a
// skipped pass.
func skipUnparsable(err error) error {
	if errors.Is(err, errUnparsable) {
		return nil
	}
	return err
}

// Pass is one reduction strategy.
type Pass interface {
	// Name identifies the pass in counters, checkpoints and logs.
	Name() string

	// Run reduces the file at path once. It returns an error only when the
	// run cannot continue: storage failure, cancellation, or an oracle error
	// the editor's policy surfaces.
	Run(ctx context.Context, env *Env, path string) error
}

var registry = map[string]func() Pass{
	NameUnusedLocals:    func() Pass { return UnusedLocals{} },
	NameRedundantBlocks: func() Pass { return RedundantBlocks{} },
	NameGlobals:         func() Pass { return Globals{} },
}

// DefaultOrder is the order passes run in when none is configured.
var DefaultOrder = []string{NameUnusedLocals, NameRedundantBlocks, NameGlobals}

// Names returns the registered pass names in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ByName returns the pass registered under name.
func ByName(name string) (Pass, error) {
	ctor, ok := registry[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownPass, name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Lookup resolves a list of pass names, keeping their order.
func Lookup(names []string) ([]Pass, error) {
	out := make([]Pass, 0, len(names))
	for _, n := range names {
		p, err := ByName(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// startPass opens the span for a pass run and returns a function that
// closes it and books the elapsed time.
func startPass(ctx context.Context, env *Env, name, path string) (context.Context, func()) {
	ctx, span := tracer.Start(ctx, "passes."+name,
		trace.WithAttributes(
			attribute.String("reduce.pass", name),
			attribute.String("reduce.file", path),
		),
	)
	start := time.Now()
	return ctx, func() {
		env.counters(name).Duration += time.Since(start)
		span.End()
	}
}
