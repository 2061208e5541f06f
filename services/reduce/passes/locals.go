// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package passes

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AleutianAI/AleutianReduce/services/reduce/diag"
	"github.com/AleutianAI/AleutianReduce/services/reduce/element"
)

// UnusedLocals removes local variables and labels the compiler reports as
// unused, one validated deletion per element.
type UnusedLocals struct{}

// Name implements Pass.
func (UnusedLocals) Name() string { return NameUnusedLocals }

// Run implements Pass.
//
// Description:
//
//	Candidates come from the diagnostics source, not from a use analysis.
//	Each warning is mapped to the innermost removable local or label whose
//	extent contains it. Warnings with no removable element, such as a
//	variable initialized by a call, are dropped. Each candidate is then
//	tried on its own.
//
//	A diagnostics failure skips the pass with a warning; it is not an error
//	for the run.
func (p UnusedLocals) Run(ctx context.Context, env *Env, path string) error {
	ctx, done := startPass(ctx, env, p.Name(), path)
	defer done()
	logger := env.logger().With(slog.String("pass", p.Name()))

	if env.Diagnostics == nil {
		logger.Warn("no diagnostics source configured, skipping")
		return nil
	}
	buf, tree, err := env.load(ctx, p.Name(), path)
	if err != nil {
		return skipUnparsable(err)
	}
	defer tree.Close()

	locs, err := env.Diagnostics.Unused(ctx, buf.Path())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Warn("diagnostics unavailable, skipping",
			slog.String("error", err.Error()),
			slog.Bool("timeout", errors.Is(err, diag.ErrCompilerTimeout)))
		return nil
	}

	universe := element.CollectLocals(tree, logger)
	var candidates []element.Element
	seen := make(map[element.Handle]bool)
	for _, loc := range locs {
		off, ok := buf.LineOffset(loc.Line, loc.Column)
		if !ok {
			logger.Debug("diagnostic outside file", slog.String("location", loc.String()))
			continue
		}
		kind := element.KindLocal
		if loc.Kind == diag.KindUnusedLabel {
			kind = element.KindLabel
		}
		e, ok := element.Resolve(universe, kind, off, loc.Name)
		if !ok {
			logger.Debug("no removable element for diagnostic", slog.String("location", loc.String()))
			continue
		}
		if seen[e.Handle] {
			continue
		}
		seen[e.Handle] = true
		candidates = append(candidates, e)
	}

	env.counters(p.Name()).Candidates += len(candidates)
	logger.Debug("collected unused locals",
		slog.Int("diagnostics", len(locs)),
		slog.Int("candidates", len(candidates)))

	for _, e := range candidates {
		ok, err := env.Editor.TryRemove(ctx, p.Name(), e.Ranges)
		if err != nil {
			return err
		}
		logger.Debug("tried local",
			slog.String("element", e.String()),
			slog.Bool("removed", ok))
	}
	return nil
}
