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
	"log/slog"

	"github.com/AleutianAI/AleutianReduce/services/reduce/dd"
	"github.com/AleutianAI/AleutianReduce/services/reduce/deps"
	"github.com/AleutianAI/AleutianReduce/services/reduce/element"
)

// Globals delta-debugs the top-level declarations of the file. The entry
// point is never a candidate.
type Globals struct{}

// Name implements Pass.
func (Globals) Name() string { return NameGlobals }

// Run implements Pass.
//
// Description:
//
//	Collects every top-level declaration, attributes name references to
//	their defining declarations, and runs the search with a filter that
//	skips any chunk holding a declaration that is still used. Use counts
//	follow env.Policy: frozen at collection, or live against the store.
func (p Globals) Run(ctx context.Context, env *Env, path string) error {
	ctx, done := startPass(ctx, env, p.Name(), path)
	defer done()
	logger := env.logger().With(slog.String("pass", p.Name()))

	_, tree, err := env.load(ctx, p.Name(), path)
	if err != nil {
		return skipUnparsable(err)
	}
	defer tree.Close()

	elems := element.CollectGlobals(tree, logger)
	tracker := deps.Build(tree, elems, env.Policy, env.Store)
	counters := env.counters(p.Name())
	counters.Candidates += len(elems)

	for _, e := range elems {
		logger.Debug("global uses",
			slog.String("element", e.String()),
			slog.Int("uses", tracker.Uses(e.Handle)),
			slog.Any("sites", tracker.Sites(e.Handle)))
	}

	try := func(ctx context.Context, chunk []element.Element) (bool, error) {
		return env.Editor.TryRemove(ctx, p.Name(), element.Ranges(chunk))
	}
	left, res, err := dd.Minimize(ctx, elems, try, dd.Options[element.Element]{
		Filter: tracker.Eligible,
		Logger: logger,
	})
	counters.Filtered += res.Filtered
	if err != nil {
		return err
	}
	logger.Info("globals reduced",
		slog.Int("candidates", len(elems)),
		slog.Int("remaining", len(left)),
		slog.Any("kept", element.Handles(left)),
		slog.Int("tries", res.Tries),
		slog.Int("filtered", res.Filtered),
		slog.String("policy", tracker.Policy().String()))
	return nil
}
