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

	"github.com/AleutianAI/AleutianReduce/services/reduce/element"
)

// RedundantBlocks flattens a block whose only statement is another block.
// Each pair of braces is validated on its own, since dropping it changes
// scoping.
type RedundantBlocks struct{}

// Name implements Pass.
func (RedundantBlocks) Name() string { return NameRedundantBlocks }

// Run implements Pass.
func (p RedundantBlocks) Run(ctx context.Context, env *Env, path string) error {
	ctx, done := startPass(ctx, env, p.Name(), path)
	defer done()
	logger := env.logger().With(slog.String("pass", p.Name()))

	_, tree, err := env.load(ctx, p.Name(), path)
	if err != nil {
		return skipUnparsable(err)
	}
	defer tree.Close()

	blocks := element.CollectRedundantBlocks(tree)
	env.counters(p.Name()).Candidates += len(blocks)

	for _, b := range blocks {
		ok, err := env.Editor.TryRemove(ctx, p.Name(), b.Ranges)
		if err != nil {
			return err
		}
		logger.Debug("tried block",
			slog.String("element", b.String()),
			slog.Bool("removed", ok))
	}
	return nil
}
