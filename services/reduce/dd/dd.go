// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dd is the delta debugging search engine.
//
// Minimize removes chunks of a candidate set for as long as the caller's
// try function accepts them, refining the chunk granularity until every
// remaining element has been tried on its own. The result is 1-minimal with
// respect to try: no single remaining element can be removed alone.
//
// The search is deterministic given a deterministic try function. Chunks are
// tried in candidate order and a rejected chunk is never retried at the same
// granularity, so a flaky oracle is not compensated for.
package dd

import (
	"context"
	"log/slog"
)

// TryFunc attempts to remove chunk atomically and reports whether the
// removal was kept. An error aborts the search.
type TryFunc[T any] func(ctx context.Context, chunk []T) (bool, error)

// FilterFunc reports whether chunk is worth trying at all.
type FilterFunc[T any] func(chunk []T) bool

// Options configures Minimize.
type Options[T any] struct {
	// Filter skips chunks before they reach try. Nil tries every chunk.
	Filter FilterFunc[T]

	// Logger receives granularity changes. Nil uses slog.Default().
	Logger *slog.Logger
}

// Result summarizes a search.
type Result struct {
	// Tries is the number of try calls.
	Tries int

	// Accepted is the number of chunks removed.
	Accepted int

	// Removed is the number of elements removed.
	Removed int

	// Filtered is the number of chunks the filter skipped.
	Filtered int

	// Granularity is the chunk count at termination.
	Granularity int
}

// Minimize runs the search over set and returns the elements that remain.
//
// Description:
//
//	The set is split into g contiguous chunks, starting at g = 2; the last
//	chunk absorbs the remainder. Chunks the filter rejects are skipped.
//	The first chunk try accepts is dropped from the set and partitioning
//	restarts at the same g (clamped to the new size). When a whole round
//	at g removes nothing, g doubles, up to the size of the set. A round at
//	g equal to the set size that removes nothing ends the search.
//
// Inputs:
//   - ctx: Checked between tries; cancellation returns the current set.
//   - set: Candidates in declaration order. Not modified.
//   - try: Atomic removal attempt.
//   - opts: Filter and logger.
//
// Outputs:
//   - []T: The remaining elements, in the original order.
//   - Result: Counters.
//   - error: The first error from try, or the context error.
func Minimize[T any](ctx context.Context, set []T, try TryFunc[T], opts Options[T]) ([]T, Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cur := make([]T, len(set))
	copy(cur, set)
	var res Result

	g := 2
	for len(cur) > 0 {
		if g > len(cur) {
			g = len(cur)
		}
		res.Granularity = g

		removed := false
		for _, c := range partition(len(cur), g) {
			if err := ctx.Err(); err != nil {
				return cur, res, err
			}
			chunk := cur[c.start:c.end]
			if opts.Filter != nil && !opts.Filter(chunk) {
				res.Filtered++
				continue
			}
			res.Tries++
			ok, err := try(ctx, chunk)
			if err != nil {
				return cur, res, err
			}
			if !ok {
				continue
			}
			res.Accepted++
			res.Removed += c.end - c.start
			next := make([]T, 0, len(cur)-(c.end-c.start))
			next = append(next, cur[:c.start]...)
			next = append(next, cur[c.end:]...)
			cur = next
			removed = true
			break
		}
		if removed {
			continue
		}
		if g >= len(cur) {
			break
		}
		g *= 2
		if g > len(cur) {
			g = len(cur)
		}
		logger.Debug("refining granularity",
			slog.Int("granularity", g),
			slog.Int("remaining", len(cur)))
	}
	return cur, res, nil
}

// bounds is a half-open index range into the candidate slice.
type bounds struct {
	start, end int
}

// partition splits n items into g contiguous chunks of size n/g, the last
// one taking the remainder. Requires 1 <= g <= n.
func partition(n, g int) []bounds {
	size := n / g
	out := make([]bounds, 0, g)
	for i := 0; i < g; i++ {
		start := i * size
		end := start + size
		if i == g-1 {
			end = n
		}
		out = append(out, bounds{start, end})
	}
	return out
}
