// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dd

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// keeping accepts a removal unless the chunk holds one of the given values.
func keeping(values ...int) TryFunc[int] {
	return func(_ context.Context, chunk []int) (bool, error) {
		for _, v := range chunk {
			if slices.Contains(values, v) {
				return false, nil
			}
		}
		return true, nil
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, g int
		want []bounds
	}{
		{4, 2, []bounds{{0, 2}, {2, 4}}},
		{5, 2, []bounds{{0, 2}, {2, 5}}},
		{7, 3, []bounds{{0, 2}, {2, 4}, {4, 7}}},
		{3, 3, []bounds{{0, 1}, {1, 2}, {2, 3}}},
		{1, 1, []bounds{{0, 1}}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, partition(tt.n, tt.g))
	}
}

func TestMinimize_KeepsExactlyTheNeeded(t *testing.T) {
	got, res, err := Minimize(context.Background(), seq(10), keeping(3, 7), Options[int]{})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7}, got)
	assert.Equal(t, 8, res.Removed)
}

func TestMinimize_FixedPointIsIdempotent(t *testing.T) {
	try := keeping(1, 4, 5, 11)
	first, _, err := Minimize(context.Background(), seq(16), try, Options[int]{})
	require.NoError(t, err)

	second, res, err := Minimize(context.Background(), first, try, Options[int]{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Zero(t, res.Accepted)
	assert.Zero(t, res.Removed)
}

func TestMinimize_SinglesOnlyConverges(t *testing.T) {
	const n = 32
	singles := func(_ context.Context, chunk []int) (bool, error) {
		return len(chunk) == 1, nil
	}
	got, res, err := Minimize(context.Background(), seq(n), singles, Options[int]{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, n, res.Removed)
	assert.Equal(t, n, res.Accepted)
	assert.LessOrEqual(t, res.Tries, 2*n)
}

func TestMinimize_TriesChunksInOrder(t *testing.T) {
	var trace [][]int
	try := func(ctx context.Context, chunk []int) (bool, error) {
		trace = append(trace, slices.Clone(chunk))
		return keeping(0)(ctx, chunk)
	}
	got, res, err := Minimize(context.Background(), seq(4), try, Options[int]{})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got)
	assert.Equal(t, [][]int{{0, 1}, {2, 3}, {0}, {1}, {0}}, trace)
	assert.Equal(t, 1, res.Granularity)
}

func TestMinimize_FilterSkipsChunks(t *testing.T) {
	used := 5
	var tried [][]int
	try := func(_ context.Context, chunk []int) (bool, error) {
		tried = append(tried, slices.Clone(chunk))
		return true, nil
	}
	filter := func(chunk []int) bool { return !slices.Contains(chunk, used) }

	got, res, err := Minimize(context.Background(), seq(8), try, Options[int]{Filter: filter})
	require.NoError(t, err)
	assert.Equal(t, []int{used}, got)
	assert.Positive(t, res.Filtered)
	for _, c := range tried {
		assert.NotContains(t, c, used)
	}
}

func TestMinimize_Empty(t *testing.T) {
	calls := 0
	got, res, err := Minimize(context.Background(), nil, func(context.Context, []int) (bool, error) {
		calls++
		return true, nil
	}, Options[int]{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, calls)
	assert.Zero(t, res.Tries)
}

func TestMinimize_ErrorStops(t *testing.T) {
	boom := errors.New("flush failed")
	calls := 0
	got, _, err := Minimize(context.Background(), seq(6), func(context.Context, []int) (bool, error) {
		calls++
		return false, boom
	}, Options[int]{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, seq(6), got)
}

func TestMinimize_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	got, _, err := Minimize(ctx, seq(6), func(context.Context, []int) (bool, error) {
		calls++
		cancel()
		return false, nil
	}, Options[int]{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Len(t, got, 6)
}

func TestMinimize_DoesNotModifyInput(t *testing.T) {
	in := seq(5)
	_, _, err := Minimize(context.Background(), in, keeping(2), Options[int]{})
	require.NoError(t, err)
	assert.Equal(t, seq(5), in)
}
