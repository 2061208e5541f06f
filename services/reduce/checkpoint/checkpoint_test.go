// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(run string, seq int, ok bool) Checkpoint {
	return Checkpoint{
		RunID:    run,
		Seq:      seq,
		Pass:     "globals",
		Accepted: ok,
		Ranges:   2,
		Bytes:    17,
		Files:    map[string][]byte{"/work/t.c": []byte("int main(void){}\n")},
		At:       time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestBadger_RecordListGet(t *testing.T) {
	b, err := OpenBadger(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Record(ctx, sample("run-b", 2, false)))
	require.NoError(t, b.Record(ctx, sample("run-b", 1, true)))
	require.NoError(t, b.Record(ctx, sample("run-a", 1, true)))

	runs, err := b.Runs()
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a", "run-b"}, runs)

	list, err := b.List("run-b")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Seq)
	assert.Equal(t, 2, list[1].Seq)
	assert.Nil(t, list[0].Files)

	got, err := b.Get("run-b", 1)
	require.NoError(t, err)
	assert.Equal(t, sample("run-b", 1, true), got)

	_, err = b.Get("run-b", 9)
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Error(t, b.Record(ctx, sample("", 1, true)))
}

func TestBadger_Persistent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	b, err := OpenBadger(DefaultBadgerConfig(path))
	require.NoError(t, err)
	require.NoError(t, b.Record(context.Background(), sample("r", 1, true)))
	require.NoError(t, b.Close())

	b, err = OpenBadger(BadgerConfig{Path: path, ReadOnly: true})
	require.NoError(t, err)
	defer b.Close()
	list, err := b.List("r")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.Error(t, err)
}

func TestDir_Record(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ckpt")
	d, err := NewDir(root)
	require.NoError(t, err)

	c := sample("r", 12, false)
	c.Pass = "unused locals"
	require.NoError(t, d.Record(context.Background(), c))

	want := filepath.Join(root, "000012-unused_locals-fail", "t.c")
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "int main(void){}\n", string(data))
}

type failing struct{ calls int }

func (f *failing) Record(context.Context, Checkpoint) error {
	f.calls++
	return errors.New("disk full")
}

func TestMulti(t *testing.T) {
	f1, f2 := &failing{}, &failing{}
	m := Multi{f1, Nop{}, nil, f2}
	err := m.Record(context.Background(), sample("r", 1, true))
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, f1.calls)
	assert.Equal(t, 1, f2.calls)

	assert.NoError(t, Multi{Nop{}}.Record(context.Background(), sample("r", 1, true)))
}
