// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reduce

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReduce/services/reduce/checkpoint"
	"github.com/AleutianAI/AleutianReduce/services/reduce/diag"
	"github.com/AleutianAI/AleutianReduce/services/reduce/oracle"
	"github.com/AleutianAI/AleutianReduce/services/reduce/passes"
)

const input = `static int unused_g;
static int helper(int v) { return v; }
int main(void) {
	int x = 5;
	{ { helper(1); } }
	return helper(0);
}
`

const reduced = "\nstatic int helper(int v) { return v; }\nint main(void) {\n\t\n\t{  helper(1);  }\n\treturn helper(0);\n}\n"

// keepsHelper is the test oracle: main must still return helper(0).
func keepsHelper(path string) oracle.Oracle {
	return oracle.Func(func(context.Context) (bool, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		s := string(data)
		return strings.Contains(s, "return helper(0);") && strings.Contains(s, "static int helper(int v)"), nil
	})
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bug.c")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

var xUnused = diag.Static{{Line: 4, Column: 6, Kind: diag.KindUnusedVariable, Name: "x"}}

func TestRun_AllPassesToFixedPoint(t *testing.T) {
	path := writeInput(t, input)
	r, err := New(keepsHelper(path), Options{Diagnostics: xUnused, Backup: true, RunID: "run-1"})
	require.NoError(t, err)

	report, err := r.Run(context.Background(), path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, reduced, string(data))

	orig, err := os.ReadFile(path + BackupSuffix)
	require.NoError(t, err)
	assert.Equal(t, input, string(orig))

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, len(input), report.InitialBytes)
	assert.Equal(t, len(reduced), report.FinalBytes)
	assert.Equal(t, len(input)-len(reduced), report.Removed())
	assert.Greater(t, report.Reduction(), 0.0)
	assert.Equal(t, 2, report.Rounds)
	assert.True(t, report.FixedPoint)

	byName := map[string]int{}
	calls := 0
	for _, p := range report.PerPass {
		byName[p.Name] = p.Accepted
		calls += p.OracleCalls
	}
	assert.Equal(t, 1, byName[passes.NameUnusedLocals])
	assert.Equal(t, 1, byName[passes.NameRedundantBlocks])
	assert.Equal(t, 1, byName[passes.NameGlobals])
	assert.Equal(t, report.OracleCalls, calls)
}

func TestRun_OutputIsFixedPoint(t *testing.T) {
	path := writeInput(t, reduced)
	r, err := New(keepsHelper(path), Options{Diagnostics: xUnused})
	require.NoError(t, err)

	report, err := r.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rounds)
	assert.True(t, report.FixedPoint)
	assert.Zero(t, report.Removed())
	assert.NotEmpty(t, report.RunID, "a run id is generated")

	_, err = os.Stat(path + BackupSuffix)
	assert.True(t, os.IsNotExist(err), "no backup unless asked")
}

func TestRun_NotInteresting(t *testing.T) {
	path := writeInput(t, input)
	r, err := New(oracle.Func(func(context.Context) (bool, error) { return false, nil }), Options{Backup: true})
	require.NoError(t, err)

	report, err := r.Run(context.Background(), path)
	assert.True(t, errors.Is(err, ErrNotInteresting))
	assert.Equal(t, 1, report.OracleCalls)
	assert.Equal(t, report.InitialBytes, report.FinalBytes)

	_, err = os.Stat(path + BackupSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_SanityError(t *testing.T) {
	path := writeInput(t, input)
	boom := errors.New("boom")
	r, err := New(oracle.Func(func(context.Context) (bool, error) { return false, boom }), Options{})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), path)
	assert.ErrorIs(t, err, boom)
}

func TestRun_MaxRounds(t *testing.T) {
	path := writeInput(t, input)
	r, err := New(keepsHelper(path), Options{Diagnostics: xUnused, MaxRounds: 1})
	require.NoError(t, err)

	report, err := r.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rounds)
	assert.False(t, report.FixedPoint)
}

func TestRun_KeepsExistingBackup(t *testing.T) {
	path := writeInput(t, input)
	require.NoError(t, os.WriteFile(path+BackupSuffix, []byte("earlier"), 0o644))
	r, err := New(keepsHelper(path), Options{Backup: true, Diagnostics: xUnused})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), path)
	require.NoError(t, err)
	orig, err := os.ReadFile(path + BackupSuffix)
	require.NoError(t, err)
	assert.Equal(t, "earlier", string(orig))
}

func TestRun_Checkpoints(t *testing.T) {
	path := writeInput(t, input)
	dir, err := checkpoint.NewDir(filepath.Join(t.TempDir(), "ckpt"))
	require.NoError(t, err)
	r, err := New(keepsHelper(path), Options{Diagnostics: xUnused, Recorder: dir})
	require.NoError(t, err)

	report, err := r.Run(context.Background(), path)
	require.NoError(t, err)

	entries, err := os.ReadDir(dir.Root)
	require.NoError(t, err)
	// every oracle call but the sanity check is archived
	assert.Len(t, entries, report.OracleCalls-1)
}

func TestRun_SelectedPasses(t *testing.T) {
	path := writeInput(t, input)
	only, err := passes.Lookup([]string{passes.NameGlobals})
	require.NoError(t, err)
	r, err := New(keepsHelper(path), Options{Passes: only})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "int x = 5;")
	assert.NotContains(t, string(data), "unused_g")
}

func TestRun_MissingFile(t *testing.T) {
	r, err := New(oracle.Func(func(context.Context) (bool, error) { return true, nil }), Options{})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), filepath.Join(t.TempDir(), "none.c"))
	assert.Error(t, err)
}

func TestNew_RequiresOracle(t *testing.T) {
	_, err := New(nil, Options{})
	assert.ErrorIs(t, err, ErrNoOracle)
}

func TestRun_RawBytesInLiterals(t *testing.T) {
	src := "static int dead;\nint main(void) {\n\tconst char *s = \"\xff\";\n\treturn s[0];\n}\n"
	path := writeInput(t, src)
	keepsMain := oracle.Func(func(context.Context) (bool, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return false, err
		}
		return strings.Contains(string(data), "int main(void)"), nil
	})
	r, err := New(keepsMain, Options{})
	require.NoError(t, err)

	report, err := r.Run(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, report.FixedPoint)
	assert.Equal(t, len("static int dead;"), report.Removed())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Replace(src, "static int dead;", "", 1), string(data))
}

func TestRun_UnsupportedExtensionIsNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bug.txt")
	require.NoError(t, os.WriteFile(path, []byte(input), 0o644))
	r, err := New(oracle.Func(func(context.Context) (bool, error) { return true, nil }), Options{})
	require.NoError(t, err)

	report, err := r.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rounds)
	assert.True(t, report.FixedPoint)
	assert.Equal(t, 1, report.OracleCalls, "only the sanity check")
	assert.Zero(t, report.Removed())
}
