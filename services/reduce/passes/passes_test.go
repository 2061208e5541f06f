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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReduce/services/reduce/ast"
	"github.com/AleutianAI/AleutianReduce/services/reduce/deps"
	"github.com/AleutianAI/AleutianReduce/services/reduce/diag"
	"github.com/AleutianAI/AleutianReduce/services/reduce/editor"
	"github.com/AleutianAI/AleutianReduce/services/reduce/oracle"
	"github.com/AleutianAI/AleutianReduce/services/reduce/source"
)

type fixture struct {
	env  *Env
	path string
}

// newFixture writes src to a temp file and builds an Env whose oracle is
// check, called with the current file content.
func newFixture(t *testing.T, src string, check func(content string) bool) *fixture {
	t.Helper()
	f := &fixture{path: filepath.Join(t.TempDir(), "t.c")}
	require.NoError(t, os.WriteFile(f.path, []byte(src), 0o644))

	store := source.NewStore(nil)
	o := oracle.Func(func(context.Context) (bool, error) {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return false, err
		}
		return check(string(data)), nil
	})
	f.env = &Env{
		Store:  store,
		Editor: editor.New(store, o),
		Parser: ast.NewParser(),
	}
	return f
}

func (f *fixture) content(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	return string(data)
}

func accept(string) bool { return true }
func reject(string) bool { return false }

const localsSrc = "int foo(void);\nint main(void) {\n\tint x = 5;\n\tint y = foo();\n\treturn 0;\n}\n"

var localsDiagnostics = diag.Static{
	{Line: 3, Column: 6, Kind: diag.KindUnusedVariable, Name: "x"},
	{Line: 4, Column: 6, Kind: diag.KindUnusedVariable, Name: "y"},
}

func TestUnusedLocals_ConstantInitializerPolicy(t *testing.T) {
	f := newFixture(t, localsSrc, accept)
	f.env.Diagnostics = localsDiagnostics

	require.NoError(t, UnusedLocals{}.Run(context.Background(), f.env, f.path))

	got := f.content(t)
	assert.Equal(t, "int foo(void);\nint main(void) {\n\t\n\tint y = foo();\n\treturn 0;\n}\n", got)
	assert.Contains(t, got, "foo();", "side-effecting initializer must survive")

	p := f.env.Editor.Counters().Pass(NameUnusedLocals)
	assert.Equal(t, 1, p.Candidates)
	assert.Equal(t, 1, p.Accepted)
	assert.Equal(t, 1, p.OracleCalls)
}

func TestUnusedLocals_Label(t *testing.T) {
	src := "void f(void) {\nunused:\n\treturn;\n}\n"
	f := newFixture(t, src, accept)
	f.env.Diagnostics = diag.Static{{Line: 2, Column: 1, Kind: diag.KindUnusedLabel, Name: "unused"}}

	require.NoError(t, UnusedLocals{}.Run(context.Background(), f.env, f.path))
	assert.Equal(t, "void f(void) {\nreturn;\n}\n", f.content(t))
}

func TestUnusedLocals_RejectedLeavesFile(t *testing.T) {
	f := newFixture(t, localsSrc, reject)
	f.env.Diagnostics = localsDiagnostics

	require.NoError(t, UnusedLocals{}.Run(context.Background(), f.env, f.path))
	assert.Equal(t, localsSrc, f.content(t))
	assert.Equal(t, 1, f.env.Editor.Counters().Pass(NameUnusedLocals).Rejected)
}

func TestUnusedLocals_DuplicateDiagnosticsTriedOnce(t *testing.T) {
	f := newFixture(t, localsSrc, reject)
	f.env.Diagnostics = diag.Static{
		{Line: 3, Column: 6, Kind: diag.KindUnusedVariable, Name: "x"},
		{Line: 3, Column: 2, Kind: diag.KindUnusedVariable},
		{Line: 99, Column: 1, Kind: diag.KindUnusedVariable, Name: "ghost"},
	}
	require.NoError(t, UnusedLocals{}.Run(context.Background(), f.env, f.path))
	assert.Equal(t, 1, f.env.Editor.Calls())
}

type failingSource struct{ err error }

func (s failingSource) Unused(context.Context, string) ([]diag.Location, error) {
	return nil, s.err
}

func TestUnusedLocals_DiagnosticsFailureSkips(t *testing.T) {
	f := newFixture(t, localsSrc, accept)
	f.env.Diagnostics = failingSource{err: diag.ErrCompilerUnavailable}

	require.NoError(t, UnusedLocals{}.Run(context.Background(), f.env, f.path))
	assert.Equal(t, localsSrc, f.content(t))
	assert.Zero(t, f.env.Editor.Calls())

	f.env.Diagnostics = nil
	require.NoError(t, UnusedLocals{}.Run(context.Background(), f.env, f.path))
}

func TestRedundantBlocks(t *testing.T) {
	src := "void g(void);\nvoid f(void) { { g(); } }\n"
	tests := []struct {
		name  string
		check func(string) bool
		want  string
	}{
		{"accepted", accept, "void g(void);\nvoid f(void) {  g();  }\n"},
		{"rejected", reject, src},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, src, tt.check)
			require.NoError(t, RedundantBlocks{}.Run(context.Background(), f.env, f.path))
			assert.Equal(t, tt.want, f.content(t))

			p := f.env.Editor.Counters().Pass(NameRedundantBlocks)
			assert.Equal(t, 1, p.Candidates)
			assert.Equal(t, 1, p.OracleCalls)
		})
	}
}

func TestRedundantBlocks_Nested(t *testing.T) {
	src := "void f(void) { { { return; } } }\n"
	f := newFixture(t, src, accept)
	require.NoError(t, RedundantBlocks{}.Run(context.Background(), f.env, f.path))
	assert.Equal(t, "void f(void) {   return;   }\n", f.content(t))
	assert.Equal(t, 2, f.env.Editor.Counters().Pass(NameRedundantBlocks).Accepted)
}

const globalsSrc = `static int unused_a;
struct S { int x; };
typedef int T;
static int helper(int v) { return v + 1; }
int main(void) { return helper(2); }
`

// needsHelper is interesting while main still calls helper and helper is
// still defined.
func needsHelper(content string) bool {
	return strings.Contains(content, "return helper(2);") &&
		strings.Contains(content, "static int helper(int v)")
}

func TestGlobals_Reduces(t *testing.T) {
	var sizes []int
	var sawHelperMissing bool
	f := newFixture(t, globalsSrc, func(content string) bool {
		if !strings.Contains(content, "static int helper(int v)") {
			sawHelperMissing = true
		}
		ok := needsHelper(content)
		if ok {
			sizes = append(sizes, len(content))
		}
		return ok
	})

	require.NoError(t, Globals{}.Run(context.Background(), f.env, f.path))
	assert.Equal(t, "\n\n\nstatic int helper(int v) { return v + 1; }\nint main(void) { return helper(2); }\n", f.content(t))
	assert.False(t, sawHelperMissing, "a used declaration must not be tried")

	for i := 1; i < len(sizes); i++ {
		assert.Less(t, sizes[i], sizes[i-1])
	}

	p := f.env.Editor.Counters().Pass(NameGlobals)
	assert.Equal(t, 4, p.Candidates)
	assert.Equal(t, 2, p.Accepted)
	assert.Positive(t, p.Filtered)
}

func TestGlobals_FixedPoint(t *testing.T) {
	f := newFixture(t, globalsSrc, needsHelper)
	require.NoError(t, Globals{}.Run(context.Background(), f.env, f.path))
	first := f.content(t)
	calls := f.env.Editor.Calls()

	require.NoError(t, Globals{}.Run(context.Background(), f.env, f.path))
	assert.Equal(t, first, f.content(t))
	assert.Equal(t, calls, f.env.Editor.Calls(), "no further oracle calls at a fixed point")
}

func TestGlobals_DependencyPolicy(t *testing.T) {
	src := "static int b(void) { return 1; }\nstatic int a(void) { return b(); }\nint main(void) { return 0; }\n"
	tests := []struct {
		policy deps.Policy
		want   string
	}{
		{deps.PolicySnapshot, "static int b(void) { return 1; }\n\nint main(void) { return 0; }\n"},
		{deps.PolicyLive, "\n\nint main(void) { return 0; }\n"},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			f := newFixture(t, src, accept)
			f.env.Policy = tt.policy
			require.NoError(t, Globals{}.Run(context.Background(), f.env, f.path))
			assert.Equal(t, tt.want, f.content(t))
		})
	}
}

func TestGlobals_OracleAbort(t *testing.T) {
	f := newFixture(t, globalsSrc, accept)
	boom := &oracle.InvocationError{Command: "x", Err: oracle.ErrUnavailable}
	f.env.Editor = editor.New(f.env.Store, oracle.Func(func(context.Context) (bool, error) {
		return false, boom
	}), editor.WithErrorPolicy(editor.Abort))

	err := Globals{}.Run(context.Background(), f.env, f.path)
	assert.True(t, errors.Is(err, oracle.ErrUnavailable))
	assert.Equal(t, globalsSrc, f.content(t))
}

func TestGlobals_MissingFile(t *testing.T) {
	f := newFixture(t, globalsSrc, accept)
	err := Globals{}.Run(context.Background(), f.env, filepath.Join(t.TempDir(), "none.c"))
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	ps, err := Lookup(DefaultOrder)
	require.NoError(t, err)
	require.Len(t, ps, 3)
	for i, p := range ps {
		assert.Equal(t, DefaultOrder[i], p.Name())
	}

	_, err = ByName("peephole")
	assert.True(t, errors.Is(err, ErrUnknownPass))
	assert.Equal(t, []string{NameGlobals, NameRedundantBlocks, NameUnusedLocals}, Names())
}

func TestPasses_UnparsableFileIsSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bug.txt")
	src := "static int dead;\nint main(void) { { return 0; } }\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	store := source.NewStore(nil)
	env := &Env{
		Store:       store,
		Editor:      editor.New(store, oracle.Func(func(context.Context) (bool, error) { return true, nil })),
		Parser:      ast.NewParser(),
		Diagnostics: diag.Static{{Line: 1, Column: 12, Kind: diag.KindUnusedVariable, Name: "dead"}},
	}
	for _, p := range []Pass{UnusedLocals{}, RedundantBlocks{}, Globals{}} {
		require.NoError(t, p.Run(context.Background(), env, path), p.Name())
	}
	assert.Zero(t, env.Editor.Calls())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, src, string(data))
}

func TestPasses_CanceledLoadIsAnError(t *testing.T) {
	f := newFixture(t, "int main(void) { { return 0; } }\n", accept)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, RedundantBlocks{}.Run(ctx, f.env, f.path), context.Canceled)
}

func TestGlobals_RawBytesInLiterals(t *testing.T) {
	src := "static int dead;\nint main(void) {\n\tconst char *s = \"\xff\";\n\treturn s[0];\n}\n"
	f := newFixture(t, src, func(content string) bool {
		return strings.Contains(content, "int main(void)")
	})

	require.NoError(t, Globals{}.Run(context.Background(), f.env, f.path))
	got := f.content(t)
	assert.NotContains(t, got, "static int dead;")
	assert.Contains(t, got, "\"\xff\"", "raw bytes are kept verbatim")
}
