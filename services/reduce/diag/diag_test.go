// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diag

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

const clangOutput = `t.c:3:7: warning: unused variable 'x' [-Wunused-variable]
    int x;
        ^
t.c:5:1: warning: unused label 'out' [-Wunused-label]
out:
^~~~
t.c:9:3: warning: implicit declaration of function 'g' [-Wimplicit-function-declaration]
inc/h.h:1:12: warning: unused variable 'hidden' [-Wunused-variable]
3 warnings generated.
`

const gccOutput = "t.c: In function ‘main’:\n" +
	"t.c:4:9: warning: unused variable ‘y’ [-Wunused-variable]\n" +
	"t.c:7:1: warning: label ‘again’ defined but not used [-Wunused-label]\n" +
	"t.c:8:2: error: expected ‘;’ before ‘}’ token\n"

func TestParseOutput_Clang(t *testing.T) {
	locs := ParseOutput("t.c", []byte(clangOutput))
	require.Len(t, locs, 2)

	assert.Equal(t, KindUnusedVariable, locs[0].Kind)
	assert.Equal(t, 3, locs[0].Line)
	assert.Equal(t, 7, locs[0].Column)
	assert.Equal(t, "x", locs[0].Name)

	assert.Equal(t, KindUnusedLabel, locs[1].Kind)
	assert.Equal(t, 5, locs[1].Line)
	assert.Equal(t, 1, locs[1].Column)
	assert.Equal(t, "out", locs[1].Name)
}

func TestParseOutput_GCC(t *testing.T) {
	locs := ParseOutput("./t.c", []byte(gccOutput))
	require.Len(t, locs, 2)
	assert.Equal(t, "y", locs[0].Name)
	assert.Equal(t, KindUnusedVariable, locs[0].Kind)
	assert.Equal(t, "again", locs[1].Name)
	assert.Equal(t, KindUnusedLabel, locs[1].Kind)
}

func TestParseOutput_MessagePrefixWithoutFlag(t *testing.T) {
	out := "t.c:2:6: warning: unused variable 'z'\r\nt.c:3:1: warning: unused label 'l'\n"
	locs := ParseOutput("t.c", []byte(out))
	require.Len(t, locs, 2)
	assert.Equal(t, KindUnusedVariable, locs[0].Kind)
	assert.Equal(t, KindUnusedLabel, locs[1].Kind)
}

func TestParseOutput_IgnoresOtherFiles(t *testing.T) {
	assert.Empty(t, ParseOutput("other.c", []byte(clangOutput)))
	assert.Empty(t, ParseOutput("t.c", nil))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "unused-variable", KindUnusedVariable.String())
	assert.Equal(t, "unused-label", KindUnusedLabel.String())
	assert.Equal(t, "unknown", Kind(7).String())
}

// fakeCompiler writes an executable shell script standing in for cc.
func fakeCompiler(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakecc")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestCompilerSource_ParsesStderrDespiteFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "t.c")
	require.NoError(t, os.WriteFile(src, []byte("int main(void) { int x; }\n"), 0o644))

	// echo the last argument back as the diagnostic path, then fail
	cc := fakeCompiler(t, `for a; do last="$a"; done
echo "$last:1:22: warning: unused variable 'x' [-Wunused-variable]" >&2
exit 1`)

	s := NewCompilerSource(cc, []string{"-std=c99"}, nil)
	locs, err := s.Unused(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "x", locs[0].Name)
	assert.Equal(t, 22, locs[0].Column)
}

func TestCompilerSource_Unavailable(t *testing.T) {
	s := NewCompilerSource(filepath.Join(t.TempDir(), "missing-cc"), nil, nil)
	_, err := s.Unused(context.Background(), "t.c")
	assert.True(t, errors.Is(err, ErrCompilerUnavailable))
}

func TestCompilerSource_Timeout(t *testing.T) {
	s := NewCompilerSource(fakeCompiler(t, "exec sleep 5"), nil, nil)
	s.Timeout = 100 * time.Millisecond
	_, err := s.Unused(context.Background(), filepath.Join(t.TempDir(), "t.c"))
	assert.True(t, errors.Is(err, ErrCompilerTimeout))
}

func TestStatic(t *testing.T) {
	s := Static{{Path: "a.c", Line: 1, Column: 5, Kind: KindUnusedVariable, Name: "v"}}
	locs, err := s.Unused(context.Background(), "ignored.c")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	locs[0].Name = "changed"
	assert.Equal(t, "v", s[0].Name)
}
