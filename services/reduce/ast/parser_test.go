// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"errors"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseC(t *testing.T, src string) *Tree {
	t.Helper()
	tree, err := NewParser().Parse(context.Background(), []byte(src), "input.c")
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	return tree
}

func TestLanguageForPath(t *testing.T) {
	tests := []struct {
		path string
		want Language
		err  bool
	}{
		{"a.c", LanguageC, false},
		{"a.i", LanguageC, false},
		{"dir/b.H", LanguageC, false},
		{"a.cpp", LanguageCPP, false},
		{"a.cc", LanguageCPP, false},
		{"a.ii", LanguageCPP, false},
		{"a.go", "", true},
		{"Makefile", "", true},
	}
	for _, tt := range tests {
		got, err := LanguageForPath(tt.path)
		if tt.err {
			assert.True(t, IsUnsupportedLanguage(err), tt.path)
			continue
		}
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestParse_C(t *testing.T) {
	tree := parseC(t, "int g;\nint main(void) { return g; }\n")
	assert.Equal(t, KindTranslationUnit, tree.Root().Type())
	assert.False(t, tree.HasErrors())

	children := NamedChildren(tree.Root())
	require.Len(t, children, 2)
	assert.Equal(t, KindDeclaration, children[0].Type())
	assert.Equal(t, KindFunctionDefinition, children[1].Type())
}

func TestParse_CPP(t *testing.T) {
	tree, err := NewParser().Parse(context.Background(),
		[]byte("class A { int x; };\nint main() { A a; return 0; }\n"), "input.cpp")
	require.NoError(t, err)
	defer tree.Close()
	assert.Equal(t, LanguageCPP, tree.Language)
	assert.False(t, tree.HasErrors())
}

func TestParse_SyntaxErrorsAreTolerated(t *testing.T) {
	tree := parseC(t, "int main( { return 0 }\n")
	assert.True(t, tree.HasErrors())
}

func TestParse_AcceptsRawBytes(t *testing.T) {
	src := "static int dead;\nconst char *s = \"\xff\xfe\";\nint main(void) { return s[0]; }\n"
	tree := parseC(t, src)

	children := NamedChildren(tree.Root())
	require.Len(t, children, 3)
	assert.Equal(t, KindDeclaration, children[0].Type())
	assert.Equal(t, KindFunctionDefinition, children[2].Type())
	assert.Equal(t, "const char *s = \"\xff\xfe\";", tree.Text(children[1]), "offsets are byte offsets")
}

func TestParse_RejectsBadInput(t *testing.T) {
	p := NewParser(WithMaxFileSize(4))

	_, err := p.Parse(context.Background(), []byte("int a;"), "a.c")
	assert.True(t, errors.Is(err, ErrFileTooLarge))

	_, err = NewParser().Parse(context.Background(), nil, "a.c")
	assert.True(t, errors.Is(err, ErrInvalidContent))

	var pe *ParseError
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, "a.c", pe.FilePath)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewParser().Parse(ctx, []byte("int a;"), "a.c")
	assert.ErrorIs(t, err, context.Canceled)
}

func firstDeclarator(t *testing.T, tree *Tree) *sitter.Node {
	t.Helper()
	decl := NamedChildren(tree.Root())[0]
	ds := Declarators(decl)
	require.NotEmpty(t, ds)
	return ds[0]
}

func TestDeclaratorName(t *testing.T) {
	tests := []struct {
		src  string
		want string
		fn   bool
	}{
		{"int x;", "x", false},
		{"int x = 3;", "x", false},
		{"int *p;", "p", false},
		{"int a[10];", "a", false},
		{"int f(void);", "f", true},
		{"int *g(int);", "g", true},
		{"int (*fp)(void);", "fp", false},
		{"char *(*h)[3];", "h", false},
	}
	for _, tt := range tests {
		tree := parseC(t, tt.src)
		d := firstDeclarator(t, tree)
		name := DeclaratorName(d)
		require.NotNil(t, name, tt.src)
		assert.Equal(t, tt.want, tree.Text(name), tt.src)
		assert.Equal(t, tt.fn, DeclaresFunction(d), tt.src)
	}
}

func TestDeclarators_Multiple(t *testing.T) {
	tree := parseC(t, "int a, *b, c = 1;")
	ds := Declarators(NamedChildren(tree.Root())[0])
	require.Len(t, ds, 3)
	var names []string
	for _, d := range ds {
		names = append(names, tree.Text(DeclaratorName(d)))
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestHasStorageClass(t *testing.T) {
	tree := parseC(t, "extern int x;")
	decl := NamedChildren(tree.Root())[0]
	assert.True(t, HasStorageClass(decl, tree.Content, "extern"))
	assert.False(t, HasStorageClass(decl, tree.Content, "static"))
}

func TestWalk_SkipChildren(t *testing.T) {
	tree := parseC(t, "int f(void) { int x; { int y; } }")
	var compounds int
	Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() == KindCompoundStatement {
			compounds++
			return false
		}
		return true
	})
	assert.Equal(t, 1, compounds)

	compounds = 0
	Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() == KindCompoundStatement {
			compounds++
		}
		return true
	})
	assert.Equal(t, 2, compounds)
}

func TestScanTo(t *testing.T) {
	tests := []struct {
		src  string
		from int
		want int
	}{
		{"struct S {} ;", 11, 12},
		{"x /* ; */ ;", 0, 10},
		{"x // ;\n;", 0, 7},
		{`x ";" ;`, 0, 6},
		{`x ';' ;`, 0, 6},
		{`x "\";" ;`, 0, 8},
		{"no terminator", 0, -1},
		{"x /* ; unterminated", 0, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScanTo([]byte(tt.src), tt.from, ';'), tt.src)
	}
}
