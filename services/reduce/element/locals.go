// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package element

import (
	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/AleutianReduce/services/reduce/ast"
	"github.com/AleutianAI/AleutianReduce/services/reduce/source"
)

// loopInitParents own a declaration that is part of their header syntax.
var loopInitParents = map[string]bool{
	"for_statement":    true,
	"for_range_loop":   true,
	"condition_clause": true,
	"init_statement":   true,
}

// CollectLocals returns every local variable declaration and label inside
// function bodies that can be removed as a whole statement.
//
// Description:
//
//	A variable declaration qualifies when it declares exactly one object and
//	either has no initializer or a constant one (see IsConstant). Declarations
//	with a side-effecting initializer are not offered, so the initializer can
//	never be lost. A label's range runs from the label up to the statement it
//	labels; the statement itself stays.
//
//	The result is the universe that diagnostic locations resolve against; it
//	is not itself evidence that anything is unused.
func CollectLocals(tree *ast.Tree, logger *slog.Logger) []Element {
	if logger == nil {
		logger = slog.Default()
	}
	var out []Element
	ast.Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() != ast.KindFunctionDefinition {
			return true
		}
		body := n.ChildByFieldName("body")
		ast.Walk(body, func(m *sitter.Node) bool {
			switch m.Type() {
			case ast.KindDeclaration:
				if e, ok := localVariable(tree, m); ok {
					out = append(out, e)
				} else {
					logger.Debug("local not removable as a whole",
						slog.String("text", clip(tree.Text(m))))
				}
			case ast.KindLabeledStatement:
				if e, ok := label(tree, m); ok {
					out = append(out, e)
				}
			}
			return true
		})
		return false
	})
	return renumber(out)
}

func localVariable(tree *ast.Tree, decl *sitter.Node) (Element, bool) {
	e := Element{Kind: KindLocal, NodeType: decl.Type(), nameAt: -1}
	if p := decl.Parent(); p != nil && loopInitParents[p.Type()] {
		return e, false
	}
	ds := ast.Declarators(decl)
	if len(ds) != 1 {
		return e, false
	}
	d := ds[0]
	if ast.DeclaresFunction(d) {
		return e, false
	}
	if d.Type() == ast.KindInitDeclarator {
		if !IsConstant(d.ChildByFieldName("value")) {
			return e, false
		}
	}
	name := ast.DeclaratorName(d)
	if name == nil {
		return e, false
	}
	e.setName(tree, name)

	end := int(decl.EndByte())
	if end == 0 || tree.Content[end-1] != ';' {
		semi := ast.ScanTo(tree.Content, end, ';')
		if semi < 0 {
			return e, false
		}
		end = semi + 1
	}
	r := source.Range{Path: tree.Path, Start: int(decl.StartByte()), End: end}
	e.Extent = r
	e.Ranges = []source.Range{r}
	return e, true
}

func label(tree *ast.Tree, ls *sitter.Node) (Element, bool) {
	e := Element{Kind: KindLabel, NodeType: ls.Type(), nameAt: -1}
	name := ls.ChildByFieldName("label")
	if name == nil {
		return e, false
	}
	e.setName(tree, name)

	start := int(ls.StartByte())
	end := -1
	children := ast.NamedChildren(ls)
	if len(children) > 1 {
		// up to, not including, the labelled statement
		end = int(children[len(children)-1].StartByte())
	} else {
		if colon := ast.ScanTo(tree.Content, int(name.EndByte()), ':'); colon >= 0 {
			end = colon + 1
		}
	}
	if end <= start {
		return e, false
	}
	r := source.Range{Path: tree.Path, Start: start, End: end}
	e.Extent = r
	e.Ranges = []source.Range{r}
	return e, true
}

// IsConstant reports whether an initializer is a compile-time constant for
// the purpose of whole-statement removal: a scalar, string, or compound
// literal, or a cast whose operand is itself constant.
func IsConstant(n *sitter.Node) bool {
	for n != nil {
		switch n.Type() {
		case ast.KindNumberLiteral, ast.KindStringLiteral, ast.KindRawStringLiteral,
			ast.KindConcatenatedString, ast.KindCharLiteral, ast.KindCompoundLiteral,
			ast.KindTrue, ast.KindFalse, ast.KindNull, ast.KindNullptr:
			return true
		case ast.KindCastExpression:
			n = n.ChildByFieldName("value")
		default:
			return false
		}
	}
	return false
}

// Resolve maps a diagnostic position to the element of the given kind whose
// extent contains it. When extents nest, the innermost wins. If name is not
// empty the element must declare that name.
func Resolve(elems []Element, kind Kind, offset int, name string) (Element, bool) {
	var best Element
	found := false
	for _, e := range elems {
		if e.Kind != kind {
			continue
		}
		if offset < e.Extent.Start || offset >= e.Extent.End {
			continue
		}
		if name != "" && e.Name != name {
			continue
		}
		if !found || e.Extent.Len() < best.Extent.Len() {
			best, found = e, true
		}
	}
	return best, found
}

func clip(s string) string {
	const limit = 60
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
