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
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/AleutianReduce/services/reduce/ast"
	"github.com/AleutianAI/AleutianReduce/services/reduce/source"
)

// CollectRedundantBlocks returns one element per compound statement whose
// only statement is another compound statement.
//
// The element's ranges are the nested block's two brace characters, so
// removing it turns "{ { s; } }" into "{  s;  }". The outer braces stay in
// place: they may be a function body, which cannot lose its braces.
// Comments alongside the nested block do not disqualify it.
func CollectRedundantBlocks(tree *ast.Tree) []Element {
	var out []Element
	ast.Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() != ast.KindCompoundStatement {
			return true
		}
		children := ast.NamedChildren(n)
		if len(children) != 1 || children[0].Type() != ast.KindCompoundStatement {
			return true
		}
		inner := children[0]
		start, end := int(inner.StartByte()), int(inner.EndByte())
		if end-start < 2 || tree.Content[start] != '{' || tree.Content[end-1] != '}' {
			return true
		}
		out = append(out, Element{
			Kind:     KindBlock,
			NodeType: inner.Type(),
			Extent:   source.Range{Path: tree.Path, Start: start, End: end},
			Ranges: []source.Range{
				{Path: tree.Path, Start: start, End: start + 1},
				{Path: tree.Path, Start: end - 1, End: end},
			},
			nameAt: -1,
		})
		return true
	})
	return renumber(out)
}
