// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package deps

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/AleutianReduce/services/reduce/ast"
	"github.com/AleutianAI/AleutianReduce/services/reduce/element"
)

// declaring nodes whose declarator names are declarations, not uses.
var declaring = map[string]bool{
	ast.KindDeclaration:          true,
	ast.KindParameterDeclaration: true,
	ast.KindFieldDeclaration:     true,
	ast.KindTypeDefinition:       true,
	ast.KindFunctionDefinition:   true,
}

// symbolTable maps names to the element that defines them.
type symbolTable struct {
	ordinary map[string]element.Handle
	tags     map[string]element.Handle
}

func newSymbolTable(elems []element.Element) *symbolTable {
	st := &symbolTable{
		ordinary: make(map[string]element.Handle),
		tags:     make(map[string]element.Handle),
	}
	// definitions first so a later prototype or extern never displaces them
	for _, pass := range []bool{true, false} {
		for _, e := range elems {
			for _, s := range e.Symbols {
				if s.Definition != pass {
					continue
				}
				m := st.ordinary
				if s.Tag {
					m = st.tags
				}
				if _, taken := m[s.Name]; !taken {
					m[s.Name] = e.Handle
				}
			}
		}
	}
	return st
}

func (st *symbolTable) lookup(name string, tag bool) (element.Handle, bool) {
	if tag {
		h, ok := st.tags[name]
		return h, ok
	}
	if h, ok := st.ordinary[name]; ok {
		return h, true
	}
	// C++ class names are usable without the tag keyword
	h, ok := st.tags[name]
	return h, ok
}

// Build records every use of elems found in tree.
//
// Description:
//
//	A use is an identifier or type name that resolves, by name, to one of
//	the elements. Names resolve to the defining declaration: a function
//	definition wins over its prototypes and a non-extern object over its
//	extern declarations. Declarator names (of any declaration, parameter or
//	field) are declarations, not uses. Uses inside the element's own extent
//	do not count, so recursion and self-references never keep an element
//	alive. Resolution is purely syntactic: a local that shadows a global
//	name counts as a use of the global.
//
// Inputs:
//   - tree: The translation unit elems were collected from.
//   - elems: Elements with dense handles 0..n-1.
//   - policy: How counts are evaluated later.
//   - view: Deletion view for PolicyLive. May be nil for PolicySnapshot.
//
// Outputs:
//   - *Tracker: The populated tracker.
func Build(tree *ast.Tree, elems []element.Element, policy Policy, view View) *Tracker {
	t := NewTracker(tree.Path, len(elems), policy, view)
	if len(elems) == 0 {
		return t
	}
	st := newSymbolTable(elems)
	extent := make(map[element.Handle]element.Element, len(elems))
	for _, e := range elems {
		extent[e.Handle] = e
	}

	declared := make(map[uint32]bool)
	ast.Walk(tree.Root(), func(n *sitter.Node) bool {
		switch {
		case declaring[n.Type()]:
			for _, d := range declaratorsOf(n) {
				if name := ast.DeclaratorName(d); name != nil {
					declared[name.StartByte()] = true
				}
			}
		case n.Type() == ast.KindEnumerator, n.Type() == ast.KindAliasDeclaration:
			if name := n.ChildByFieldName("name"); name != nil {
				declared[name.StartByte()] = true
			}
		case isTagSpecifier(n.Type()):
			if n.ChildByFieldName("body") != nil {
				if name := n.ChildByFieldName("name"); name != nil {
					declared[name.StartByte()] = true
				}
			}
		}

		switch n.Type() {
		case ast.KindIdentifier, ast.KindTypeIdentifier:
		default:
			return true
		}
		if declared[n.StartByte()] {
			return true
		}
		tag := false
		if p := n.Parent(); p != nil && isTagSpecifier(p.Type()) {
			tag = true
		}
		h, ok := st.lookup(tree.Text(n), tag)
		if !ok {
			return true
		}
		site := int(n.StartByte())
		if e := extent[h]; site >= e.Extent.Start && site < e.Extent.End {
			return true
		}
		t.RecordUse(h, site)
		return true
	})
	return t
}

// declaratorsOf returns the declarator children of a declaring node,
// including the single declarator of a function definition.
func declaratorsOf(n *sitter.Node) []*sitter.Node {
	if n.Type() == ast.KindFunctionDefinition {
		if d := n.ChildByFieldName("declarator"); d != nil {
			return []*sitter.Node{d}
		}
		return nil
	}
	return ast.Declarators(n)
}

func isTagSpecifier(kind string) bool {
	switch kind {
	case ast.KindStructSpecifier, ast.KindUnionSpecifier, ast.KindEnumSpecifier, ast.KindClassSpecifier:
		return true
	}
	return false
}
