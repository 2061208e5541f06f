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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/AleutianReduce/services/reduce/ast"
	"github.com/AleutianAI/AleutianReduce/services/reduce/source"
)

// EntryPoint is never offered for removal.
const EntryPoint = "main"

// CollectGlobals returns the top-level declarations of tree in declaration
// order.
//
// Description:
//
//	Candidates are function definitions, prototypes, global variables,
//	records, typedefs, enums and empty declarations. The entry point and its
//	prototypes are excluded. Declarations inside extern "C" blocks are
//	included; namespaces, templates and preprocessor directives are not.
//	Elements whose terminator cannot be found are dropped.
//
// Inputs:
//   - tree: The parsed translation unit.
//   - logger: Debug sink for each visited declaration. Nil uses slog.Default().
//
// Outputs:
//   - []Element: Candidates with handles 0..n-1.
func CollectGlobals(tree *ast.Tree, logger *slog.Logger) []Element {
	if logger == nil {
		logger = slog.Default()
	}
	c := &globalCollector{tree: tree, logger: logger}
	c.items(tree.Root())
	return renumber(c.out)
}

type globalCollector struct {
	tree   *ast.Tree
	logger *slog.Logger
	out    []Element
}

func (c *globalCollector) items(parent *sitter.Node) {
	// end of the last collected element; a ';' already consumed by a
	// record specifier is not a separate empty declaration
	covered := 0
	count := int(parent.ChildCount())
	for i := 0; i < count; i++ {
		n := parent.Child(i)
		if n == nil || int(n.StartByte()) < covered {
			continue
		}
		if n.Type() == ast.KindComment || ast.IsPreprocessor(n) {
			continue
		}
		if n.Type() == "linkage_specification" {
			if body := n.ChildByFieldName("body"); body != nil && body.Type() == "declaration_list" {
				c.items(body)
			}
			continue
		}
		e, ok := c.element(n)
		if !ok {
			continue
		}
		covered = e.Extent.End
		c.logger.Debug("visit global",
			slog.String("kind", string(e.Kind)),
			slog.String("node", e.NodeType),
			slog.String("name", e.Name),
			slog.String("range", e.Extent.String()))
		c.out = append(c.out, e)
	}
}

func (c *globalCollector) element(n *sitter.Node) (Element, bool) {
	content := c.tree.Content
	e := Element{NodeType: n.Type(), nameAt: -1}

	switch n.Type() {
	case ast.KindFunctionDefinition:
		name := ast.DeclaratorName(n.ChildByFieldName("declarator"))
		if name == nil {
			return e, false
		}
		e.Kind = KindFunction
		e.setName(c.tree, name)
		if e.Name == EntryPoint {
			return e, false
		}
		e.Symbols = []Symbol{{Name: e.Name, Definition: true}}
		return c.span(e, n, int(n.EndByte()))

	case ast.KindDeclaration:
		ds := ast.Declarators(n)
		extern := ast.HasStorageClass(n, content, "extern")
		e.Kind = KindVariable
		e.Symbols = typeSymbols(c.tree, n.ChildByFieldName("type"))
		for i, d := range ds {
			name := ast.DeclaratorName(d)
			if name == nil {
				continue
			}
			fn := ast.DeclaresFunction(d)
			text := c.tree.Text(name)
			if fn && text == EntryPoint {
				return e, false
			}
			if i == 0 {
				e.setName(c.tree, name)
				if fn {
					e.Kind = KindPrototype
				}
			}
			e.Symbols = append(e.Symbols, Symbol{Name: text, Definition: !fn && !extern})
		}
		if len(ds) == 0 {
			e.Kind = recordKind(n.ChildByFieldName("type"))
		}
		return c.terminated(e, n)

	case ast.KindTypeDefinition:
		e.Kind = KindTypedef
		e.Symbols = typeSymbols(c.tree, n.ChildByFieldName("type"))
		for i, d := range ast.Declarators(n) {
			name := ast.DeclaratorName(d)
			if name == nil {
				continue
			}
			if i == 0 {
				e.setName(c.tree, name)
			}
			e.Symbols = append(e.Symbols, Symbol{Name: c.tree.Text(name), Definition: true})
		}
		return c.terminated(e, n)

	case ast.KindStructSpecifier, ast.KindUnionSpecifier, ast.KindClassSpecifier, ast.KindEnumSpecifier:
		e.Kind = recordKind(n)
		if name := n.ChildByFieldName("name"); name != nil {
			e.setName(c.tree, name)
		}
		e.Symbols = typeSymbols(c.tree, n)
		return c.terminated(e, n)

	case ast.KindAliasDeclaration:
		e.Kind = KindTypedef
		if name := n.ChildByFieldName("name"); name != nil {
			e.setName(c.tree, name)
			e.Symbols = []Symbol{{Name: e.Name, Definition: true}}
		}
		return c.terminated(e, n)

	case ast.KindExpressionStatement, ";", "ERROR":
		// a stray ';' at file scope, however the grammar recovers it
		if strings.TrimSpace(c.tree.Text(n)) != ";" {
			return e, false
		}
		e.Kind = KindEmpty
		return c.span(e, n, int(n.EndByte()))
	}
	return e, false
}

// terminated extends n to its ';' terminator, scanning forward when the
// node stops short of it.
func (c *globalCollector) terminated(e Element, n *sitter.Node) (Element, bool) {
	end := int(n.EndByte())
	if end > 0 && c.tree.Content[end-1] == ';' {
		return c.span(e, n, end)
	}
	semi := ast.ScanTo(c.tree.Content, end, ';')
	if semi < 0 {
		c.logger.Debug("no terminator, skipping",
			slog.String("node", n.Type()),
			slog.String("name", e.Name))
		return e, false
	}
	return c.span(e, n, semi+1)
}

func (c *globalCollector) span(e Element, n *sitter.Node, end int) (Element, bool) {
	r := source.Range{Path: c.tree.Path, Start: int(n.StartByte()), End: end}
	if r.IsEmpty() {
		return e, false
	}
	e.Extent = r
	e.Ranges = []source.Range{r}
	return e, true
}

func (e *Element) setName(tree *ast.Tree, name *sitter.Node) {
	e.Name = tree.Text(name)
	e.nameAt = int(name.StartByte())
}

func recordKind(spec *sitter.Node) Kind {
	if spec != nil && spec.Type() == ast.KindEnumSpecifier {
		return KindEnum
	}
	return KindRecord
}

// typeSymbols returns the tag and enumerator names a type specifier defines.
// A specifier without a body only references its tag and defines nothing.
func typeSymbols(tree *ast.Tree, spec *sitter.Node) []Symbol {
	if spec == nil {
		return nil
	}
	switch spec.Type() {
	case ast.KindStructSpecifier, ast.KindUnionSpecifier, ast.KindClassSpecifier, ast.KindEnumSpecifier:
	default:
		return nil
	}
	body := spec.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	var out []Symbol
	if name := spec.ChildByFieldName("name"); name != nil {
		out = append(out, Symbol{Name: tree.Text(name), Tag: true, Definition: true})
	}
	if spec.Type() == ast.KindEnumSpecifier {
		for _, en := range ast.NamedChildren(body) {
			if en.Type() != ast.KindEnumerator {
				continue
			}
			if name := en.ChildByFieldName("name"); name != nil {
				out = append(out, Symbol{Name: tree.Text(name), Definition: true})
			}
		}
	}
	return out
}
