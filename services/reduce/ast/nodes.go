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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Node kinds of the tree-sitter C and C++ grammars used by the reducer.
const (
	KindTranslationUnit      = "translation_unit"
	KindFunctionDefinition   = "function_definition"
	KindDeclaration          = "declaration"
	KindTypeDefinition       = "type_definition"
	KindAliasDeclaration     = "alias_declaration"
	KindStructSpecifier      = "struct_specifier"
	KindUnionSpecifier       = "union_specifier"
	KindEnumSpecifier        = "enum_specifier"
	KindClassSpecifier       = "class_specifier"
	KindEnumerator           = "enumerator"
	KindExpressionStatement  = "expression_statement"
	KindCompoundStatement    = "compound_statement"
	KindLabeledStatement     = "labeled_statement"
	KindStatementIdentifier  = "statement_identifier"
	KindInitDeclarator       = "init_declarator"
	KindFunctionDeclarator   = "function_declarator"
	KindParenDeclarator      = "parenthesized_declarator"
	KindAttributedDeclarator = "attributed_declarator"
	KindQualifiedIdentifier  = "qualified_identifier"
	KindIdentifier           = "identifier"
	KindTypeIdentifier       = "type_identifier"
	KindFieldIdentifier      = "field_identifier"
	KindStorageClass         = "storage_class_specifier"
	KindComment              = "comment"
	KindParameterDeclaration = "parameter_declaration"
	KindFieldDeclaration     = "field_declaration"

	KindNumberLiteral       = "number_literal"
	KindStringLiteral       = "string_literal"
	KindRawStringLiteral    = "raw_string_literal"
	KindConcatenatedString  = "concatenated_string"
	KindCharLiteral         = "char_literal"
	KindCompoundLiteral     = "compound_literal_expression"
	KindCastExpression      = "cast_expression"
	KindTrue                = "true"
	KindFalse               = "false"
	KindNull                = "null"
	KindNullptr             = "nullptr"
	KindParenthesizedExpr   = "parenthesized_expression"
	KindInitializerList     = "initializer_list"
)

const preprocPrefix = "preproc_"

// Walk visits n and its descendants in pre-order. If fn returns false the
// children of the current node are skipped.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || n.IsNull() {
		return
	}
	if !fn(n) {
		return
	}
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		Walk(n.Child(i), fn)
	}
}

// NamedChildren returns the named children of n, skipping comments.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() == KindComment {
			continue
		}
		out = append(out, child)
	}
	return out
}

// IsPreprocessor reports whether n is a preprocessor directive node.
func IsPreprocessor(n *sitter.Node) bool {
	return strings.HasPrefix(n.Type(), preprocPrefix)
}

// DeclaratorName returns the identifier a declarator chain introduces.
//
// Description:
//
//	Follows the declarator field through pointer, array, function, init and
//	reference declarators down to the name. For qualified names (A::f) the
//	unqualified part is returned.
//
// Outputs:
//   - *sitter.Node: The name node, or nil for abstract declarators.
func DeclaratorName(n *sitter.Node) *sitter.Node {
	for n != nil {
		switch n.Type() {
		case KindIdentifier, KindFieldIdentifier, KindTypeIdentifier,
			"destructor_name", "operator_name":
			return n
		case KindQualifiedIdentifier:
			n = n.ChildByFieldName("name")
			continue
		}
		if d := n.ChildByFieldName("declarator"); d != nil {
			n = d
			continue
		}
		// parenthesized and reference declarators carry no field name
		children := NamedChildren(n)
		if len(children) == 0 {
			return nil
		}
		n = children[0]
	}
	return nil
}

// DeclaresFunction reports whether the declarator chain rooted at n declares
// a function (as opposed to a variable, including function pointers).
//
// The declarator that directly wraps the name decides: int *f(void) is a
// function, int (*fp)(void) is a pointer.
func DeclaresFunction(n *sitter.Node) bool {
	last := ""
	for n != nil {
		switch n.Type() {
		case KindIdentifier, KindFieldIdentifier, KindTypeIdentifier,
			KindQualifiedIdentifier, "destructor_name", "operator_name":
			return last == KindFunctionDeclarator
		case KindParenDeclarator, KindAttributedDeclarator:
			// transparent
		default:
			last = n.Type()
		}
		if d := n.ChildByFieldName("declarator"); d != nil {
			n = d
			continue
		}
		children := NamedChildren(n)
		if len(children) == 0 {
			return false
		}
		n = children[0]
	}
	return false
}

// Declarators returns the declarator children of a declaration node.
func Declarators(decl *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	count := int(decl.ChildCount())
	for i := 0; i < count; i++ {
		if decl.FieldNameForChild(i) == "declarator" {
			out = append(out, decl.Child(i))
		}
	}
	return out
}

// HasStorageClass reports whether a declaration carries the given storage
// class keyword (extern, static, ...).
func HasStorageClass(decl *sitter.Node, content []byte, keyword string) bool {
	for _, child := range NamedChildren(decl) {
		if child.Type() == KindStorageClass && child.Content(content) == keyword {
			return true
		}
	}
	return false
}
