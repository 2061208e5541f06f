// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package element is the program element model: the removable units of a
// translation unit and the byte ranges that remove them.
//
// Elements are collected once per pass from a parsed tree and are immutable
// afterwards. Each carries a dense integer Handle assigned in collection
// order, which side tables (use counts, candidate membership) index by.
// Ranges are offsets into the text the tree was parsed from, which is the
// original text of the store buffer for the duration of a pass.
package element

import (
	"fmt"

	"github.com/AleutianAI/AleutianReduce/services/reduce/source"
)

// Handle identifies an element within one collection.
type Handle int

// Kind classifies an element.
type Kind string

const (
	KindFunction  Kind = "function"
	KindPrototype Kind = "prototype"
	KindVariable  Kind = "variable"
	KindRecord    Kind = "record"
	KindTypedef   Kind = "typedef"
	KindEnum      Kind = "enum"
	KindEmpty     Kind = "empty"
	KindLocal     Kind = "local"
	KindLabel     Kind = "label"
	KindBlock     Kind = "block"
)

// Symbol is a name an element declares.
type Symbol struct {
	// Name is the unqualified identifier.
	Name string

	// Tag is true for struct, union, enum and class tags.
	Tag bool

	// Definition is false for prototypes and extern object declarations.
	Definition bool
}

// Element is one removable unit.
type Element struct {
	Handle Handle
	Kind   Kind

	// Name is the first declared name, for logging. Empty for anonymous
	// records, empty declarations and blocks.
	Name string

	// NodeType is the tree-sitter node type the element came from.
	NodeType string

	// Extent is the full textual extent, terminator included.
	Extent source.Range

	// Ranges are deleted together to remove the element. They are disjoint
	// and sorted.
	Ranges []source.Range

	// Symbols are the names this element declares (globals only).
	Symbols []Symbol

	// nameAt is the offset of the declared name, -1 if none.
	nameAt int
}

// Size is the number of bytes removing the element deletes.
func (e Element) Size() int {
	n := 0
	for _, r := range e.Ranges {
		n += r.Len()
	}
	return n
}

func (e Element) String() string {
	if e.Name == "" {
		return fmt.Sprintf("#%d %s %s", e.Handle, e.Kind, e.Extent)
	}
	return fmt.Sprintf("#%d %s %s %s", e.Handle, e.Kind, e.Name, e.Extent)
}

// Ranges flattens the deletion ranges of elems in order.
func Ranges(elems []Element) []source.Range {
	var out []source.Range
	for _, e := range elems {
		out = append(out, e.Ranges...)
	}
	return out
}

// Handles returns the handles of elems in order.
func Handles(elems []Element) []Handle {
	out := make([]Handle, len(elems))
	for i, e := range elems {
		out[i] = e.Handle
	}
	return out
}

// renumber assigns dense handles in slice order.
func renumber(elems []Element) []Element {
	for i := range elems {
		elems[i].Handle = Handle(i)
	}
	return elems
}
