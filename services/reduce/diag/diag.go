// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diag obtains unused-variable and unused-label warnings for a
// translation unit from a C/C++ compiler.
//
// The warnings are the signal the unused-local pass starts from: a flagged
// location has no remaining use according to the compiler's own semantic
// analysis, which is stronger than anything a syntactic walk can offer.
package diag

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies an unused-entity warning.
type Kind int

const (
	// KindUnusedVariable is -Wunused-variable.
	KindUnusedVariable Kind = iota

	// KindUnusedLabel is -Wunused-label.
	KindUnusedLabel
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnusedVariable:
		return "unused-variable"
	case KindUnusedLabel:
		return "unused-label"
	default:
		return "unknown"
	}
}

// Location is one unused-entity warning.
type Location struct {
	// Path is the file as reported by the compiler.
	Path string

	// Line is 1-based.
	Line int

	// Column is 1-based, in bytes.
	Column int

	// Kind is the warning class.
	Kind Kind

	// Name is the quoted entity name, if the message carried one.
	Name string

	// Message is the raw warning text.
	Message string
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d: %s %q", l.Path, l.Line, l.Column, l.Kind, l.Name)
}

// Source supplies unused-entity warnings for a file.
type Source interface {
	// Unused returns the unused-variable and unused-label warnings that the
	// front end reports for path, in report order.
	Unused(ctx context.Context, path string) ([]Location, error)
}

// Sentinel errors for diagnostic collection.
var (
	// ErrCompilerUnavailable indicates the compiler could not be started.
	ErrCompilerUnavailable = errors.New("compiler unavailable")

	// ErrCompilerTimeout indicates the compiler did not finish in time.
	ErrCompilerTimeout = errors.New("compiler timed out")
)

// warningLine matches "file:line:col: warning: message".
var warningLine = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s+warning:\s+(.*)$`)

// quotedName matches 'x', `x' and the typographic quotes GCC uses in UTF-8 locales.
var quotedName = regexp.MustCompile("['`‘]([^'’]+)['’]")

// ParseOutput extracts unused-variable and unused-label warnings about path
// from GCC or Clang text diagnostics. Warnings about other files (headers)
// and all other diagnostics are ignored.
func ParseOutput(path string, output []byte) []Location {
	var out []Location
	want := filepath.Clean(path)

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := warningLine.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\r"))
		if m == nil {
			continue
		}
		if !samePath(want, m[1]) {
			continue
		}
		kind, ok := classify(m[4])
		if !ok {
			continue
		}
		line, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		col, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		loc := Location{
			Path:    m[1],
			Line:    line,
			Column:  col,
			Kind:    kind,
			Message: m[4],
		}
		if nm := quotedName.FindStringSubmatch(m[4]); nm != nil {
			loc.Name = nm[1]
		}
		out = append(out, loc)
	}
	return out
}

func classify(msg string) (Kind, bool) {
	switch {
	case strings.Contains(msg, "[-Wunused-variable]"),
		strings.HasPrefix(msg, "unused variable"):
		return KindUnusedVariable, true
	case strings.Contains(msg, "[-Wunused-label]"),
		strings.HasPrefix(msg, "unused label"),
		strings.HasPrefix(msg, "label ") && strings.Contains(msg, "defined but not used"):
		return KindUnusedLabel, true
	}
	return 0, false
}

func samePath(want, got string) bool {
	got = filepath.Clean(got)
	if got == want {
		return true
	}
	if abs, err := filepath.Abs(got); err == nil {
		if wantAbs, err := filepath.Abs(want); err == nil && abs == wantAbs {
			return true
		}
	}
	return false
}
