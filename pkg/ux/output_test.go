// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPrinter_BufferIsPlain(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, NewPrinter(&buf).Plain())
	assert.False(t, IsTerminal(&buf))
}

func TestPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlainPrinter(&buf)

	p.Title("ignored")
	p.Success("reduced")
	p.Warning("slow oracle")
	p.Error("flush failed")
	p.Fields("Summary", []Field{{"file", "bug.c"}, {"rounds", "2"}})
	p.Table([]string{"pass", "accepted"}, [][]string{{"globals", "3"}})

	assert.Equal(t, strings.Join([]string{
		"OK: reduced",
		"WARN: slow oracle",
		"ERROR: flush failed",
		"file: bug.c",
		"rounds: 2",
		"pass\taccepted",
		"globals\t3",
		"",
	}, "\n"), buf.String())
}

func TestStyledOutput(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{w: &buf}

	p.Fields("Summary", []Field{{"file", "bug.c"}, {"initial bytes", "120"}})
	out := buf.String()
	assert.Contains(t, out, "Summary")
	assert.Contains(t, out, "bug.c")
	assert.Contains(t, out, "initial bytes")

	buf.Reset()
	p.Table([]string{"pass", "n"}, [][]string{{"unused-locals", "1"}, {"globals"}})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], "unused-locals")
}

func TestProgressBar(t *testing.T) {
	plain := NewPlainPrinter(&bytes.Buffer{})
	assert.Equal(t, "50.0%", plain.ProgressBar(0.5, 10))
	assert.Equal(t, "100.0%", plain.ProgressBar(1.7, 10))
	assert.Equal(t, "0.0%", plain.ProgressBar(-1, 10))

	styled := &Printer{w: &bytes.Buffer{}}
	bar := styled.ProgressBar(0.25, 8)
	assert.Equal(t, 2, strings.Count(bar, "█"))
	assert.Equal(t, 6, strings.Count(bar, "░"))
}

func TestIcon_Render(t *testing.T) {
	assert.Contains(t, IconSuccess.Render(), "✓")
	assert.Equal(t, "→", IconArrow.Render())
}
