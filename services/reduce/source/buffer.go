// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"fmt"
	"math"
	"os"

	"github.com/RoaringBitmap/roaring/v2"
)

// Range is a half-open byte interval [Start, End) into the ORIGINAL text of
// the buffer identified by Path.
//
// Offsets never shift: a deletion hides bytes, it does not renumber the ones
// after it. Ranges computed from the syntax tree at the start of a pass stay
// valid for the whole pass no matter what has been deleted since.
type Range struct {
	Path  string
	Start int
	End   int
}

// Len returns the number of original bytes covered by the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// IsEmpty reports whether the range covers no bytes.
func (r Range) IsEmpty() bool {
	return r.End <= r.Start
}

// Contains reports whether off lies in the closed interval [Start, End].
//
// The closed upper bound matches how diagnostics are attributed: a warning
// that points at the terminator of a statement still belongs to it.
func (r Range) Contains(off int) bool {
	return off >= r.Start && off <= r.End
}

// Overlaps reports whether two ranges in the same buffer share a byte.
func (r Range) Overlaps(o Range) bool {
	return r.Path == o.Path && r.Start < o.End && o.Start < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("%s[%d:%d]", r.Path, r.Start, r.End)
}

// Buffer is the mutable text of one file.
//
// Description:
//
//	A Buffer keeps the original bytes read from disk and a bitmap of the
//	original offsets that are currently deleted. The visible text is the
//	original with the deleted offsets skipped. Restoring a deletion is a
//	bitmap operation, so rollback is exact regardless of what else changed.
//
// Thread Safety:
//
//	Not safe for concurrent use. A reduction run owns its buffers exclusively.
type Buffer struct {
	path       string
	mode       os.FileMode
	original   []byte
	deleted    *roaring.Bitmap
	lineStarts []int
	dirty      bool
}

func newBuffer(path string, content []byte, mode os.FileMode) (*Buffer, error) {
	if int64(len(content)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, path, len(content))
	}
	b := &Buffer{
		path:     path,
		mode:     mode,
		original: content,
		deleted:  roaring.New(),
	}
	b.lineStarts = append(b.lineStarts, 0)
	for i, c := range content {
		if c == '\n' {
			b.lineStarts = append(b.lineStarts, i+1)
		}
	}
	return b, nil
}

// Path returns the backing file path.
func (b *Buffer) Path() string {
	return b.path
}

// Original returns the text as it was when the buffer was opened.
// The returned slice must not be modified.
func (b *Buffer) Original() []byte {
	return b.original
}

// Size returns the length of the original text.
func (b *Buffer) Size() int {
	return len(b.original)
}

// Len returns the length of the visible text.
func (b *Buffer) Len() int {
	return len(b.original) - int(b.deleted.GetCardinality())
}

// Dirty reports whether the buffer changed since it was last flushed.
func (b *Buffer) Dirty() bool {
	return b.dirty
}

// IsDeleted reports whether the original byte at off is currently hidden.
func (b *Buffer) IsDeleted(off int) bool {
	if off < 0 || off >= len(b.original) {
		return false
	}
	return b.deleted.Contains(uint32(off))
}

// Bytes materializes the visible text.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, 0, b.Len())
	prev := 0
	it := b.deleted.Iterator()
	for it.HasNext() {
		off := int(it.Next())
		if off > prev {
			out = append(out, b.original[prev:off]...)
		}
		prev = off + 1
	}
	if prev < len(b.original) {
		out = append(out, b.original[prev:]...)
	}
	return out
}

// Text returns the visible bytes inside r.
func (b *Buffer) Text(r Range) ([]byte, error) {
	if err := b.check(r); err != nil {
		return nil, err
	}
	out := make([]byte, 0, r.Len())
	for off := r.Start; off < r.End; off++ {
		if !b.deleted.Contains(uint32(off)) {
			out = append(out, b.original[off])
		}
	}
	return out, nil
}

// LineOffset maps a 1-based line and 1-based byte column to an original
// offset. Columns past the end of the line clamp to the line terminator.
func (b *Buffer) LineOffset(line, col int) (int, bool) {
	if line < 1 || line > len(b.lineStarts) {
		return 0, false
	}
	start := b.lineStarts[line-1]
	end := len(b.original)
	if line < len(b.lineStarts) {
		end = b.lineStarts[line] - 1
	}
	if col < 1 {
		col = 1
	}
	off := start + col - 1
	if off > end {
		off = end
	}
	return off, true
}

// delete hides r and returns the snapshot needed to undo it.
func (b *Buffer) delete(r Range) (Snapshot, error) {
	text, err := b.Text(r)
	if err != nil {
		return Snapshot{}, err
	}
	prior := roaring.New()
	if !r.IsEmpty() {
		prior.AddRange(uint64(r.Start), uint64(r.End))
		prior.And(b.deleted)
		b.deleted.AddRange(uint64(r.Start), uint64(r.End))
		if uint64(r.Len()) != prior.GetCardinality() {
			b.dirty = true
		}
	}
	return Snapshot{Range: r, Text: text, prior: prior}, nil
}

// restore undoes a delete.
func (b *Buffer) restore(s Snapshot) error {
	if err := b.check(s.Range); err != nil {
		return err
	}
	if s.Range.IsEmpty() {
		return nil
	}
	b.deleted.RemoveRange(uint64(s.Range.Start), uint64(s.Range.End))
	if s.prior != nil {
		b.deleted.Or(s.prior)
	}
	b.dirty = true
	return nil
}

func (b *Buffer) check(r Range) error {
	if r.Start < 0 || r.End < r.Start || r.End > len(b.original) {
		return fmt.Errorf("%w: %s (size %d)", ErrInvalidRange, r, len(b.original))
	}
	return nil
}

// Snapshot records one deletion: the range, the visible text it removed,
// and which of its bytes were already hidden beforehand.
//
// A slice of snapshots is the edit transaction for one oracle round-trip.
type Snapshot struct {
	Range Range
	Text  []byte
	prior *roaring.Bitmap
}
