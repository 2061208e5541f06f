// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package source owns the mutable text of the translation unit being reduced.
//
// The store reads each file once, tracks deletions against the original byte
// offsets, and writes the visible text back to disk on Flush. Every oracle
// call is preceded by a Flush, so the file on disk is always the text the
// oracle judged.
package source

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Store holds the buffers of one reduction run.
//
// Thread Safety:
//
//	Not safe for concurrent use. The reducer is single-threaded and owns the
//	backing files for the duration of the run.
type Store struct {
	buffers map[string]*Buffer
	logger  *slog.Logger
}

// NewStore creates an empty store. A nil logger uses slog.Default().
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		buffers: make(map[string]*Buffer),
		logger:  logger.With("component", "source.Store"),
	}
}

// Open reads path from disk into a fresh buffer, replacing any buffer
// previously opened for the same path.
//
// Inputs:
//   - path: File to load. Cleaned before use; the cleaned form is the key
//     used by every Range that refers to this buffer.
//
// Outputs:
//   - *Buffer: The loaded buffer.
//   - error: Non-nil if the file cannot be read or is too large.
func (s *Store) Open(path string) (*Buffer, error) {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	b, err := newBuffer(path, content, info.Mode().Perm())
	if err != nil {
		return nil, err
	}
	s.buffers[path] = b
	s.logger.Debug("opened buffer",
		slog.String("path", path),
		slog.Int("size", len(content)))
	return b, nil
}

// Buffer returns the buffer for path, if open.
func (s *Store) Buffer(path string) (*Buffer, bool) {
	b, ok := s.buffers[filepath.Clean(path)]
	return b, ok
}

// Paths returns the open paths in sorted order.
func (s *Store) Paths() []string {
	paths := make([]string, 0, len(s.buffers))
	for p := range s.buffers {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Text returns the visible text inside r.
func (s *Store) Text(r Range) ([]byte, error) {
	b, err := s.lookup(r.Path)
	if err != nil {
		return nil, err
	}
	return b.Text(r)
}

// Delete hides r in its buffer and returns the snapshot that undoes it.
func (s *Store) Delete(r Range) (Snapshot, error) {
	b, err := s.lookup(r.Path)
	if err != nil {
		return Snapshot{}, err
	}
	return b.delete(r)
}

// Restore undoes a Delete.
func (s *Store) Restore(snap Snapshot) error {
	b, err := s.lookup(snap.Range.Path)
	if err != nil {
		return err
	}
	return b.restore(snap)
}

// IsDeleted reports whether the original byte at off in path is hidden.
func (s *Store) IsDeleted(path string, off int) bool {
	b, ok := s.Buffer(path)
	if !ok {
		return false
	}
	return b.IsDeleted(off)
}

// Len returns the total visible length over all buffers.
func (s *Store) Len() int {
	n := 0
	for _, b := range s.buffers {
		n += b.Len()
	}
	return n
}

// Contents materializes every buffer, keyed by path.
func (s *Store) Contents() map[string][]byte {
	out := make(map[string][]byte, len(s.buffers))
	for p, b := range s.buffers {
		out[p] = b.Bytes()
	}
	return out
}

// Flush writes every dirty buffer to its backing file.
//
// Description:
//
//	Each file is written atomically: the visible text goes to a temp file
//	in the same directory, which is then renamed over the original. A
//	reader never observes a half-written file.
//
// Outputs:
//   - error: Wraps ErrFlushFailed on any I/O failure. The buffer that failed
//     stays dirty so a later Flush retries it.
func (s *Store) Flush() error {
	for _, p := range s.Paths() {
		b := s.buffers[p]
		if !b.dirty {
			continue
		}
		if err := writeAtomic(b.path, b.Bytes(), b.mode); err != nil {
			s.logger.Error("flush failed",
				slog.String("path", b.path),
				slog.String("error", err.Error()))
			return fmt.Errorf("%w: %s: %v", ErrFlushFailed, b.path, err)
		}
		b.dirty = false
	}
	return nil
}

func (s *Store) lookup(path string) (*Buffer, error) {
	b, ok := s.buffers[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBuffer, path)
	}
	return b, nil
}

// writeAtomic writes data to a temp file next to path and renames it over path.
func writeAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".reduce-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp: %w", err)
	}
	if mode != 0 {
		if err := os.Chmod(tmpPath, mode); err != nil {
			_ = os.Remove(tmpPath)
			return fmt.Errorf("chmod temp: %w", err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
