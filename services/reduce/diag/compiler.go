// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diag

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"
)

const (
	// DefaultCompiler is the compiler driver used when none is configured.
	DefaultCompiler = "cc"

	// DefaultTimeout bounds a single diagnostics run.
	DefaultTimeout = 60 * time.Second
)

// warningFlags are always passed; user flags come after them.
var warningFlags = []string{"-fsyntax-only", "-Wunused-variable", "-Wunused-label"}

// CompilerSource obtains unused-entity warnings by running a compiler driver
// in syntax-only mode.
//
// Thread Safety: safe for concurrent use; each call runs its own process.
type CompilerSource struct {
	// Compiler is the driver binary (cc, gcc, clang, clang++).
	Compiler string

	// Flags are extra arguments (include paths, -std, defines).
	Flags []string

	// Timeout bounds each run. Zero means DefaultTimeout.
	Timeout time.Duration

	// Dir is the working directory. Empty means the file's directory.
	Dir string

	Logger *slog.Logger
}

// NewCompilerSource returns a CompilerSource for compiler (DefaultCompiler
// when empty) with the given extra flags.
func NewCompilerSource(compiler string, flags []string, logger *slog.Logger) *CompilerSource {
	if compiler == "" {
		compiler = DefaultCompiler
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CompilerSource{
		Compiler: compiler,
		Flags:    flags,
		Timeout:  DefaultTimeout,
		Logger:   logger.With(slog.String("component", "diag.CompilerSource")),
	}
}

// Unused implements Source.
//
// The compiler's exit status is ignored: an input that reproduces a compiler
// bug usually fails to compile, and its warnings are still wanted.
func (s *CompilerSource) Unused(ctx context.Context, path string) ([]Location, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir := s.Dir
	if dir == "" {
		dir = filepath.Dir(path)
		// the driver reports the path as given; keep it resolvable from dir
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}

	args := make([]string, 0, len(warningFlags)+len(s.Flags)+1)
	args = append(args, warningFlags...)
	args = append(args, s.Flags...)
	args = append(args, path)

	cmd := exec.CommandContext(cmdCtx, s.Compiler, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s after %s", ErrCompilerTimeout, s.Compiler, timeout)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompilerUnavailable, s.Compiler, err)
	}

	out := append(stderr.Bytes(), stdout.Bytes()...)
	locs := ParseOutput(path, out)
	logger.Debug("collected unused-entity warnings",
		slog.String("file", path),
		slog.Int("count", len(locs)),
		slog.Bool("compile_failed", err != nil),
		slog.Duration("duration", time.Since(start)))
	return locs, nil
}

// Static is a Source that returns a fixed list regardless of path.
type Static []Location

// Unused implements Source.
func (s Static) Unused(_ context.Context, _ string) ([]Location, error) {
	out := make([]Location, len(s))
	copy(out, s)
	return out, nil
}
