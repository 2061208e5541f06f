// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Dir writes each checkpoint as a directory of files:
//
//	<Root>/<seq>-<pass>-<ok|fail>/<basename>
//
// Files are written with mode 0644.
type Dir struct {
	Root string
}

// NewDir returns a Dir recorder rooted at root, creating it if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", root, err)
	}
	return &Dir{Root: root}, nil
}

// Path returns the directory a checkpoint is written to.
func (d *Dir) Path(c Checkpoint) string {
	name := fmt.Sprintf("%06d-%s-%s", c.Seq, unsafeName.ReplaceAllString(c.Pass, "_"), c.Outcome())
	return filepath.Join(d.Root, name)
}

// Record implements Recorder.
func (d *Dir) Record(ctx context.Context, c Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := d.Path(c)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for path, content := range c.Files {
		dst := filepath.Join(dir, filepath.Base(path))
		if err := os.WriteFile(dst, content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dst, err)
		}
	}
	return nil
}
