// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReduce/pkg/ux"
	"github.com/AleutianAI/AleutianReduce/services/reduce/checkpoint"
)

func newCheckpointsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect oracle calls archived in a badger checkpoint database",
	}
	cmd.AddCommand(newCheckpointsListCmd(a), newCheckpointsShowCmd(a))
	return cmd
}

func newCheckpointsListCmd(a *app) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "list <db>",
		Short: "List runs, or the oracle calls of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openCheckpoints(args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			p := ux.NewPrinter(a.out)
			if runID == "" {
				runs, err := db.Runs()
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					cps, err := db.List(r)
					if err != nil {
						return err
					}
					rows = append(rows, []string{r, strconv.Itoa(len(cps)), strconv.Itoa(accepted(cps))})
				}
				p.Table([]string{"run", "calls", "accepted"}, rows)
				return nil
			}

			cps, err := db.List(runID)
			if err != nil {
				return err
			}
			if len(cps) == 0 {
				return fmt.Errorf("run %s: %w", runID, checkpoint.ErrNotFound)
			}
			rows := make([][]string, 0, len(cps))
			for _, c := range cps {
				rows = append(rows, []string{
					strconv.Itoa(c.Seq),
					c.Pass,
					c.Outcome(),
					strconv.Itoa(c.Ranges),
					strconv.Itoa(c.Bytes),
					c.At.Format(time.RFC3339),
				})
			}
			p.Table([]string{"seq", "pass", "outcome", "ranges", "bytes", "at"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "list the oracle calls of this run")
	return cmd
}

func newCheckpointsShowCmd(a *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "show <db> <run> <seq>",
		Short: "Print the file contents the oracle saw at one call",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid sequence number %q", args[2])
			}
			db, err := openCheckpoints(args[0])
			if err != nil {
				return err
			}
			defer db.Close()

			c, err := db.Get(args[1], seq)
			if err != nil {
				return err
			}

			paths := make([]string, 0, len(c.Files))
			for path := range c.Files {
				paths = append(paths, path)
			}
			sort.Strings(paths)

			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return err
				}
				for _, path := range paths {
					dst := filepath.Join(outDir, filepath.Base(path))
					if err := os.WriteFile(dst, c.Files[path], 0o644); err != nil {
						return err
					}
				}
				ux.NewPrinter(a.out).Success(fmt.Sprintf("wrote %d file(s) to %s", len(paths), outDir))
				return nil
			}

			for _, path := range paths {
				if len(paths) > 1 {
					fmt.Fprintf(a.out, "==> %s <==\n", path)
				}
				if _, err := a.out.Write(c.Files[path]); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "write the files into this directory instead of stdout")
	return cmd
}

func openCheckpoints(path string) (*checkpoint.Badger, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("checkpoint database: %w", err)
	}
	cfg := checkpoint.DefaultBadgerConfig(path)
	cfg.ReadOnly = true
	return checkpoint.OpenBadger(cfg)
}

func accepted(cps []checkpoint.Checkpoint) int {
	n := 0
	for _, c := range cps {
		if c.Accepted {
			n++
		}
	}
	return n
}
