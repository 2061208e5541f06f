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
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReduce/pkg/logging"
	"github.com/AleutianAI/AleutianReduce/pkg/ux"
	"github.com/AleutianAI/AleutianReduce/services/reduce"
	"github.com/AleutianAI/AleutianReduce/services/reduce/config"
)

// Process exit codes.
const (
	exitOK             = 0
	exitFailure        = 1
	exitNotInteresting = 2
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logDir     string
	logJSON    bool
}

// app carries the output streams and global flags into the subcommands.
type app struct {
	out    io.Writer
	errOut io.Writer
	flags  globalFlags
}

// execute runs the CLI with args and returns the process exit code.
func execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := newRootCmd(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	ux.NewPrinter(errOut).Error(err.Error())
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, reduce.ErrNotInteresting):
		return exitNotInteresting
	default:
		return exitFailure
	}
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "reduce",
		Short: "Shrink a C or C++ file while a test keeps reporting it as interesting",
		Long: `reduce deletes unused locals, redundant blocks, and unneeded top-level
declarations from a source file, keeping each deletion only if the
interestingness test still succeeds. The file is edited in place.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "config file (default ./"+config.DefaultFileName+" if present)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&a.flags.logDir, "log-dir", "", "also write JSON logs to this directory")
	pf.BoolVar(&a.flags.logJSON, "log-json", false, "write console logs as JSON")

	root.AddCommand(
		newRunCmd(a),
		newCheckpointsCmd(a),
		newConfigCmd(a),
	)
	return root
}

// loadConfig reads the config file and applies the persistent logging
// flags that were set on the command line.
func (a *app) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.flags.logLevel
	}
	if flags.Changed("log-dir") {
		cfg.Logging.Dir = a.flags.logDir
	}
	if flags.Changed("log-json") {
		cfg.Logging.JSON = a.flags.logJSON
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg. Console logs go to errOut
// so stdout carries only command output.
func (a *app) newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Dir,
		Service: "reduce",
		JSON:    cfg.JSON,
		Output:  a.errOut,
	}), nil
}
