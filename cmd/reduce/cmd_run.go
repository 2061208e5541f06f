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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReduce/pkg/ux"
	"github.com/AleutianAI/AleutianReduce/services/reduce"
	"github.com/AleutianAI/AleutianReduce/services/reduce/checkpoint"
	"github.com/AleutianAI/AleutianReduce/services/reduce/config"
	"github.com/AleutianAI/AleutianReduce/services/reduce/deps"
	"github.com/AleutianAI/AleutianReduce/services/reduce/diag"
	"github.com/AleutianAI/AleutianReduce/services/reduce/editor"
	"github.com/AleutianAI/AleutianReduce/services/reduce/oracle"
	"github.com/AleutianAI/AleutianReduce/services/reduce/passes"
	"github.com/AleutianAI/AleutianReduce/services/reduce/telemetry"
)

// runFlags mirror the config file; a flag overrides the file only when set.
type runFlags struct {
	oracle         string
	workDir        string
	passes         []string
	rounds         int
	timeout        time.Duration
	retries        int
	liveUses       bool
	abortOnError   bool
	checkpoint     string
	checkpointPath string
	compiler       string
	cflags         []string
	noBackup       bool
	traceExporter  string
	metricExporter string
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Reduce a file in place",
		Long: `Reduce a file in place. The oracle command runs with /bin/sh -c in the
file's directory (or --workdir); exit status 0 means the current file is
still interesting. The untouched input is copied to <file>.orig first.`,
		Example: `  reduce run bug.c --oracle './crashes.sh'
  reduce run bug.c --oracle 'gcc -O2 -c bug.c 2>&1 | grep -q "internal compiler error"' --timeout 30s
  reduce run bug.cpp --oracle ./test.sh --passes globals --checkpoint badger --checkpoint-path ckpt.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}
			applyRunFlags(cmd, &f, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return a.runReduce(cmd.Context(), cfg, args[0])
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.oracle, "oracle", "", "interestingness test, run with /bin/sh -c")
	fl.StringVar(&f.workDir, "workdir", "", "directory the oracle runs in (default: the file's directory)")
	fl.StringSliceVar(&f.passes, "passes", nil, "passes to run, in order (default: "+strings.Join(passes.DefaultOrder, ",")+")")
	fl.IntVar(&f.rounds, "rounds", 0, "maximum number of rounds")
	fl.DurationVar(&f.timeout, "timeout", 0, "oracle timeout per call")
	fl.IntVar(&f.retries, "retries", 0, "retries when the oracle cannot be started")
	fl.BoolVar(&f.liveUses, "live-uses", false, "ignore uses inside already deleted text when checking dependencies")
	fl.BoolVar(&f.abortOnError, "abort-on-oracle-error", false, "stop the run when the oracle cannot be run instead of treating it as a rejection")
	fl.StringVar(&f.checkpoint, "checkpoint", "", "archive every oracle call: none, dir, badger")
	fl.StringVar(&f.checkpointPath, "checkpoint-path", "", "checkpoint directory or badger database")
	fl.StringVar(&f.compiler, "compiler", "", "compiler used for unused-variable diagnostics")
	fl.StringArrayVar(&f.cflags, "cflags", nil, "extra compiler flag for diagnostics (repeatable)")
	fl.BoolVar(&f.noBackup, "no-backup", false, "do not write <file>.orig")
	fl.StringVar(&f.traceExporter, "trace-exporter", "", "trace exporter: none, stdout, otlp")
	fl.StringVar(&f.metricExporter, "metric-exporter", "", "metric exporter: none, stdout, prometheus")
	return cmd
}

// applyRunFlags copies every explicitly set flag over cfg.
func applyRunFlags(cmd *cobra.Command, f *runFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("oracle") {
		cfg.Oracle.Command = f.oracle
	}
	if changed("workdir") {
		cfg.Oracle.WorkDir = f.workDir
	}
	if changed("timeout") {
		cfg.Oracle.Timeout = f.timeout
	}
	if changed("retries") {
		cfg.Oracle.Retries = f.retries
	}
	if changed("abort-on-oracle-error") {
		cfg.Oracle.ErrorPolicy = editor.TreatAsRejection.String()
		if f.abortOnError {
			cfg.Oracle.ErrorPolicy = editor.Abort.String()
		}
	}
	if changed("passes") {
		cfg.Passes = f.passes
	}
	if changed("rounds") {
		cfg.MaxRounds = f.rounds
	}
	if changed("live-uses") {
		cfg.DependencyPolicy = deps.PolicySnapshot.String()
		if f.liveUses {
			cfg.DependencyPolicy = deps.PolicyLive.String()
		}
	}
	if changed("checkpoint") {
		cfg.Checkpoint.Kind = f.checkpoint
	}
	if changed("checkpoint-path") {
		cfg.Checkpoint.Path = f.checkpointPath
	}
	if changed("compiler") {
		cfg.Diagnostics.Compiler = f.compiler
	}
	if changed("cflags") {
		cfg.Diagnostics.Flags = f.cflags
	}
	if changed("no-backup") {
		cfg.Backup = !f.noBackup
	}
	if changed("trace-exporter") {
		cfg.Telemetry.TraceExporter = f.traceExporter
	}
	if changed("metric-exporter") {
		cfg.Telemetry.MetricExporter = f.metricExporter
	}
}

func (a *app) runReduce(ctx context.Context, cfg config.Config, file string) (err error) {
	logger, err := a.newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Slog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tcfg := telemetry.DefaultConfig()
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	tcfg.PrometheusPort = cfg.Telemetry.PrometheusPort
	tcfg.Logger = log
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := shutdown(sctx); serr != nil {
			log.Warn("telemetry shutdown failed", slog.String("error", serr.Error()))
		}
	}()

	opts, closeRecorder, err := buildOptions(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeRecorder(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	workDir := cfg.Oracle.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(file)
	}
	o := oracle.NewShell(cfg.Oracle.Command, workDir, cfg.Oracle.Timeout, log)
	o.Retry.MaxRetries = cfg.Oracle.Retries

	r, err := reduce.New(o, opts)
	if err != nil {
		return err
	}
	report, err := r.Run(ctx, file)
	a.printReport(report, err)
	return err
}

// buildOptions turns cfg into reducer options. The returned close function
// releases the checkpoint store and is never nil.
func buildOptions(cfg config.Config, log *slog.Logger) (reduce.Options, func() error, error) {
	noop := func() error { return nil }

	selected, err := passes.Lookup(cfg.Passes)
	if err != nil {
		return reduce.Options{}, noop, err
	}
	policy, err := deps.ParsePolicy(cfg.DependencyPolicy)
	if err != nil {
		return reduce.Options{}, noop, err
	}
	errPolicy, err := editor.ParseErrorPolicy(cfg.Oracle.ErrorPolicy)
	if err != nil {
		return reduce.Options{}, noop, err
	}

	src := diag.NewCompilerSource(cfg.Diagnostics.Compiler, cfg.Diagnostics.Flags, log)
	src.Timeout = cfg.Diagnostics.Timeout

	opts := reduce.Options{
		Passes:      selected,
		MaxRounds:   cfg.MaxRounds,
		Policy:      policy,
		ErrorPolicy: errPolicy,
		Diagnostics: src,
		Backup:      cfg.Backup,
		Logger:      log,
	}

	switch cfg.Checkpoint.Kind {
	case "dir":
		d, err := checkpoint.NewDir(cfg.Checkpoint.Path)
		if err != nil {
			return opts, noop, err
		}
		opts.Recorder = d
	case "badger":
		bcfg := checkpoint.DefaultBadgerConfig(cfg.Checkpoint.Path)
		bcfg.Logger = log
		db, err := checkpoint.OpenBadger(bcfg)
		if err != nil {
			return opts, noop, err
		}
		opts.Recorder = db
		return opts, db.Close, nil
	}
	return opts, noop, nil
}

// printReport writes the run summary. Runs that never got past the sanity
// check print nothing; execute reports their error.
func (a *app) printReport(r reduce.Report, err error) {
	if errors.Is(err, reduce.ErrNotInteresting) || r.OracleCalls == 0 {
		return
	}
	p := ux.NewPrinter(a.out)
	p.Title("Reduction")

	rounds := strconv.Itoa(r.Rounds)
	if r.FixedPoint {
		rounds += " (fixed point)"
	}
	p.Fields("Summary", []ux.Field{
		{Key: "file", Value: r.File},
		{Key: "run", Value: r.RunID},
		{Key: "bytes", Value: fmt.Sprintf("%d %s %d", r.InitialBytes, ux.IconArrow.Render(), r.FinalBytes)},
		{Key: "reduced", Value: p.ProgressBar(r.Reduction(), 30)},
		{Key: "rounds", Value: rounds},
		{Key: "oracle calls", Value: strconv.Itoa(r.OracleCalls)},
		{Key: "time", Value: r.Duration.Round(time.Millisecond).String()},
	})

	rows := make([][]string, 0, len(r.PerPass))
	for _, ps := range r.PerPass {
		rows = append(rows, []string{
			ps.Name,
			strconv.Itoa(ps.Candidates),
			strconv.Itoa(ps.OracleCalls),
			strconv.Itoa(ps.Accepted),
			strconv.Itoa(ps.Rejected),
			strconv.Itoa(ps.InvocationErrors),
			strconv.Itoa(ps.Filtered),
			strconv.Itoa(ps.BytesRemoved),
			ps.Duration.Round(time.Millisecond).String(),
		})
	}
	p.Table([]string{"pass", "candidates", "calls", "accepted", "rejected", "errors", "filtered", "bytes", "time"}, rows)

	if err == nil {
		p.Success(fmt.Sprintf("removed %d bytes from %s", r.Removed(), r.File))
	}
}

