// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultTimeout bounds one oracle run.
	DefaultTimeout = 60 * time.Second

	// maxOutput is how much trailing output is kept for diagnostics.
	maxOutput = 4096

	// shell exit statuses for "found but not executable" and "not found"
	exitNotExecutable = 126
	exitNotFound      = 127
)

// RetryConfig controls how invocation failures are retried. Timeouts and
// rejections are never retried.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero disables retrying.
	MaxRetries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries.
	MaxBackoff time.Duration
}

// DefaultRetryConfig retries twice, starting at 200ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if c.InitialBackoff > 0 {
		bo.InitialInterval = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		bo.MaxInterval = c.MaxBackoff
	}
	bo.MaxElapsedTime = 0
	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx)
}

// Command runs an external program as the oracle. Exit status 0 means
// interesting; any other exit status means not interesting.
//
// Description:
//
//	With Script set the program is "/bin/sh -c Script"; otherwise Argv is
//	executed directly. Each run is bounded by Timeout. A run that cannot
//	start, or a shell that reports status 126/127 (command not executable or
//	not found), is an ErrUnavailable invocation failure and is retried per
//	Retry. A run that exceeds Timeout is an ErrTimeout invocation failure.
//
// Thread Safety:
//
//	Not safe for concurrent use; the output tail kept for logging is
//	that of the most recent call.
type Command struct {
	Script  string
	Argv    []string
	Dir     string
	Env     []string
	Timeout time.Duration
	Retry   RetryConfig
	Logger  *slog.Logger

	// lastOutput is the output tail of the most recent run; lastExit its
	// exit status, -1 if it did not exit normally.
	lastOutput string
	lastExit   int
}

// NewShell returns a Command running script through /bin/sh in dir.
func NewShell(script, dir string, timeout time.Duration, logger *slog.Logger) *Command {
	if logger == nil {
		logger = slog.Default()
	}
	return &Command{
		Script:  script,
		Dir:     dir,
		Timeout: timeout,
		Retry:   DefaultRetryConfig(),
		Logger:  logger.With(slog.String("component", "oracle.Command")),
	}
}

// Check implements Oracle.
func (c *Command) Check(ctx context.Context) (bool, error) {
	var interesting bool
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		ok, err := c.run(ctx)
		if err == nil {
			interesting = ok
			return nil
		}
		if errors.Is(err, ErrUnavailable) {
			c.logger().Warn("oracle unavailable, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return err
		}
		return backoff.Permanent(err)
	}, c.Retry.backOff(ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		if !IsInvocationError(err) {
			// backoff gave up on a context error between attempts
			err = &InvocationError{Command: c.describe(), Err: err}
		}
		return false, err
	}
	return interesting, nil
}

func (c *Command) run(ctx context.Context) (bool, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	switch {
	case c.Script != "":
		cmd = exec.CommandContext(runCtx, "/bin/sh", "-c", c.Script)
	case len(c.Argv) > 0:
		cmd = exec.CommandContext(runCtx, c.Argv[0], c.Argv[1:]...)
	default:
		return false, &InvocationError{Command: "<empty>", Err: ErrUnavailable}
	}
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	cmd.WaitDelay = time.Second

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	c.lastOutput = tail(out.Bytes())
	c.lastExit = -1
	if cmd.ProcessState != nil {
		c.lastExit = cmd.ProcessState.ExitCode()
	}

	fail := func(cause error) (bool, error) {
		return false, &InvocationError{
			Command:  c.describe(),
			Err:      cause,
			Output:   c.lastOutput,
			Duration: elapsed,
		}
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fail(ErrTimeout)
	}
	if ctx.Err() != nil {
		return fail(ctx.Err())
	}
	if err == nil {
		c.logger().Debug("oracle accepted", slog.Duration("duration", elapsed))
		return true, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fail(errors.Join(ErrUnavailable, err))
	}
	if c.Script != "" && (c.lastExit == exitNotExecutable || c.lastExit == exitNotFound) {
		return fail(ErrUnavailable)
	}
	c.logger().Debug("oracle rejected",
		slog.Int("exit_code", c.lastExit),
		slog.String("output", c.lastOutput),
		slog.Duration("duration", elapsed))
	return false, nil
}

func (c *Command) describe() string {
	if c.Script != "" {
		return c.Script
	}
	return strings.Join(c.Argv, " ")
}

func (c *Command) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func tail(b []byte) string {
	if len(b) > maxOutput {
		b = b[len(b)-maxOutput:]
	}
	return string(b)
}
