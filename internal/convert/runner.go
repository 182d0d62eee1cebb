// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:generate go run go.uber.org/mock/mockgen -source=runner.go -destination=../mocks/mock_runner.go -package=mocks

package convert

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// stderrTail bounds how much tool output is kept in a ToolError.
	stderrTail = 512
	waitDelay  = 2 * time.Second
)

// Runner executes one external program to completion. Success is decided
// solely by the exit status; any failure is returned as an error.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	// Timeout bounds each call; zero means no limit.
	Timeout time.Duration
	Log     zerolog.Logger
}

// Run starts name with args and waits for it to exit.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Children that inherit stderr must not hold Wait open after a kill
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	r.Log.Trace().
		Str("tool", name).
		Strs("args", args).
		Dur("took", time.Since(start)).
		Err(err).
		Msg("tool finished")
	if err == nil {
		return nil
	}

	toolErr := &ToolError{
		Tool:     name,
		Args:     args,
		ExitCode: -1,
		Stderr:   tail(stderr.String(), stderrTail),
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !toolErr.TimedOut {
		toolErr.ExitCode = exitErr.ExitCode()
	}
	return toolErr
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
