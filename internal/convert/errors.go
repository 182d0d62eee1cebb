// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convert

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrPathEncoding marks a path that cannot be handed to an external tool.
	ErrPathEncoding = errors.New("path not representable")
	// ErrSourceMissing is returned when the attachment file does not exist.
	ErrSourceMissing = errors.New("attachment source missing")
	// ErrNoFrames is returned when demuxing produced no usable frame/mask pair.
	ErrNoFrames = errors.New("no frames extracted")
)

// PathError reports a source or destination path rejected before any
// process is spawned. It matches ErrPathEncoding with errors.Is.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: %q: %s", ErrPathEncoding, e.Path, e.Reason)
}

// Is implements errors.Is support for ErrPathEncoding.
func (e *PathError) Is(target error) bool {
	return target == ErrPathEncoding
}

// ToolError reports an external tool that could not be started or exited
// with a nonzero status.
type ToolError struct {
	Tool     string
	Args     []string
	ExitCode int    // -1 when the process never ran to completion
	Stderr   string // tail of the tool's stderr
	TimedOut bool
	Err      error
}

func (e *ToolError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Tool)
	switch {
	case e.TimedOut:
		sb.WriteString(" timed out")
	case e.ExitCode >= 0:
		fmt.Fprintf(&sb, " exited with code %d", e.ExitCode)
	default:
		fmt.Fprintf(&sb, " failed to start: %v", e.Err)
	}
	if e.Stderr != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Stderr)
	}
	return sb.String()
}

// Unwrap returns the underlying process error.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// FileSystemError reports a file-system operation that failed during
// conversion. Unlike tool failures it is not recovered by the fallback
// cascade when it prevents the final copy.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileSystemError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err must abort the surrounding export.
// A missing source is not fatal; file-system failures and cancellation are.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fsErr *FileSystemError
	return errors.As(err, &fsErr) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
