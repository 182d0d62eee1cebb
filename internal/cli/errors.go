// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for chatvault commands.
//
// Handlers always return errors and never print them; main decides how to
// display them and which exit code to use.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/chatvault/internal/config"
	"github.com/jeranaias/chatvault/internal/convert"
	"github.com/jeranaias/chatvault/internal/export"
	"github.com/jeranaias/chatvault/internal/storage"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitIOError indicates the export directory could not be written
	ExitIOError = 5
	// ExitInterrupted indicates the run was cancelled (Ctrl-C)
	ExitInterrupted = 6
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES FOR STRUCTURED ERROR HANDLING
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "export")
	Action  string // Action being performed (e.g., "open database")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid value (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// =============================================================================
// ERROR CONSTRUCTION HELPERS
// =============================================================================

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{
		Command: command,
		Action:  action,
		Reason:  reason,
		Err:     err,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// NewValidationErrorWithExample creates a validation error with an example.
func NewValidationErrorWithExample(field, value, reason, example string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Reason:  reason,
		Example: example,
	}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err to w. In JSON mode a JSONResponse is written
// instead of the plain message.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		NewJSONErrorResponse(command, err).Print(w)
		return
	}
	fmt.Fprintf(w, "[ERROR] %s\n", err.Error())
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ExitUsageError
	}

	var configErrs config.ValidateErrors
	var configErr config.ValidationError
	if errors.As(err, &configErrs) || errors.As(err, &configErr) {
		return ExitConfigError
	}

	if errors.Is(err, storage.ErrDatabaseNotFound) || errors.Is(err, convert.ErrSourceMissing) {
		return ExitNotFoundError
	}

	var fsErr *convert.FileSystemError
	var createErr *export.CreateError
	if errors.As(err, &fsErr) || errors.As(err, &createErr) {
		return ExitIOError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ExitTimeoutError
	}
	if errors.Is(err, context.Canceled) {
		return ExitInterrupted
	}

	return ExitGeneralError
}
