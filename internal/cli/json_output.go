// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output support for scripting.
//
// Every command that accepts --json prints exactly one JSONResponse on
// stdout. Logs stay on stderr.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// JSONResponse is the standardized response format for all CLI commands.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// ExitCode mirrors the process exit code
	ExitCode int `json:"exit_code"`

	// Timestamp is the ISO8601 timestamp when the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a new error JSON response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		ExitCode:  GetExitCode(err),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the JSON response to w.
func (r *JSONResponse) Print(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// String returns the JSON response as a string.
func (r *JSONResponse) String() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":"failed to marshal response: %s","timestamp":"%s"}`,
			err.Error(), time.Now().UTC().Format(time.RFC3339))
	}
	return string(data)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// ExportData represents the data returned by the export command.
type ExportData struct {
	Database               string   `json:"database"`
	OutputDir              string   `json:"output_dir"`
	Format                 string   `json:"format"`
	Messages               int      `json:"messages"`
	Orphans                int      `json:"orphans"`
	Conversations          int      `json:"conversations"`
	Files                  int      `json:"files"`
	DuplicateConversations int      `json:"duplicate_conversations"`
	DuplicateHandles       int      `json:"duplicate_handles"`
	Converted              int      `json:"converted"`
	Passthrough            int      `json:"passthrough"`
	Missing                int      `json:"missing"`
	RecordBytes            int64    `json:"record_bytes"`
	AttachmentBytes        int64    `json:"attachment_bytes"`
	ElapsedMs              int64    `json:"elapsed_ms"`
	Paths                  []string `json:"paths,omitempty"`
}

// DiagnoseData represents the data returned by the diagnose command.
type DiagnoseData struct {
	Database               string           `json:"database"`
	Chats                  int              `json:"chats"`
	Handles                int              `json:"handles"`
	Messages               int              `json:"messages"`
	Conversations          int              `json:"conversations"`
	DuplicateConversations int              `json:"duplicate_conversations"`
	DuplicateHandles       int              `json:"duplicate_handles"`
	Groups                 []DuplicateGroup `json:"groups,omitempty"`
	Animated               bool             `json:"animated"`
	Tools                  []DiagnoseTool   `json:"tools"`
	Healthy                bool             `json:"healthy"`
}

// DuplicateGroup lists the chat IDs merged into one conversation.
type DuplicateGroup struct {
	Canonical int64   `json:"canonical"`
	Title     string  `json:"title"`
	Members   []int64 `json:"members"`
}

// DiagnoseTool reports one external converter.
type DiagnoseTool struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	Available bool   `json:"available"`
}

// VersionData represents the data returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}
