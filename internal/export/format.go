// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// RECORDS
// =============================================================================

// Record is one message ready to be encoded.
type Record struct {
	Timestamp time.Time
	Sender    string
	Receiver  string
	Text      string
	// ConversationID is the canonical chat, nil for orphaned messages.
	ConversationID *int64
	GUID           string
	Service        string
	IsFromMe       bool
	IsRead         bool
	DateRead       time.Time
	DateDelivered  time.Time
	Attachments    []AttachmentRecord
}

// AttachmentRecord is one exported attachment of a Record.
type AttachmentRecord struct {
	// Path is relative to the export directory. Empty when the source
	// file was missing.
	Path      string `json:"path,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	Converted bool   `json:"converted"`
	Missing   bool   `json:"missing,omitempty"`
}

// =============================================================================
// FORMATTER INTERFACE
// =============================================================================

// Formatter encodes records for an append-only output file. Every call to
// Format returns a self-contained chunk so records can be appended to an
// existing file.
type Formatter interface {
	// Format encodes one record including its trailing newline.
	Format(r Record) ([]byte, error)

	// FileExtension returns the file extension (e.g., ".json", ".txt").
	FileExtension() string

	// MimeType returns the MIME type of the encoded records.
	MimeType() string
}

// Format names accepted by NewFormatter.
const (
	FormatJSON     = "json"
	FormatText     = "txt"
	FormatMarkdown = "md"
)

// NewFormatter returns the formatter for a format name.
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON, "jsonl":
		return JSONFormatter{}, nil
	case FormatText, "text":
		return TextFormatter{}, nil
	case FormatMarkdown, "markdown":
		return MarkdownFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// timestampLayout is used for every rendered time.
const timestampLayout = "2006-01-02 15:04:05"

// notAvailable stands in for timestamps that were never set.
const notAvailable = "N/A"

// formatTimestamp renders t in local time, or N/A for the zero time.
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return notAvailable
	}
	return t.Local().Format(timestampLayout)
}
