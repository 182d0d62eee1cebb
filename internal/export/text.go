// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
)

// =============================================================================
// TEXT FORMATTER
// =============================================================================

// TextFormatter writes one line per message plus one indented line per
// attachment:
//
//	2024-01-02 15:04:05 | Me: see you there
//	    [attachment] attachments/42.png (converted)
type TextFormatter struct{}

// Format encodes r as plain text.
func (TextFormatter) Format(r Record) ([]byte, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s | %s: %s\n", formatTimestamp(r.Timestamp), r.Sender, oneLine(r.Text))
	for _, a := range r.Attachments {
		sb.WriteString("    [attachment] ")
		sb.WriteString(describeAttachment(a))
		sb.WriteByte('\n')
	}
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for text.
func (TextFormatter) FileExtension() string {
	return ".txt"
}

// MimeType returns the MIME type for text.
func (TextFormatter) MimeType() string {
	return "text/plain"
}

// oneLine keeps multi-line messages readable inside a single record line.
func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\n    ")
}

func describeAttachment(a AttachmentRecord) string {
	if a.Missing {
		return "(missing)"
	}
	if a.Converted {
		return a.Path + " (converted)"
	}
	return a.Path
}
