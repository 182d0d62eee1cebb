// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"path/filepath"
	"strings"
)

// =============================================================================
// MARKDOWN FORMATTER
// =============================================================================

// MarkdownFormatter writes each message as a Markdown section. Image
// attachments are embedded, other files are linked.
type MarkdownFormatter struct{}

// Format encodes r as Markdown.
func (MarkdownFormatter) Format(r Record) ([]byte, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", escapeMarkdown(r.Sender), formatTimestamp(r.Timestamp))

	if text := strings.TrimSpace(r.Text); text != "" {
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	for _, a := range r.Attachments {
		switch {
		case a.Missing:
			sb.WriteString("- *attachment missing*\n")
		case strings.HasPrefix(a.MediaType, "image/"):
			fmt.Fprintf(&sb, "- ![%s](%s)\n", escapeMarkdown(filepath.Base(a.Path)), filepath.ToSlash(a.Path))
		default:
			fmt.Fprintf(&sb, "- [%s](%s)\n", escapeMarkdown(filepath.Base(a.Path)), filepath.ToSlash(a.Path))
		}
	}
	if len(r.Attachments) > 0 {
		sb.WriteByte('\n')
	}

	sb.WriteString("---\n\n")
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (MarkdownFormatter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (MarkdownFormatter) MimeType() string {
	return "text/markdown"
}

// escapeMarkdown escapes characters that would break inline formatting.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}
