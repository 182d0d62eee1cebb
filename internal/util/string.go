// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// TruncateWidth truncates a string to a maximum display width.
// Double-width characters (CJK, most emoji) take 2 columns.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	return runewidth.Truncate(s, maxWidth, "")
}

// SanitizeFilename replaces characters that are invalid in file names on
// Windows or Unix and truncates the result to maxWidth display columns.
// An empty result becomes fallback.
func SanitizeFilename(s string, maxWidth int, fallback string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			sb.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			sb.WriteRune('_')
		case r < 32 || r == 127:
			sb.WriteRune('-')
		default:
			sb.WriteRune(r)
		}
	}

	result := strings.Trim(TruncateWidth(sb.String(), maxWidth), "._")
	if result == "" {
		return fallback
	}
	return result
}
