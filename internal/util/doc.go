// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the chatvault packages.
//
// # Key Functions
//
// File Operations:
//   - AtomicCopyFile: Crash-safe copy with fsync, never leaves a partial target
//
// String Utilities:
//   - TruncateWidth: display-width aware truncation
//   - SanitizeFilename: portable file names from arbitrary labels
//
// # Usage
//
//	// Copy an attachment without exposing a half-written file
//	n, err := util.AtomicCopyFile(src, dst, 0644)
//
//	// Build a file name from a chat display name
//	name := util.SanitizeFilename(chat.DisplayName, 64, "chat")
package util
