// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// RELIABILITY: Atomic copy with fsync prevents partial files at the target path
//
// AtomicCopyFile copies src to dst using the following pattern:
// 1. Copy into a temporary file in the destination directory
// 2. Sync the data to disk using fsync
// 3. Close the file
// 4. Atomically rename the temp file to dst
//
// The parent directory of dst is created when missing. On failure dst is
// left untouched: either the old file or the new complete file exists.
// It returns the number of bytes copied.
func AtomicCopyFile(src, dst string, perm os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	absPath, err := filepath.Abs(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to get absolute path: %w", err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create parent directory: %w", err)
	}

	// Same directory keeps the rename on one filesystem
	f, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(tempPath)
		}
	}()

	n, err := io.Copy(f, in)
	if err != nil {
		return 0, fmt.Errorf("failed to write data: %w", err)
	}

	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync data to disk: %w", err)
	}

	// Close before rename - required on some systems (Windows)
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tempPath, perm); err != nil {
		return 0, fmt.Errorf("failed to set file permissions: %w", err)
	}

	if err := os.Rename(tempPath, absPath); err != nil {
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return n, nil
}
