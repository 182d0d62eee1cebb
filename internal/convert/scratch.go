// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// workspacePrefix marks directories owned by a conversion attempt.
const workspacePrefix = "sticker-"

// Workspace is a uniquely named scratch directory owned by one animated
// conversion attempt.
type Workspace struct {
	Dir string
}

// NewWorkspace creates a fresh workspace under root.
func NewWorkspace(root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, &FileSystemError{Op: "create scratch root", Path: root, Err: err}
	}
	dir := filepath.Join(root, workspacePrefix+uuid.NewString())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, &FileSystemError{Op: "create workspace", Path: dir, Err: err}
	}
	return &Workspace{Dir: dir}, nil
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, name)
}

// Touch marks the workspace as in use so CleanScratch in another run
// leaves it alone.
func (w *Workspace) Touch() {
	now := time.Now()
	_ = os.Chtimes(w.Dir, now, now)
}

// Remove deletes the workspace and everything in it.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return &FileSystemError{Op: "remove workspace", Path: w.Dir, Err: err}
	}
	return nil
}

// CleanScratch removes workspaces left under root by runs that did not
// finish. Only workspaces untouched for longer than staleAfter are removed,
// so conversions in flight in other processes sharing root survive.
// It returns how many were removed. A missing root is not an error.
func CleanScratch(root string, staleAfter time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read scratch root: %w", err)
	}

	var (
		removed int
		errs    []error
	)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workspacePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || time.Since(info.ModTime()) < staleAfter {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
