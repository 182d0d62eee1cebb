// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convert_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatvault/internal/convert"
)

func TestPool_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	var reqs []convert.Request
	for i := range 12 {
		name := fmt.Sprintf("a%02d.heic", i)
		if i%3 == 0 {
			name = fmt.Sprintf("a%02d.jpg", i)
		}
		src := filepath.Join(dir, "in", name)
		require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
		require.NoError(t, os.WriteFile(src, []byte(name), 0o644))

		mediaType := "image/heic"
		if i%3 == 0 {
			mediaType = "image/jpeg"
		}
		reqs = append(reqs, convert.Request{
			Source:      src,
			Destination: filepath.Join(dir, "out", fmt.Sprint(i)),
			MediaType:   mediaType,
		})
	}

	conv := convert.New(convert.ImageMagick{}, nil, newFakeRunner(0, 0), filepath.Join(dir, "scratch"), zerolog.Nop())
	pool := convert.NewPool(conv, 4)
	require.Equal(t, 4, pool.Workers())

	results, errs, err := pool.ConvertAll(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, len(reqs))
	require.Len(t, errs, len(reqs))

	for i, res := range results {
		require.NoError(t, errs[i])
		if i%3 == 0 {
			require.Equal(t, filepath.Join(dir, "out", fmt.Sprint(i))+".jpg", res.Path)
			require.Equal(t, convert.PassthroughCopy, res.Outcome.Kind)
		} else {
			require.Equal(t, filepath.Join(dir, "out", fmt.Sprint(i))+".png", res.Path)
			require.Equal(t, convert.Converted, res.Outcome.Kind)
		}
	}
}

func TestPool_MissingSourceIsPerRequest(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.jpg")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))

	conv := convert.New(convert.ImageMagick{}, nil, newFakeRunner(0, 0), dir, zerolog.Nop())
	results, errs, err := convert.NewPool(conv, 2).ConvertAll(context.Background(), []convert.Request{
		{Source: filepath.Join(dir, "missing.heic"), Destination: filepath.Join(dir, "out", "0")},
		{Source: present, Destination: filepath.Join(dir, "out", "1")},
	})
	require.NoError(t, err)
	require.ErrorIs(t, errs[0], convert.ErrSourceMissing)
	require.NoError(t, errs[1])
	require.FileExists(t, results[1].Path)
}

func TestPool_StopsOnFatalError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	conv := convert.New(convert.ImageMagick{}, nil, newFakeRunner(0, 0), dir, zerolog.Nop())
	_, _, err := convert.NewPool(conv, 1).ConvertAll(context.Background(), []convert.Request{
		{Source: src, Destination: filepath.Join(dir, "ok", "0")},
		{Source: src, Destination: filepath.Join(blocker, "1")},
		{Source: src, Destination: filepath.Join(dir, "ok", "2")},
	})
	require.Error(t, err)
	require.True(t, convert.IsFatal(err))

	// workers=1 runs strictly in order, so nothing after the failure ran
	require.NoFileExists(t, filepath.Join(dir, "ok", "2.jpg"))
}

func TestNewPool_ClampsWorkers(t *testing.T) {
	require.Equal(t, 1, convert.NewPool(nil, 0).Workers())
}

// =============================================================================
// SCRATCH
// =============================================================================

func TestCleanScratch(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	for _, name := range []string{"sticker-a", "sticker-b"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
		require.NoError(t, os.Chtimes(dir, old, old))
	}
	require.NoError(t, os.Mkdir(filepath.Join(root, "sticker-live"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(root, "keep"), 0o755))
	require.NoError(t, os.Chtimes(filepath.Join(root, "keep"), old, old))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sticker-file"), nil, 0o644))

	removed, err := convert.CleanScratch(root, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.DirExists(t, filepath.Join(root, "keep"))
	require.DirExists(t, filepath.Join(root, "sticker-live"))
	require.FileExists(t, filepath.Join(root, "sticker-file"))
	require.NoDirExists(t, filepath.Join(root, "sticker-a"))
}

func TestCleanScratch_MissingRoot(t *testing.T) {
	removed, err := convert.CleanScratch(filepath.Join(t.TempDir(), "nope"), time.Hour)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestWorkspace_TouchKeepsItLive(t *testing.T) {
	root := t.TempDir()
	ws, err := convert.NewWorkspace(root)
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(ws.Dir, old, old))
	ws.Touch()

	removed, err := convert.CleanScratch(root, time.Hour)
	require.NoError(t, err)
	require.Zero(t, removed)
	require.DirExists(t, ws.Dir)
}

func TestWorkspace_UniquePerAttempt(t *testing.T) {
	root := t.TempDir()
	a, err := convert.NewWorkspace(root)
	require.NoError(t, err)
	b, err := convert.NewWorkspace(root)
	require.NoError(t, err)
	require.NotEqual(t, a.Dir, b.Dir)

	require.NoError(t, a.Remove())
	require.NoDirExists(t, a.Dir)
	require.DirExists(t, b.Dir)
}

// =============================================================================
// EXEC RUNNER
// =============================================================================

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
}

func TestExecRunner_Success(t *testing.T) {
	requireShell(t)
	r := convert.ExecRunner{Log: zerolog.Nop()}
	require.NoError(t, r.Run(context.Background(), "sh", "-c", "exit 0"))
}

func TestExecRunner_ExitCode(t *testing.T) {
	requireShell(t)
	r := convert.ExecRunner{Log: zerolog.Nop()}
	err := r.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")

	var toolErr *convert.ToolError
	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, 3, toolErr.ExitCode)
	require.Equal(t, "boom", toolErr.Stderr)
	require.False(t, toolErr.TimedOut)
	require.Contains(t, toolErr.Error(), "exited with code 3")
}

func TestExecRunner_Timeout(t *testing.T) {
	requireShell(t)
	r := convert.ExecRunner{Timeout: 50 * time.Millisecond, Log: zerolog.Nop()}
	err := r.Run(context.Background(), "sh", "-c", "exec sleep 5")

	var toolErr *convert.ToolError
	require.ErrorAs(t, err, &toolErr)
	require.True(t, toolErr.TimedOut)
}

func TestExecRunner_NotFound(t *testing.T) {
	r := convert.ExecRunner{Log: zerolog.Nop()}
	err := r.Run(context.Background(), "chatvault-no-such-tool")

	var toolErr *convert.ToolError
	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, -1, toolErr.ExitCode)
}

func TestLookupTool(t *testing.T) {
	status := convert.LookupTool("chatvault-no-such-tool")
	require.False(t, status.Available)
	require.Empty(t, status.Path)
}
