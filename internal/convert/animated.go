// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convert

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/jeranaias/chatvault/internal/util"
)

// =============================================================================
// ANIMATED PIPELINE
// =============================================================================

const (
	// stickerFPS is the frame rate Apple renders animated stickers at.
	stickerFPS = 10

	// Container streams 0 and 1 hold the poster still and its mask.
	colorStream = 2
	alphaStream = 3

	framePattern  = "frame_%04d.png"
	alphaPattern  = "alpha_%04d.png"
	mergedPattern = "merged_%04d.png"
	paletteName   = "palette.png"
	animationName = "animation.gif"
)

// convertAnimated renders an animated sticker into a GIF at to. Nothing is
// written at to unless every stage succeeds. The workspace is always removed.
func (c *Converter) convertAnimated(ctx context.Context, from, to string) error {
	ws, err := NewWorkspace(c.scratchRoot)
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := ws.Remove(); rmErr != nil {
			c.log.Warn().Err(rmErr).Msg("failed to remove scratch workspace")
		}
	}()

	// Each stage refreshes the workspace so its age stays within one
	// tool call.
	ws.Touch()
	if err := c.video.ExtractStream(ctx, c.runner, from, colorStream, ws.Path(framePattern)); err != nil {
		return fmt.Errorf("extract frames: %w", err)
	}
	ws.Touch()
	if err := c.video.ExtractStream(ctx, c.runner, from, alphaStream, ws.Path(alphaPattern)); err != nil {
		return fmt.Errorf("extract masks: %w", err)
	}

	indices, err := pairedFrames(ws)
	if err != nil {
		return err
	}

	// Merged frames are numbered densely from 1 so the assembler never
	// stops at a gap left by a frame without a mask.
	for i, idx := range indices {
		frame := ws.Path(fmt.Sprintf(framePattern, idx))
		mask := ws.Path(fmt.Sprintf(alphaPattern, idx))
		merged := ws.Path(fmt.Sprintf(mergedPattern, i+1))
		ws.Touch()
		if err := c.video.MergeAlpha(ctx, c.runner, frame, mask, merged); err != nil {
			return fmt.Errorf("merge frame %d: %w", idx, err)
		}
	}

	palette := ws.Path(paletteName)
	ws.Touch()
	if err := c.video.Palette(ctx, c.runner, ws.Path(fmt.Sprintf(mergedPattern, 1)), palette); err != nil {
		return fmt.Errorf("generate palette: %w", err)
	}

	out := ws.Path(animationName)
	ws.Touch()
	if err := c.video.Assemble(ctx, c.runner, ws.Path(mergedPattern), 1, palette, stickerFPS, out); err != nil {
		return fmt.Errorf("assemble animation: %w", err)
	}
	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return fmt.Errorf("assemble animation: %s produced no output", c.video.Name())
	}

	return moveInto(out, to)
}

// pairedFrames returns the ascending frame indices that have both a color
// frame and an alpha mask in ws.
func pairedFrames(ws *Workspace) ([]int, error) {
	frames, err := frameIndices(ws.Dir, framePattern)
	if err != nil {
		return nil, err
	}
	masks, err := frameIndices(ws.Dir, alphaPattern)
	if err != nil {
		return nil, err
	}

	var paired []int
	for _, idx := range frames {
		if _, ok := slices.BinarySearch(masks, idx); ok {
			paired = append(paired, idx)
		}
	}
	if len(paired) == 0 {
		return nil, ErrNoFrames
	}
	return paired, nil
}

// frameIndices lists the numbers of files in dir matching a %04d pattern.
func frameIndices(dir, pattern string) ([]int, error) {
	prefix, suffix, _ := strings.Cut(pattern, "%04d")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &FileSystemError{Op: "read workspace", Path: dir, Err: err}
	}

	var indices []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix))
		if err != nil {
			continue
		}
		indices = append(indices, n)
	}
	slices.Sort(indices)
	return indices, nil
}

// moveInto places a finished file at dst. A rename is tried first; when
// the scratch root lives on another file system the bytes are copied
// atomically instead.
func moveInto(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if _, err := util.AtomicCopyFile(src, dst, 0o644); err != nil {
		return &FileSystemError{Op: "move", Path: dst, Err: err}
	}
	return nil
}
