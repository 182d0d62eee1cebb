// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeranaias/chatvault/internal/util"
)

// =============================================================================
// TYPES
// =============================================================================

// OutcomeKind tells whether an attachment was converted or copied as is.
type OutcomeKind int

const (
	// Converted means a tool produced the file in a new format.
	Converted OutcomeKind = iota
	// PassthroughCopy means the original bytes were copied.
	PassthroughCopy
)

// String returns the outcome name.
func (k OutcomeKind) String() string {
	switch k {
	case Converted:
		return "converted"
	case PassthroughCopy:
		return "passthrough"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome describes what happened to one attachment.
type Outcome struct {
	Kind OutcomeKind
	// MediaType is the final MIME type when Kind is Converted.
	MediaType string
}

// Request is one attachment to convert.
type Request struct {
	// Source is the attachment file on disk.
	Source string
	// Destination is the output path without extension. The extension is
	// chosen by the outcome.
	Destination string
	// MediaType is the declared MIME type or bare subtype. When empty the
	// source bytes are sniffed.
	MediaType string
}

// Result is the final location and outcome of a Request.
type Result struct {
	Path    string
	Outcome Outcome
	Bytes   int64
}

// =============================================================================
// CONVERTER
// =============================================================================

// Converter turns sticker attachments into widely supported formats,
// falling back to a raw copy when no tool succeeds. It is safe for
// concurrent use.
type Converter struct {
	image       ImageTool
	video       VideoTool
	runner      Runner
	scratchRoot string
	log         zerolog.Logger
}

// New creates a Converter. video may be nil to disable animated conversion.
// Scratch workspaces are created under scratchRoot.
func New(image ImageTool, video VideoTool, runner Runner, scratchRoot string, log zerolog.Logger) *Converter {
	return &Converter{
		image:       image,
		video:       video,
		runner:      runner,
		scratchRoot: scratchRoot,
		log:         log.With().Str("component", "convert").Logger(),
	}
}

// Convert places req.Source at req.Destination, converting HEIC stickers to
// PNG and animated HEIC sequences to GIF.
//
// Tool failures are never returned: they fall through to the next strategy
// and end in a raw copy. The returned errors are ErrSourceMissing, a
// *FileSystemError when the destination cannot be written, or the context
// error when ctx is done.
func (c *Converter) Convert(ctx context.Context, req Request) (Result, error) {
	info, err := os.Stat(req.Source)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Result{}, fmt.Errorf("%w: %s", ErrSourceMissing, req.Source)
	case err != nil:
		return Result{}, &FileSystemError{Op: "stat", Path: req.Source, Err: err}
	case info.IsDir():
		return Result{}, fmt.Errorf("%w: %s is a directory", ErrSourceMissing, req.Source)
	}

	if err := os.MkdirAll(filepath.Dir(req.Destination), 0o755); err != nil {
		return Result{}, &FileSystemError{Op: "create directory", Path: filepath.Dir(req.Destination), Err: err}
	}

	subtype := Subtype(req.MediaType)
	if subtype == "" {
		subtype = sniffSubtype(req.Source)
	}

	target, ok := TargetFor(subtype)
	if !ok {
		return c.copyRaw(req)
	}
	to := req.Destination + target.Extension()

	if err := validatePaths(req.Source, to); err != nil {
		c.log.Warn().Err(err).Str("source", req.Source).Msg("unable to convert attachment")
		return c.copyRaw(req)
	}

	if target == FormatGIF && c.video != nil {
		err := c.convertAnimated(ctx, req.Source, to)
		if err == nil {
			return c.converted(to, target)
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		c.log.Debug().Err(err).Str("source", req.Source).Msg("animated conversion failed, trying still image")
	}

	err = c.convertStill(ctx, req.Source, to, target)
	if err == nil {
		return c.converted(to, target)
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	c.log.Warn().Err(err).Str("source", req.Source).Msg("unable to convert attachment")

	return c.copyRaw(req)
}

// convertStill runs the image tool into a sibling temp file and renames it
// over to once the tool reports success.
func (c *Converter) convertStill(ctx context.Context, from, to string, format ImageFormat) error {
	tmp := filepath.Join(filepath.Dir(to), ".tmp-"+uuid.NewString()+format.Extension())
	defer os.Remove(tmp)

	if err := c.image.ConvertStill(ctx, c.runner, from, tmp, format); err != nil {
		return err
	}
	if info, err := os.Stat(tmp); err != nil || info.Size() == 0 {
		return fmt.Errorf("%s produced no output", c.image.Name())
	}
	if err := os.Rename(tmp, to); err != nil {
		return &FileSystemError{Op: "rename", Path: to, Err: err}
	}
	return nil
}

// copyRaw copies the source bytes to the destination with the source's
// own extension.
func (c *Converter) copyRaw(req Request) (Result, error) {
	to := req.Destination + filepath.Ext(req.Source)
	n, err := util.AtomicCopyFile(req.Source, to, 0o644)
	if err != nil {
		return Result{}, &FileSystemError{Op: "copy", Path: to, Err: err}
	}
	return Result{Path: to, Outcome: Outcome{Kind: PassthroughCopy}, Bytes: n}, nil
}

func (c *Converter) converted(path string, format ImageFormat) (Result, error) {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	return Result{
		Path:    path,
		Outcome: Outcome{Kind: Converted, MediaType: format.MediaType()},
		Bytes:   size,
	}, nil
}

// validatePaths rejects paths that cannot be passed to a tool intact.
func validatePaths(paths ...string) error {
	for _, p := range paths {
		switch {
		case !utf8.ValidString(p):
			return &PathError{Path: p, Reason: "not valid UTF-8"}
		case strings.ContainsRune(p, 0):
			return &PathError{Path: p, Reason: "contains NUL byte"}
		}
	}
	return nil
}
