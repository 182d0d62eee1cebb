// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convert

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// FORMATS
// =============================================================================

// ImageFormat is a conversion target.
type ImageFormat string

const (
	// FormatPNG is the still target for single-frame stickers.
	FormatPNG ImageFormat = "png"
	// FormatGIF is the animated target for multi-stream stickers.
	FormatGIF ImageFormat = "gif"
)

// Extension returns the file extension including the dot.
func (f ImageFormat) Extension() string {
	return "." + string(f)
}

// MediaType returns the MIME type of the format.
func (f ImageFormat) MediaType() string {
	return "image/" + string(f)
}

// =============================================================================
// STILL IMAGE TOOLS
// =============================================================================

// ImageTool converts a still image with one external process call.
// Implementations take the primary (highest resolution) frame when the
// source holds several.
type ImageTool interface {
	Name() string
	ConvertStill(ctx context.Context, r Runner, from, to string, format ImageFormat) error
}

// Sips is the macOS builtin image tool. It picks the primary image of a
// multi-image container by itself.
type Sips struct{}

// Name returns the executable name.
func (Sips) Name() string { return "sips" }

// ConvertStill runs `sips -s format <fmt> <from> -o <to>`.
func (s Sips) ConvertStill(ctx context.Context, r Runner, from, to string, format ImageFormat) error {
	return r.Run(ctx, s.Name(), "-s", "format", string(format), from, "-o", to)
}

// ImageMagick is the portable image tool.
type ImageMagick struct{}

// Name returns the executable name.
func (ImageMagick) Name() string { return "magick" }

// ConvertStill runs `magick <from>[0] <to>`. The output format follows the
// extension of to. Sticker containers hold several resolutions and
// ImageMagick would write every one of them without the [0] selector.
func (m ImageMagick) ConvertStill(ctx context.Context, r Runner, from, to string, _ ImageFormat) error {
	return r.Run(ctx, m.Name(), from+"[0]", to)
}

// ParseImageTool maps a configuration value to an ImageTool.
func ParseImageTool(name string) (ImageTool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sips":
		return Sips{}, nil
	case "magick", "imagemagick":
		return ImageMagick{}, nil
	default:
		return nil, fmt.Errorf("unsupported image tool %q (want sips or magick)", name)
	}
}

// =============================================================================
// VIDEO TOOLS
// =============================================================================

// VideoTool runs the stages of the animated sticker pipeline.
type VideoTool interface {
	Name() string
	// ExtractStream writes every frame of one container stream to the
	// numbered image pattern (printf style, e.g. frame_%04d.png).
	ExtractStream(ctx context.Context, r Runner, from string, stream int, pattern string) error
	// MergeAlpha applies a grayscale mask as the alpha channel of frame.
	MergeAlpha(ctx context.Context, r Runner, frame, mask, out string) error
	// Palette builds a palette from one frame, reserving a transparent entry.
	Palette(ctx context.Context, r Runner, frame, out string) error
	// Assemble renders the numbered frames with palette into an animation.
	Assemble(ctx context.Context, r Runner, pattern string, startNumber int, palette string, fps int, out string) error
}

// FFmpeg implements VideoTool with the ffmpeg command line.
type FFmpeg struct{}

// Name returns the executable name.
func (FFmpeg) Name() string { return "ffmpeg" }

// ExtractStream runs `ffmpeg -i <from> -map 0:<stream> -y <pattern>`.
func (f FFmpeg) ExtractStream(ctx context.Context, r Runner, from string, stream int, pattern string) error {
	return r.Run(ctx, f.Name(), "-loglevel", "error", "-i", from, "-map", fmt.Sprintf("0:%d", stream), "-y", pattern)
}

// MergeAlpha runs the alphamerge filter over a frame/mask pair.
func (f FFmpeg) MergeAlpha(ctx context.Context, r Runner, frame, mask, out string) error {
	return r.Run(ctx, f.Name(), "-loglevel", "error",
		"-i", frame,
		"-i", mask,
		"-filter_complex", "[1:v]format=gray,geq=lum='p(X,Y)':a='p(X,Y)'[mask];[0:v][mask]alphamerge",
		"-y", out,
	)
}

// Palette runs palettegen with one reserved transparent entry.
func (f FFmpeg) Palette(ctx context.Context, r Runner, frame, out string) error {
	return r.Run(ctx, f.Name(), "-loglevel", "error",
		"-i", frame,
		"-vf", "palettegen=reserve_transparent=1",
		"-y", out,
	)
}

// Assemble renders a GIF at fps with timestamp offsetting disabled.
func (f FFmpeg) Assemble(ctx context.Context, r Runner, pattern string, startNumber int, palette string, fps int, out string) error {
	return r.Run(ctx, f.Name(), "-loglevel", "error",
		"-start_number", fmt.Sprint(startNumber),
		"-i", pattern,
		"-i", palette,
		"-lavfi", fmt.Sprintf("fps=%d,paletteuse=alpha_threshold=128", fps),
		"-gifflags", "-offsetting",
		"-y", out,
	)
}

// ParseVideoTool maps a configuration value to a VideoTool. Empty and
// "none" disable animated conversion and return nil.
func ParseVideoTool(name string) (VideoTool, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return nil, nil
	case "ffmpeg":
		return FFmpeg{}, nil
	default:
		return nil, fmt.Errorf("unsupported video tool %q (want ffmpeg or none)", name)
	}
}
