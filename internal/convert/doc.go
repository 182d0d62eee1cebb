// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package convert turns sticker attachments into widely supported image
// formats using external tools.
//
// A conversion walks a fixed cascade. Animated HEIC sequences are rendered
// to GIF through a staged video-tool pipeline inside a private scratch
// workspace; if that fails, or for plain HEIC stickers, a still-image tool
// extracts the primary frame; if that fails too, the original bytes are
// copied. Every attachment ends up at its destination in some form.
//
// # Key Types
//
//   - Converter: runs the cascade for one attachment
//   - Pool: bounded parallel conversion with results in request order
//   - ImageTool: Sips or ImageMagick
//   - VideoTool: FFmpeg
//   - Runner: executes one external program (ExecRunner in production)
//
// # Usage
//
//	runner := convert.ExecRunner{Timeout: 2 * time.Minute, Log: log}
//	conv := convert.New(convert.ImageMagick{}, convert.FFmpeg{}, runner, scratchDir, log)
//	res, err := conv.Convert(ctx, convert.Request{
//		Source:      "/path/to/sticker.heics",
//		Destination: "/out/attachments/42",
//		MediaType:   "image/heics",
//	})
package convert
