// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convert

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// TargetFor returns the conversion target for a media subtype. The second
// result is false when the subtype is passed through unchanged.
//
//	heic                  -> png
//	heics, heic-sequence  -> gif
func TargetFor(subtype string) (ImageFormat, bool) {
	switch strings.ToLower(subtype) {
	case "heic":
		return FormatPNG, true
	case "heics", "heic-sequence":
		return FormatGIF, true
	default:
		return "", false
	}
}

// Subtype returns the part of a MIME type after the slash, without
// parameters. A bare subtype is returned as is.
func Subtype(mediaType string) string {
	mediaType, _, _ = strings.Cut(mediaType, ";")
	if _, sub, ok := strings.Cut(mediaType, "/"); ok {
		mediaType = sub
	}
	return strings.TrimSpace(mediaType)
}

// sniffSubtype detects the subtype from the file's leading bytes.
// Unrecognized content yields "".
func sniffSubtype(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil || mt.Is("application/octet-stream") {
		return ""
	}
	return Subtype(mt.String())
}
