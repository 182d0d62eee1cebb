// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"path/filepath"
	"strings"
	"time"
)

// =============================================================================
// TABLE TYPES
// =============================================================================

// Chat is one row of the chat table.
type Chat struct {
	ID          int64
	Identifier  string // chat_identifier, e.g. a phone number or "chat1234..."
	Service     string // "iMessage", "SMS", ...
	DisplayName string // group name, empty for most 1:1 chats
}

// Name returns the display name, falling back to the chat identifier.
func (c Chat) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Identifier
}

// Handle is one row of the handle table.
type Handle struct {
	ID      int64
	Address string // phone number or e-mail address
}

// Message is one row of the message table joined with its chat.
type Message struct {
	ID             int64
	GUID           string
	Text           string
	Service        string
	HandleID       int64
	Date           time.Time
	DateRead       time.Time
	DateDelivered  time.Time
	IsFromMe       bool
	IsRead         bool
	HasAttachments bool

	// ChatID is nil for messages that belong to no chat (orphans).
	ChatID *int64
}

// Attachment is one row of the attachment table.
type Attachment struct {
	ID           int64
	Filename     string // as stored, may start with "~"
	Path         string // Filename resolved against the attachment root
	MimeType     string // e.g. "image/heic"
	UTI          string // e.g. "public.heic"
	TransferName string // original file name shown to the user
	TotalBytes   int64
	IsSticker    bool
}

// Subtype returns the declared media subtype ("heic", "heics", "png", ...).
// The MIME type wins; the UTI is used when no MIME type is recorded.
func (a Attachment) Subtype() string {
	if _, sub, ok := strings.Cut(a.MimeType, "/"); ok {
		return sub
	}
	if a.UTI != "" {
		return a.UTI[strings.LastIndexByte(a.UTI, '.')+1:]
	}
	return ""
}

// Name returns the best file name for the exported copy.
func (a Attachment) Name() string {
	if a.TransferName != "" {
		return filepath.Base(a.TransferName)
	}
	return filepath.Base(a.Path)
}

// =============================================================================
// QUERY
// =============================================================================

// Query restricts StreamMessages to a date window.
type Query struct {
	Start time.Time // inclusive, zero = unbounded
	End   time.Time // exclusive, zero = unbounded
}

// IsZero reports whether the query matches every message.
func (q Query) IsZero() bool {
	return q.Start.IsZero() && q.End.IsZero()
}

// Contains reports whether t falls inside the window.
func (q Query) Contains(t time.Time) bool {
	if !q.Start.IsZero() && t.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && !t.Before(q.End) {
		return false
	}
	return true
}

// =============================================================================
// DATES
// =============================================================================

// appleEpoch is the reference date of message-store timestamps.
var appleEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// nanosecondThreshold separates second-based timestamps (older databases)
// from nanosecond-based ones.
const nanosecondThreshold = 100_000_000_000

// AppleTime converts a message-store timestamp to a time.Time.
// Both seconds and nanoseconds since 2001-01-01 are accepted; zero yields
// the zero time.
func AppleTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	if ts >= nanosecondThreshold || ts <= -nanosecondThreshold {
		return appleEpoch.Add(time.Duration(ts))
	}
	return appleEpoch.Add(time.Duration(ts) * time.Second)
}
