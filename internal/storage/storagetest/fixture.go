// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storagetest builds small on-disk message-store databases for tests.
package storagetest

import (
	"database/sql"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// Schema is the subset of the message-store schema chatvault reads.
const Schema = `
CREATE TABLE chat (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT,
	chat_identifier TEXT,
	service_name TEXT,
	display_name TEXT
);
CREATE TABLE handle (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	service TEXT
);
CREATE TABLE chat_handle_join (
	chat_id INTEGER,
	handle_id INTEGER,
	UNIQUE (chat_id, handle_id)
);
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT UNIQUE NOT NULL,
	text TEXT,
	service TEXT,
	handle_id INTEGER DEFAULT 0,
	date INTEGER,
	date_read INTEGER DEFAULT 0,
	date_delivered INTEGER DEFAULT 0,
	is_from_me INTEGER DEFAULT 0,
	is_read INTEGER DEFAULT 0,
	cache_has_attachments INTEGER DEFAULT 0
);
CREATE TABLE chat_message_join (
	chat_id INTEGER,
	message_id INTEGER,
	PRIMARY KEY (chat_id, message_id)
);
CREATE TABLE attachment (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT,
	filename TEXT,
	uti TEXT,
	mime_type TEXT,
	transfer_name TEXT,
	total_bytes INTEGER DEFAULT 0,
	is_sticker INTEGER DEFAULT 0
);
CREATE TABLE message_attachment_join (
	message_id INTEGER,
	attachment_id INTEGER,
	UNIQUE (message_id, attachment_id)
);`

var appleEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// Fixture is a writable database populated by a test.
type Fixture struct {
	t      testing.TB
	DB     *sql.DB
	Path   string
	closed bool
}

// MessageRow describes one message to insert.
type MessageRow struct {
	ID       int64
	ChatID   int64 // 0 leaves the message without a chat
	HandleID int64
	Text     string
	Service  string
	Date     time.Time
	FromMe   bool
	Read     bool
}

// AttachmentRow describes one attachment to insert.
type AttachmentRow struct {
	Filename     string
	MimeType     string
	UTI          string
	TransferName string
	TotalBytes   int64
	IsSticker    bool
}

// New creates an empty database with Schema under t.TempDir().
func New(t testing.TB) *Fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture database: %v", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		t.Fatalf("create fixture schema: %v", err)
	}

	f := &Fixture{t: t, DB: db, Path: path}
	t.Cleanup(func() { f.Close() })
	return f
}

// Close closes the writable handle. Safe to call more than once.
func (f *Fixture) Close() {
	if f.closed {
		return
	}
	f.closed = true
	f.DB.Close()
}

func (f *Fixture) exec(query string, args ...any) sql.Result {
	f.t.Helper()
	res, err := f.DB.Exec(query, args...)
	if err != nil {
		f.t.Fatalf("fixture exec %q: %v", query, err)
	}
	return res
}

// AddChat inserts a chat row.
func (f *Fixture) AddChat(id int64, identifier, displayName string) {
	f.t.Helper()
	f.exec(`INSERT INTO chat (ROWID, guid, chat_identifier, service_name, display_name) VALUES (?, ?, ?, 'iMessage', ?)`,
		id, "chat-guid-"+identifier, identifier, displayName)
}

// AddHandle inserts a handle row.
func (f *Fixture) AddHandle(id int64, address string) {
	f.t.Helper()
	f.exec(`INSERT INTO handle (ROWID, id, service) VALUES (?, ?, 'iMessage')`, id, address)
}

// Join adds handles to a chat.
func (f *Fixture) Join(chatID int64, handleIDs ...int64) {
	f.t.Helper()
	for _, h := range handleIDs {
		f.exec(`INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (?, ?)`, chatID, h)
	}
}

// AddMessage inserts a message and, when ChatID is set, its chat join row.
func (f *Fixture) AddMessage(m MessageRow) {
	f.t.Helper()
	date := int64(0)
	if !m.Date.IsZero() {
		date = m.Date.Sub(appleEpoch).Nanoseconds()
	}
	f.exec(`INSERT INTO message (ROWID, guid, text, service, handle_id, date, is_from_me, is_read) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, guidFor(m.ID), m.Text, m.Service, m.HandleID, date, m.FromMe, m.Read)
	if m.ChatID != 0 {
		f.exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (?, ?)`, m.ChatID, m.ID)
	}
}

// AddAttachment inserts an attachment joined to messageID and returns its ROWID.
func (f *Fixture) AddAttachment(messageID int64, a AttachmentRow) int64 {
	f.t.Helper()
	res := f.exec(`INSERT INTO attachment (filename, uti, mime_type, transfer_name, total_bytes, is_sticker) VALUES (?, ?, ?, ?, ?, ?)`,
		nullable(a.Filename), nullable(a.UTI), nullable(a.MimeType), nullable(a.TransferName), a.TotalBytes, a.IsSticker)
	id, err := res.LastInsertId()
	if err != nil {
		f.t.Fatalf("attachment id: %v", err)
	}
	f.exec(`INSERT INTO message_attachment_join (message_id, attachment_id) VALUES (?, ?)`, messageID, id)
	f.exec(`UPDATE message SET cache_has_attachments = 1 WHERE ROWID = ?`, messageID)
	return id
}

func guidFor(id int64) string {
	return "msg-" + strconv.FormatInt(id, 10)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
