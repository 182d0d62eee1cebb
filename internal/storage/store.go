// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrDatabaseNotFound is returned by Open when the database file is missing.
	ErrDatabaseNotFound = errors.New("message database not found")
	// ErrDecode marks a row that could not be decoded.
	// Use errors.Is(err, ErrDecode) to detect it through a TableError.
	ErrDecode = errors.New("row decode failed")
)

// TableError reports a failed read of one table.
type TableError struct {
	Table string
	Err   error
}

// Error implements the error interface.
func (e *TableError) Error() string {
	return fmt.Sprintf("%s: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *TableError) Unwrap() error {
	return e.Err
}

func decodeError(table string, err error) error {
	return &TableError{Table: table, Err: fmt.Errorf("%w: %v", ErrDecode, err)}
}

func queryError(table string, err error) error {
	return &TableError{Table: table, Err: err}
}

// =============================================================================
// STORE
// =============================================================================

// Options configures how a Store resolves data.
type Options struct {
	// AttachmentRoot replaces a leading "~" in attachment file names.
	// Default: the current user's home directory
	AttachmentRoot string
}

// Store is a read-only view over a message-store database.
type Store struct {
	db             *sql.DB
	path           string
	attachmentRoot string
}

// Open opens the database at path read-only.
func Open(path string, opts Options) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	if info, err := os.Stat(absPath); err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, absPath)
	}

	// mode=ro is handled by SQLite itself, query_only by the driver
	dsn := (&url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(absPath),
		RawQuery: "mode=ro&_pragma=query_only(1)&_pragma=busy_timeout(5000)",
	}).String()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection streams messages while a second serves attachment lookups
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	root := opts.AttachmentRoot
	if root == "" {
		root, _ = os.UserHomeDir()
	}

	return &Store{db: db, path: absPath, attachmentRoot: root}, nil
}

// Path returns the absolute path of the database file.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// CACHEABLE TABLES
// =============================================================================

// Chats returns every chat keyed by ROWID.
func (s *Store) Chats(ctx context.Context) (map[int64]Chat, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ROWID, chat_identifier, service_name, display_name FROM chat`)
	if err != nil {
		return nil, queryError("chat", err)
	}
	defer rows.Close()

	chats := make(map[int64]Chat)
	for rows.Next() {
		var (
			c           Chat
			identifier  sql.NullString
			service     sql.NullString
			displayName sql.NullString
		)
		if err := rows.Scan(&c.ID, &identifier, &service, &displayName); err != nil {
			return nil, decodeError("chat", err)
		}
		c.Identifier = identifier.String
		c.Service = service.String
		c.DisplayName = displayName.String
		chats[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("chat", err)
	}
	return chats, nil
}

// Handles returns every handle keyed by ROWID.
func (s *Store) Handles(ctx context.Context) (map[int64]Handle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ROWID, id FROM handle`)
	if err != nil {
		return nil, queryError("handle", err)
	}
	defer rows.Close()

	handles := make(map[int64]Handle)
	for rows.Next() {
		var (
			h       Handle
			address sql.NullString
		)
		if err := rows.Scan(&h.ID, &address); err != nil {
			return nil, decodeError("handle", err)
		}
		h.Address = address.String
		handles[h.ID] = h
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("handle", err)
	}
	return handles, nil
}

// ChatParticipants returns the handle IDs joined to each chat.
// Chats without participants are absent from the result.
func (s *Store) ChatParticipants(ctx context.Context) (map[int64][]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, handle_id FROM chat_handle_join ORDER BY chat_id, handle_id`)
	if err != nil {
		return nil, queryError("chat_handle_join", err)
	}
	defer rows.Close()

	participants := make(map[int64][]int64)
	for rows.Next() {
		var chatID, handleID int64
		if err := rows.Scan(&chatID, &handleID); err != nil {
			return nil, decodeError("chat_handle_join", err)
		}
		participants[chatID] = append(participants[chatID], handleID)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("chat_handle_join", err)
	}
	return participants, nil
}

// =============================================================================
// MESSAGES
// =============================================================================

const messageQuery = `
SELECT
	m.ROWID,
	m.guid,
	m.text,
	m.service,
	m.handle_id,
	m.date,
	m.date_read,
	m.date_delivered,
	m.is_from_me,
	m.is_read,
	m.cache_has_attachments,
	(SELECT c.chat_id FROM chat_message_join c WHERE c.message_id = m.ROWID ORDER BY c.chat_id LIMIT 1)
FROM message m
ORDER BY m.date, m.ROWID`

// CountMessages returns how many messages match q.
func (s *Store) CountMessages(ctx context.Context, q Query) (int, error) {
	if q.IsZero() {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message`).Scan(&n); err != nil {
			return 0, queryError("message", err)
		}
		return n, nil
	}

	n := 0
	err := s.StreamMessages(ctx, q, func(Message) error {
		n++
		return nil
	})
	return n, err
}

// StreamMessages calls fn for every message matching q in date order.
// Iteration stops at the first error returned by fn or by decoding.
func (s *Store) StreamMessages(ctx context.Context, q Query, fn func(Message) error) error {
	rows, err := s.db.QueryContext(ctx, messageQuery)
	if err != nil {
		return queryError("message", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return err
		}
		if !q.Contains(msg.Date) {
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return queryError("message", err)
	}
	return nil
}

func scanMessage(rows *sql.Rows) (Message, error) {
	var (
		m              Message
		guid           sql.NullString
		text           sql.NullString
		service        sql.NullString
		handleID       sql.NullInt64
		date           sql.NullInt64
		dateRead       sql.NullInt64
		dateDelivered  sql.NullInt64
		isFromMe       sql.NullBool
		isRead         sql.NullBool
		hasAttachments sql.NullBool
		chatID         sql.NullInt64
	)
	if err := rows.Scan(&m.ID, &guid, &text, &service, &handleID, &date, &dateRead,
		&dateDelivered, &isFromMe, &isRead, &hasAttachments, &chatID); err != nil {
		return Message{}, decodeError("message", err)
	}

	m.GUID = guid.String
	m.Text = text.String
	m.Service = service.String
	m.HandleID = handleID.Int64
	m.Date = AppleTime(date.Int64)
	m.DateRead = AppleTime(dateRead.Int64)
	m.DateDelivered = AppleTime(dateDelivered.Int64)
	m.IsFromMe = isFromMe.Bool
	m.IsRead = isRead.Bool
	m.HasAttachments = hasAttachments.Bool
	if chatID.Valid {
		id := chatID.Int64
		m.ChatID = &id
	}
	return m, nil
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// Attachments returns the attachments of one message in ROWID order.
func (s *Store) Attachments(ctx context.Context, messageID int64) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT a.ROWID, a.filename, a.mime_type, a.uti, a.transfer_name, a.total_bytes, a.is_sticker
FROM message_attachment_join j
JOIN attachment a ON a.ROWID = j.attachment_id
WHERE j.message_id = ?
ORDER BY a.ROWID`, messageID)
	if err != nil {
		return nil, queryError("attachment", err)
	}
	defer rows.Close()

	var attachments []Attachment
	for rows.Next() {
		var (
			a            Attachment
			filename     sql.NullString
			mimeType     sql.NullString
			uti          sql.NullString
			transferName sql.NullString
			totalBytes   sql.NullInt64
			isSticker    sql.NullBool
		)
		if err := rows.Scan(&a.ID, &filename, &mimeType, &uti, &transferName, &totalBytes, &isSticker); err != nil {
			return nil, decodeError("attachment", err)
		}
		a.Filename = filename.String
		a.MimeType = mimeType.String
		a.UTI = uti.String
		a.TransferName = transferName.String
		a.TotalBytes = totalBytes.Int64
		a.IsSticker = isSticker.Bool
		a.Path = s.resolvePath(a.Filename)
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("attachment", err)
	}
	return attachments, nil
}

// resolvePath expands a leading "~" against the attachment root.
func (s *Store) resolvePath(name string) string {
	if name == "" {
		return ""
	}
	if name == "~" {
		return s.attachmentRoot
	}
	if strings.HasPrefix(name, "~/") {
		return filepath.Join(s.attachmentRoot, filepath.FromSlash(name[2:]))
	}
	return filepath.FromSlash(name)
}
