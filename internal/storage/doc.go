// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides read-only access to a message-store database.
//
// The database schema is owned elsewhere; this package only reads the
// tables an export needs and never writes to the file.
//
// # Key Types
//
//   - Store: read-only handle over the SQLite file
//   - Chat, Handle: cacheable lookup tables
//   - Message, Attachment: streamed rows
//   - Query: optional date window
//   - TableError: decode/query failure for one table (see ErrDecode)
//
// # Usage
//
//	store, err := storage.Open(dbPath, storage.Options{})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	chats, err := store.Chats(ctx)
//	err = store.StreamMessages(ctx, storage.Query{}, func(m storage.Message) error {
//	    return nil
//	})
package storage
