// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes message-store records into one file per
// conversation.
//
// Duplicate chats (same participants) and duplicate handles (same
// normalized address) are collapsed through an identity cache, so every
// message of one real conversation lands in the same file. Messages with
// no chat go to a shared orphaned file.
//
// # Key Types
//
//   - Driver: streams messages, converts attachments, routes records
//   - Mux: lazily opened append-mode file per canonical conversation
//   - Formatter: record encoding (JSON Lines, text, Markdown)
//   - Directory: chat and handle tables plus the identity cache
//   - Summary: counts reported at the end of a run
//
// # Usage
//
//	store, err := storage.Open("chat.db", storage.Options{})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	driver := export.NewDriver(store, pool, export.Options{
//		Dir:       "./out",
//		Formatter: export.JSONFormatter{},
//	}, log)
//	summary, err := driver.Run(ctx)
package export
