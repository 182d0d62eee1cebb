// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity collapses duplicate chats and handles onto canonical IDs.
//
// A message store often holds the same conversation several times, e.g. once
// per service. Chats with an identical participant set and handles with the
// same normalized address are grouped, and every member of a group maps to
// one canonical ID chosen by a TieBreak (Smallest by default).
//
// # Usage
//
//	cache := identity.Build(participants, addresses)
//	canonical := cache.Chat(rawChatID)
//	dups := cache.DuplicateConversations()
package identity
