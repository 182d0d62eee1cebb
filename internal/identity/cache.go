// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// =============================================================================
// TIE-BREAK POLICIES
// =============================================================================

// TieBreak picks the canonical ID of a group of duplicate raw IDs.
// The group is never empty and is sorted ascending.
type TieBreak func(group []int64) int64

// Smallest chooses the smallest raw ID in the group. This is the default.
func Smallest(group []int64) int64 {
	return group[0]
}

// Largest chooses the largest raw ID in the group.
func Largest(group []int64) int64 {
	return group[len(group)-1]
}

// Option configures Build.
type Option func(*options)

type options struct {
	tieBreak TieBreak
}

// WithTieBreak sets the policy for both chats and handles.
func WithTieBreak(tb TieBreak) Option {
	return func(o *options) { o.tieBreak = tb }
}

// =============================================================================
// CACHE
// =============================================================================

// Cache maps raw chat and handle IDs to their canonical IDs.
// It is immutable once built and safe for concurrent reads.
type Cache struct {
	chats   map[int64]int64
	handles map[int64]int64

	// chatGroups lists the sorted raw members of each canonical chat.
	chatGroups       map[int64][]int64
	canonicalHandles int
}

// Build computes the canonical-ID maps in a single grouping pass.
//
// chatParticipants must contain every chat, including chats with no
// participants (nil or empty slice); those map to themselves. Chats are
// grouped by their participant set, regardless of order or repeats.
// handleAddresses maps each handle to its address; handles are grouped by
// NormalizeAddress, and handles with an empty address map to themselves.
func Build(chatParticipants map[int64][]int64, handleAddresses map[int64]string, opts ...Option) *Cache {
	o := options{tieBreak: Smallest}
	for _, opt := range opts {
		opt(&o)
	}

	chats, chatGroups := canonicalize(chatParticipants, func(id int64, members []int64) string {
		if len(members) == 0 {
			return ""
		}
		return participantKey(members)
	}, o.tieBreak)

	handles, handleGroups := canonicalize(handleAddresses, func(id int64, address string) string {
		return NormalizeAddress(address)
	}, o.tieBreak)

	return &Cache{
		chats:            chats,
		handles:          handles,
		chatGroups:       chatGroups,
		canonicalHandles: len(handleGroups),
	}
}

// canonicalize groups raw IDs by key and maps every member to the ID chosen
// by tb. An empty key keeps the ID as its own group. It returns the mapping
// and the sorted members of each canonical ID.
func canonicalize[V any](table map[int64]V, key func(int64, V) string, tb TieBreak) (map[int64]int64, map[int64][]int64) {
	ids := lo.Keys(table)
	slices.Sort(ids)

	groups := lo.GroupBy(ids, func(id int64) string {
		if k := key(id, table[id]); k != "" {
			return k
		}
		return "\x00self:" + strconv.FormatInt(id, 10)
	})

	mapping := make(map[int64]int64, len(ids))
	members := make(map[int64][]int64, len(groups))
	for _, group := range groups {
		// GroupBy keeps input order, so each group is already sorted
		canonical := tb(group)
		for _, id := range group {
			mapping[id] = canonical
		}
		members[canonical] = group
	}
	return mapping, members
}

// participantKey builds an order-independent key from a participant set.
func participantKey(members []int64) string {
	set := lo.Uniq(members)
	slices.Sort(set)
	return strings.Join(lo.Map(set, func(id int64, _ int) string {
		return strconv.FormatInt(id, 10)
	}), ",")
}

// =============================================================================
// LOOKUPS
// =============================================================================

// Chat returns the canonical chat ID for raw. Unknown IDs map to themselves.
func (c *Cache) Chat(raw int64) int64 {
	if canonical, ok := c.chats[raw]; ok {
		return canonical
	}
	return raw
}

// Handle returns the canonical handle ID for raw. Unknown IDs map to themselves.
func (c *Cache) Handle(raw int64) int64 {
	if canonical, ok := c.handles[raw]; ok {
		return canonical
	}
	return raw
}

// ChatGroup returns every raw chat ID that shares raw's canonical ID, sorted.
func (c *Cache) ChatGroup(raw int64) []int64 {
	if group, ok := c.chatGroups[c.Chat(raw)]; ok {
		return slices.Clone(group)
	}
	return []int64{raw}
}

// =============================================================================
// DIAGNOSTICS
// =============================================================================

// Stats summarizes the deduplication.
type Stats struct {
	RawConversations       int
	CanonicalConversations int
	RawHandles             int
	CanonicalHandles       int
}

// DuplicateConversations is the number of raw chats folded into another chat.
func (s Stats) DuplicateConversations() int {
	return s.RawConversations - s.CanonicalConversations
}

// DuplicateHandles is the number of raw handles folded into another handle.
func (s Stats) DuplicateHandles() int {
	return s.RawHandles - s.CanonicalHandles
}

// Stats returns the deduplication counts.
func (c *Cache) Stats() Stats {
	return Stats{
		RawConversations:       len(c.chats),
		CanonicalConversations: len(c.chatGroups),
		RawHandles:             len(c.handles),
		CanonicalHandles:       c.canonicalHandles,
	}
}

// DuplicateConversations is shorthand for Stats().DuplicateConversations().
func (c *Cache) DuplicateConversations() int {
	return c.Stats().DuplicateConversations()
}

// DuplicateHandles is shorthand for Stats().DuplicateHandles().
func (c *Cache) DuplicateHandles() int {
	return c.Stats().DuplicateHandles()
}
