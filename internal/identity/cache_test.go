// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuild_SameParticipantSetSharesCanonicalID(t *testing.T) {
	participants := map[int64][]int64{
		4: {7, 9},
		2: {9, 7},
		5: {7},
	}

	cache := Build(participants, nil)

	require.Equal(t, int64(2), cache.Chat(4))
	require.Equal(t, int64(2), cache.Chat(2))
	require.Equal(t, int64(5), cache.Chat(5))
	require.Equal(t, 1, cache.DuplicateConversations())
}

func TestBuild_DuplicateCountIncreasesByOnePerPair(t *testing.T) {
	base := map[int64][]int64{1: {1}, 2: {2}}
	before := Build(base, nil).DuplicateConversations()

	withPair := map[int64][]int64{1: {1}, 2: {2}, 10: {7, 9}, 11: {9, 7}}
	after := Build(withPair, nil).DuplicateConversations()

	require.Equal(t, before+1, after)
}

func TestBuild_EmptyParticipantsMapToSelf(t *testing.T) {
	cache := Build(map[int64][]int64{3: nil, 8: {}}, nil)

	require.Equal(t, int64(3), cache.Chat(3))
	require.Equal(t, int64(8), cache.Chat(8))
	require.Zero(t, cache.DuplicateConversations())
}

func TestBuild_RepeatedParticipantsIgnored(t *testing.T) {
	cache := Build(map[int64][]int64{1: {5, 5, 6}, 2: {6, 5}}, nil)
	require.Equal(t, cache.Chat(1), cache.Chat(2))
}

func TestBuild_UnknownIDsMapToThemselves(t *testing.T) {
	cache := Build(nil, nil)
	require.Equal(t, int64(42), cache.Chat(42))
	require.Equal(t, int64(42), cache.Handle(42))
}

func TestBuild_HandlesGroupedByNormalizedAddress(t *testing.T) {
	addresses := map[int64]string{
		12: "+1 (555) 555-0100",
		3:  "+15555550100",
		8:  "Mom@Example.com",
		9:  "mom@example.com",
		20: "",
		21: "",
	}

	cache := Build(nil, addresses)

	require.Equal(t, int64(3), cache.Handle(12))
	require.Equal(t, int64(3), cache.Handle(3))
	require.Equal(t, int64(8), cache.Handle(9))
	require.Equal(t, int64(20), cache.Handle(20))
	require.Equal(t, int64(21), cache.Handle(21))
	require.Equal(t, 2, cache.DuplicateHandles())
}

func TestBuild_Idempotent(t *testing.T) {
	participants := map[int64][]int64{1: {7, 9}, 2: {9, 7}, 3: {1}, 4: nil}
	addresses := map[int64]string{7: "a@b.c", 9: "A@B.C", 1: "+1"}

	first := Build(participants, addresses)
	second := Build(participants, addresses)

	for id := range participants {
		require.Equal(t, first.Chat(id), second.Chat(id))
	}
	for id := range addresses {
		require.Equal(t, first.Handle(id), second.Handle(id))
	}
	require.Equal(t, first.Stats(), second.Stats())
}

func TestBuild_TieBreakIsConfigurable(t *testing.T) {
	participants := map[int64][]int64{1: {7, 9}, 5: {9, 7}, 3: {7, 9}}

	require.Equal(t, int64(1), Build(participants, nil).Chat(3))
	require.Equal(t, int64(5), Build(participants, nil, WithTieBreak(Largest)).Chat(3))
	require.Equal(t, int64(5), Build(participants, nil, WithTieBreak(Largest)).Chat(1))

	addresses := map[int64]string{1: "x@y.z", 2: "X@Y.Z"}
	require.Equal(t, int64(2), Build(nil, addresses, WithTieBreak(Largest)).Handle(1))
}

func TestCache_ChatGroup(t *testing.T) {
	cache := Build(map[int64][]int64{4: {7, 9}, 2: {9, 7}, 5: {7}}, nil)

	require.Equal(t, []int64{2, 4}, cache.ChatGroup(4))
	require.Equal(t, []int64{2, 4}, cache.ChatGroup(2))
	require.Equal(t, []int64{5}, cache.ChatGroup(5))
	require.Equal(t, []int64{99}, cache.ChatGroup(99))

	// Callers get their own copy of the index entry
	group := cache.ChatGroup(2)
	group[0] = 42
	require.Equal(t, []int64{2, 4}, cache.ChatGroup(2))
}

func TestCache_ChatGroupLargestTieBreak(t *testing.T) {
	cache := Build(map[int64][]int64{4: {7, 9}, 2: {9, 7}, 8: {9, 7, 7}}, nil, WithTieBreak(Largest))

	require.Equal(t, int64(8), cache.Chat(2))
	require.Equal(t, []int64{2, 4, 8}, cache.ChatGroup(2))
	require.Equal(t, 1, cache.Stats().CanonicalConversations)
}

func BenchmarkCache_ChatGroup(b *testing.B) {
	participants := make(map[int64][]int64, 10000)
	for id := int64(0); id < 10000; id++ {
		participants[id] = []int64{id % 500}
	}
	cache := Build(participants, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cache.ChatGroup(int64(i % 10000))
	}
}

func TestStats(t *testing.T) {
	cache := Build(map[int64][]int64{1: {7, 9}, 2: {9, 7}, 3: nil}, map[int64]string{7: "a", 9: "b"})

	stats := cache.Stats()
	require.Equal(t, 3, stats.RawConversations)
	require.Equal(t, 2, stats.CanonicalConversations)
	require.Equal(t, 2, stats.RawHandles)
	require.Equal(t, 2, stats.CanonicalHandles)
	require.Zero(t, stats.DuplicateHandles())
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 555-0100", "+15555550100"},
		{"555.555.0100", "5555550100"},
		{"  Someone@iCloud.COM ", "someone@icloud.com"},
		{"ＭＯＭ@example.com", "mom@example.com"},
		{"Short Code", "short code"},
		{"+", "+"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, NormalizeAddress(tt.in), "input %q", tt.in)
	}
}
