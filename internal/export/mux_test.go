// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatvault/internal/export"
)

func idNamer(id int64) string {
	return fmt.Sprintf("chat-%d", id)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNewMux_CreatesOrphanEagerly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	mux, err := export.NewMux(dir, ".txt", idNamer)
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(dir, "orphaned.txt"))
	require.Equal(t, 1, mux.OpenFiles())
	require.NoError(t, mux.Close())
}

func TestNewMux_FailsWhenDirUnusable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := export.NewMux(filepath.Join(blocker, "out"), ".txt", idNamer)
	var createErr *export.CreateError
	require.ErrorAs(t, err, &createErr)
}

func TestMux_RoutesPerConversation(t *testing.T) {
	dir := t.TempDir()
	mux, err := export.NewMux(dir, ".txt", idNamer)
	require.NoError(t, err)

	routes := []struct {
		ref  export.ChatRef
		line string
	}{
		{export.Chat(1), "a1\n"},
		{export.Chat(2), "b1\n"},
		{export.Orphan, "o1\n"},
		{export.Chat(1), "a2\n"},
		{export.Chat(3), "c1\n"},
		{export.Chat(2), "b2\n"},
		{export.Orphan, "o2\n"},
		{export.Chat(1), "a3\n"},
	}
	for _, r := range routes {
		require.NoError(t, mux.Route(r.ref, []byte(r.line)))
	}

	// K canonical conversations plus the orphaned file
	require.Equal(t, 4, mux.OpenFiles())
	require.Equal(t, 3, mux.Conversations())
	require.Equal(t, 2, mux.Orphans())
	require.EqualValues(t, 3*len(routes), mux.BytesWritten())
	require.NoError(t, mux.Close())

	require.Equal(t, "a1\na2\na3\n", readFile(t, filepath.Join(dir, "chat-1.txt")))
	require.Equal(t, "b1\nb2\n", readFile(t, filepath.Join(dir, "chat-2.txt")))
	require.Equal(t, "c1\n", readFile(t, filepath.Join(dir, "chat-3.txt")))
	require.Equal(t, "o1\no2\n", readFile(t, filepath.Join(dir, "orphaned.txt")))

	require.Equal(t, []string{
		filepath.Join(dir, "chat-1.txt"),
		filepath.Join(dir, "chat-2.txt"),
		filepath.Join(dir, "chat-3.txt"),
		filepath.Join(dir, "orphaned.txt"),
	}, mux.Paths())
}

func TestMux_AppendsToExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat-1.txt"), []byte("old\n"), 0o644))

	mux, err := export.NewMux(dir, ".txt", idNamer)
	require.NoError(t, err)
	require.NoError(t, mux.Route(export.Chat(1), []byte("new\n")))
	require.NoError(t, mux.Close())

	require.Equal(t, "old\nnew\n", readFile(t, filepath.Join(dir, "chat-1.txt")))
}

func TestMux_CreationFailureIsReturned(t *testing.T) {
	dir := t.TempDir()
	mux, err := export.NewMux(dir, ".txt", func(id int64) string {
		return filepath.Join("missing", "dir", idNamer(id))
	})
	require.NoError(t, err)
	defer mux.Close()

	err = mux.Route(export.Chat(9), []byte("x\n"))
	var createErr *export.CreateError
	require.ErrorAs(t, err, &createErr)
	require.Equal(t, 1, mux.OpenFiles())

	// The orphaned file still works
	require.NoError(t, mux.Route(export.Orphan, []byte("o\n")))
}

func TestMux_RouteAfterClose(t *testing.T) {
	mux, err := export.NewMux(t.TempDir(), ".txt", idNamer)
	require.NoError(t, err)
	require.NoError(t, mux.Close())
	require.NoError(t, mux.Close())
	require.Error(t, mux.Route(export.Chat(1), []byte("x\n")))
}

func TestChatRef(t *testing.T) {
	id, ok := export.Chat(5).ID()
	require.True(t, ok)
	require.EqualValues(t, 5, id)

	_, ok = export.Orphan.ID()
	require.False(t, ok)
}
