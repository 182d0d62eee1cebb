// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export_test

import (
	"bufio"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/jeranaias/chatvault/internal/convert"
	"github.com/jeranaias/chatvault/internal/export"
	"github.com/jeranaias/chatvault/internal/mocks"
	"github.com/jeranaias/chatvault/internal/storage"
	"github.com/jeranaias/chatvault/internal/storage/storagetest"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

// seed builds a store with duplicate chats, duplicate handles, an orphan
// and two attachments (one present sticker, one missing file).
func seed(t *testing.T) (dbPath, stickerPath string) {
	t.Helper()
	f := storagetest.New(t)

	f.AddHandle(1, "+15551234567")
	f.AddHandle(2, "+1 (555) 123-4567")
	f.AddHandle(3, "Bob@Example.com")
	f.AddHandle(4, "bob@example.com")

	f.AddChat(10, "+15551234567", "")
	f.AddChat(11, "+15551234567", "")
	f.AddChat(20, "chat-book", "Book Club")
	f.AddChat(21, "chat-book-2", "")
	f.AddChat(30, "chat999", "")

	f.Join(10, 1)
	f.Join(11, 1)
	f.Join(20, 1, 3)
	f.Join(21, 3, 1)

	f.AddMessage(storagetest.MessageRow{ID: 1, ChatID: 10, HandleID: 1, Text: "hi", Service: "iMessage", Date: at(0)})
	f.AddMessage(storagetest.MessageRow{ID: 2, ChatID: 11, Text: "hello back", Service: "iMessage", Date: at(1), FromMe: true, Read: true})
	f.AddMessage(storagetest.MessageRow{ID: 3, ChatID: 20, HandleID: 3, Text: "page 12", Service: "iMessage", Date: at(2)})
	f.AddMessage(storagetest.MessageRow{ID: 4, ChatID: 21, HandleID: 4, Text: "page 13", Service: "iMessage", Date: at(3)})
	f.AddMessage(storagetest.MessageRow{ID: 5, Text: "lost", Service: "SMS", Date: at(4)})
	f.AddMessage(storagetest.MessageRow{ID: 6, ChatID: 30, Text: "sticker", Service: "iMessage", Date: at(5), FromMe: true})
	f.AddMessage(storagetest.MessageRow{ID: 7, ChatID: 30, Text: "gone", Service: "iMessage", Date: at(6), FromMe: true})

	stickerPath = filepath.Join(t.TempDir(), "sticker.heic")
	require.NoError(t, os.WriteFile(stickerPath, []byte("heic bytes"), 0o644))
	f.AddAttachment(6, storagetest.AttachmentRow{Filename: stickerPath, MimeType: "image/heic", IsSticker: true})
	f.AddAttachment(7, storagetest.AttachmentRow{Filename: filepath.Join(t.TempDir(), "missing.jpg"), MimeType: "image/jpeg"})

	return f.Path, stickerPath
}

func openStore(t *testing.T, path string) *storage.Store {
	t.Helper()
	store, err := storage.Open(path, storage.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func magickRunner(t *testing.T) *mocks.MockRunner {
	ctrl := gomock.NewController(t)
	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), "magick", gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, args ...string) error {
			out, err := os.Create(args[len(args)-1])
			if err != nil {
				return err
			}
			defer out.Close()
			return png.Encode(out, image.NewNRGBA(image.Rect(0, 0, 1, 1)))
		}).
		AnyTimes()
	return runner
}

func readJSONLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}

func messages(recs []map[string]any) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r["message"].(string))
	}
	return out
}

func TestDriver_EndToEnd(t *testing.T) {
	dbPath, _ := seed(t)
	store := openStore(t, dbPath)
	outDir := filepath.Join(t.TempDir(), "export")
	scratch := filepath.Join(t.TempDir(), "scratch")

	// A stale workspace from an earlier crash and a live one owned by a
	// concurrent run
	stale := filepath.Join(scratch, "sticker-stale")
	require.NoError(t, os.MkdirAll(stale, 0o755))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "sticker-live"), 0o755))

	conv := convert.New(convert.ImageMagick{}, nil, magickRunner(t), scratch, zerolog.Nop())
	driver := export.NewDriver(store, convert.NewPool(conv, 2), export.Options{
		Dir:         outDir,
		Formatter:   export.JSONFormatter{},
		BatchSize:   2,
		ScratchRoot: scratch,
	}, zerolog.Nop())

	summary, err := driver.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 7, summary.Messages)
	require.Equal(t, 1, summary.Orphans)
	require.Equal(t, 3, summary.Conversations)
	require.Equal(t, 4, summary.Files)
	require.Equal(t, 2, summary.DuplicateConversations)
	require.Equal(t, 2, summary.DuplicateHandles)
	require.Equal(t, 1, summary.Converted)
	require.Equal(t, 1, summary.Missing)
	require.Positive(t, summary.RecordBytes)
	require.NotEmpty(t, summary.String())
	require.NoDirExists(t, stale)
	require.DirExists(t, filepath.Join(scratch, "sticker-live"))

	// Chats 10 and 11 share participants; handles 1 and 2 share an address
	direct := readJSONLines(t, filepath.Join(outDir, "+15551234567-10.json"))
	require.Equal(t, []string{"hi", "hello back"}, messages(direct))
	require.Equal(t, "+15551234567", direct[0]["sender"])
	require.Equal(t, "Me", direct[0]["receiver"])
	require.Equal(t, "Me", direct[1]["sender"])
	require.EqualValues(t, 10, direct[1]["conversation_id"])

	// Chats 20 and 21 list the same participants in another order
	group := readJSONLines(t, filepath.Join(outDir, "Book_Club-20.json"))
	require.Equal(t, []string{"page 12", "page 13"}, messages(group))
	require.Equal(t, "Bob@Example.com", group[1]["sender"])

	orphans := readJSONLines(t, filepath.Join(outDir, "orphaned.json"))
	require.Equal(t, []string{"lost"}, messages(orphans))
	require.Nil(t, orphans[0]["conversation_id"])

	stickers := readJSONLines(t, filepath.Join(outDir, "chat999-30.json"))
	require.Equal(t, []string{"sticker", "gone"}, messages(stickers))

	att := stickers[0]["attachments"].([]any)[0].(map[string]any)
	require.Equal(t, true, att["converted"])
	require.Equal(t, "image/png", att["media_type"])
	converted := filepath.Join(outDir, att["path"].(string))
	mt, err := mimetype.DetectFile(converted)
	require.NoError(t, err)
	require.True(t, mt.Is("image/png"))

	missing := stickers[1]["attachments"].([]any)[0].(map[string]any)
	require.Equal(t, true, missing["missing"])

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 5, "four record files plus the attachments directory")
}

func TestDriver_DateWindow(t *testing.T) {
	dbPath, _ := seed(t)
	store := openStore(t, dbPath)
	outDir := t.TempDir()

	driver := export.NewDriver(store, nil, export.Options{
		Dir:       outDir,
		Formatter: export.TextFormatter{},
		Query:     storage.Query{Start: at(2), End: at(4)},
	}, zerolog.Nop())

	summary, err := driver.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Messages)
	require.Equal(t, 0, summary.Orphans)
	require.Equal(t, 2, summary.Files)

	data, err := os.ReadFile(filepath.Join(outDir, "Book_Club-20.txt"))
	require.NoError(t, err)
	require.Contains(t, string(data), "page 12")
	require.Contains(t, string(data), "page 13")
}

func TestDriver_WithoutPoolKeepsSourcePaths(t *testing.T) {
	dbPath, sticker := seed(t)
	store := openStore(t, dbPath)
	outDir := t.TempDir()

	summary, err := export.NewDriver(store, nil, export.Options{Dir: outDir}, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Converted)
	require.NoDirExists(t, filepath.Join(outDir, export.AttachmentsDir))

	recs := readJSONLines(t, filepath.Join(outDir, "chat999-30.json"))
	att := recs[0]["attachments"].([]any)[0].(map[string]any)
	require.Equal(t, sticker, att["path"])
	require.Equal(t, false, att["converted"])
}

func TestDriver_Cancelled(t *testing.T) {
	dbPath, _ := seed(t)
	store := openStore(t, dbPath)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := export.NewDriver(store, nil, export.Options{Dir: t.TempDir()}, zerolog.Nop()).Run(ctx)
	require.Error(t, err)
}
