// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// diagnose_cmd.go - The diagnose command: duplicate report and tool check.
package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/jeranaias/chatvault/internal/convert"
	"github.com/jeranaias/chatvault/internal/export"
	"github.com/jeranaias/chatvault/internal/identity"
	"github.com/jeranaias/chatvault/internal/storage"
)

// HandleDiagnose reports how the database would be grouped and whether the
// configured converters are installed. Nothing is written.
func HandleDiagnose(ctx context.Context, args Args, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	log := newLogger(cfg, stderr)

	store, err := storage.Open(cfg.DatabasePath, storage.Options{AttachmentRoot: cfg.AttachmentRoot})
	if err != nil {
		return NewCommandError("diagnose", "open database", cfg.DatabasePath, err)
	}
	defer store.Close()

	dir, err := export.LoadDirectory(ctx, store, identity.WithTieBreak(tieBreak(cfg.Identity.TieBreak)))
	if err != nil {
		return NewCommandError("diagnose", "load tables", store.Path(), err)
	}
	messages, err := store.CountMessages(ctx, storage.Query{})
	if err != nil {
		return NewCommandError("diagnose", "count messages", store.Path(), err)
	}

	conv, err := newConverter(cfg, log)
	if err != nil {
		return err
	}

	data := DiagnoseData{
		Database:               store.Path(),
		Chats:                  len(dir.Chats),
		Handles:                len(dir.Handles),
		Messages:               messages,
		Conversations:          dir.IDs.Stats().CanonicalConversations,
		DuplicateConversations: dir.IDs.DuplicateConversations(),
		DuplicateHandles:       dir.IDs.DuplicateHandles(),
		Groups:                 duplicateGroups(dir),
		Animated:               cfg.Converter.HasVideoTool(),
		Tools: lo.Map(conv.ProbeTools(), func(s convert.ToolStatus, _ int) DiagnoseTool {
			return DiagnoseTool{Name: s.Name, Path: s.Path, Available: s.Available}
		}),
	}
	data.Healthy = lo.EveryBy(data.Tools, func(t DiagnoseTool) bool { return t.Available })

	if args.JSON {
		return NewJSONResponse("diagnose", data).Print(stdout)
	}
	printDiagnose(stdout, data)
	return nil
}

// duplicateGroups lists every canonical chat that absorbed other chats,
// ordered by canonical ID.
func duplicateGroups(dir *export.Directory) []DuplicateGroup {
	var groups []DuplicateGroup
	for _, id := range slices.Sorted(maps.Keys(dir.Chats)) {
		if dir.IDs.Chat(id) != id {
			continue
		}
		members := dir.IDs.ChatGroup(id)
		if len(members) < 2 {
			continue
		}
		groups = append(groups, DuplicateGroup{
			Canonical: id,
			Title:     dir.Title(id),
			Members:   members,
		})
	}
	return groups
}

func printDiagnose(w io.Writer, d DiagnoseData) {
	fmt.Fprintf(w, "Database: %s\n", d.Database)
	fmt.Fprintf(w, "  Messages:       %d\n", d.Messages)
	fmt.Fprintf(w, "  Chats:          %d (%d conversations, %d duplicates)\n",
		d.Chats, d.Conversations, d.DuplicateConversations)
	fmt.Fprintf(w, "  Handles:        %d (%d duplicates)\n", d.Handles, d.DuplicateHandles)

	if len(d.Groups) > 0 {
		fmt.Fprintln(w, "\nMerged conversations:")
		for _, g := range d.Groups {
			ids := lo.Map(g.Members, func(id int64, _ int) string { return fmt.Sprint(id) })
			fmt.Fprintf(w, "  %-6d %s  <- %s\n", g.Canonical, g.Title, strings.Join(ids, ", "))
		}
	}

	if d.Animated {
		fmt.Fprintln(w, "\nAnimated stickers: converted to GIF")
	} else {
		fmt.Fprintln(w, "\nAnimated stickers: still-image tool only (video tool disabled)")
	}

	fmt.Fprintln(w, "\nConverter tools:")
	for _, t := range d.Tools {
		if t.Available {
			fmt.Fprintf(w, "  [OK]      %s (%s)\n", t.Name, t.Path)
		} else {
			fmt.Fprintf(w, "  [MISSING] %s\n", t.Name)
		}
	}
	if !d.Healthy {
		fmt.Fprintln(w, "\nMissing tools: stickers will be copied unconverted.")
	}
}
