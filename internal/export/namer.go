// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/jeranaias/chatvault/internal/identity"
	"github.com/jeranaias/chatvault/internal/storage"
	"github.com/jeranaias/chatvault/internal/util"
)

// maxNameWidth bounds the display width of the title part of a file name.
const maxNameWidth = 96

// Directory holds the tables needed to describe conversations and senders.
type Directory struct {
	Chats        map[int64]storage.Chat
	Handles      map[int64]storage.Handle
	Participants map[int64][]int64
	IDs          *identity.Cache
}

// Title returns a human readable title for a canonical chat: its display
// name, else its participants' addresses, else its identifier.
func (d *Directory) Title(canonical int64) string {
	chat := d.Chats[canonical]
	if chat.DisplayName != "" {
		return chat.DisplayName
	}
	if addresses := d.participantAddresses(canonical); len(addresses) > 0 {
		return strings.Join(addresses, ", ")
	}
	return chat.Identifier
}

// participantAddresses returns the distinct addresses of a chat's
// canonical participants ordered by canonical handle id.
func (d *Directory) participantAddresses(chat int64) []string {
	handles := lo.Uniq(lo.Map(d.Participants[chat], func(h int64, _ int) int64 {
		return d.IDs.Handle(h)
	}))
	slices.Sort(handles)
	return lo.Uniq(lo.FilterMap(handles, func(h int64, _ int) (string, bool) {
		addr := d.Handles[h].Address
		return addr, addr != ""
	}))
}

// Namer returns file names of the form "<sanitized title>-<canonical id>".
// The id suffix keeps distinct conversations with equal titles apart.
func (d *Directory) Namer() Namer {
	return func(canonical int64) string {
		title := util.SanitizeFilename(d.Title(canonical), maxNameWidth, "chat")
		return title + "-" + strconv.FormatInt(canonical, 10)
	}
}

// Sender returns the display name of a message's author.
func (d *Directory) Sender(m storage.Message) string {
	if m.IsFromMe {
		return "Me"
	}
	return d.address(m.HandleID)
}

// Receiver returns the display name of a message's recipient.
func (d *Directory) Receiver(m storage.Message) string {
	if !m.IsFromMe {
		return "Me"
	}
	return d.address(m.HandleID)
}

func (d *Directory) address(handle int64) string {
	if handle == 0 {
		return "Unknown"
	}
	if h, ok := d.Handles[d.IDs.Handle(handle)]; ok && h.Address != "" {
		return h.Address
	}
	return "Unknown"
}
