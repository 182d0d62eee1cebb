// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// JSON FORMATTER
// =============================================================================

// JSONFormatter writes one JSON object per line (JSON Lines).
type JSONFormatter struct{}

type jsonRecord struct {
	Timestamp      string             `json:"timestamp"`
	Sender         string             `json:"sender"`
	Receiver       string             `json:"receiver"`
	Message        string             `json:"message"`
	ConversationID *int64             `json:"conversation_id"`
	GUID           string             `json:"guid"`
	Service        string             `json:"service"`
	IsRead         bool               `json:"is_read"`
	DateRead       string             `json:"date_read"`
	DateDelivered  string             `json:"date_delivered"`
	Attachments    []AttachmentRecord `json:"attachments,omitempty"`
}

// Format encodes r as a single line of JSON.
func (JSONFormatter) Format(r Record) ([]byte, error) {
	data, err := json.Marshal(jsonRecord{
		Timestamp:      formatTimestamp(r.Timestamp),
		Sender:         r.Sender,
		Receiver:       r.Receiver,
		Message:        r.Text,
		ConversationID: r.ConversationID,
		GUID:           r.GUID,
		Service:        r.Service,
		IsRead:         r.IsRead,
		DateRead:       formatTimestamp(r.DateRead),
		DateDelivered:  formatTimestamp(r.DateDelivered),
		Attachments:    r.Attachments,
	})
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", r.GUID, err)
	}
	return append(data, '\n'), nil
}

// FileExtension returns the file extension for JSON.
func (JSONFormatter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON Lines.
func (JSONFormatter) MimeType() string {
	return "application/jsonl"
}
