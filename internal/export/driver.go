// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jeranaias/chatvault/internal/convert"
	"github.com/jeranaias/chatvault/internal/identity"
	"github.com/jeranaias/chatvault/internal/storage"
)

// =============================================================================
// SOURCE
// =============================================================================

// Source is the read side of a message store. *storage.Store implements it.
type Source interface {
	Chats(ctx context.Context) (map[int64]storage.Chat, error)
	Handles(ctx context.Context) (map[int64]storage.Handle, error)
	ChatParticipants(ctx context.Context) (map[int64][]int64, error)
	CountMessages(ctx context.Context, q storage.Query) (int, error)
	StreamMessages(ctx context.Context, q storage.Query, fn func(storage.Message) error) error
	Attachments(ctx context.Context, messageID int64) ([]storage.Attachment, error)
}

// =============================================================================
// OPTIONS
// =============================================================================

// AttachmentsDir is the directory under the export root holding copies.
const AttachmentsDir = "attachments"

// Options configures a Driver.
type Options struct {
	// Dir is the export root.
	Dir string

	// Formatter encodes each record. Default: JSONFormatter
	Formatter Formatter

	// Query restricts the exported date window.
	Query storage.Query

	// BatchSize is how many messages are buffered before their
	// attachments are converted together. Default: 64
	BatchSize int

	// ScratchRoot is cleaned of stale conversion workspaces before the
	// run. Empty skips the cleanup.
	ScratchRoot string

	// ScratchStaleAfter is how long a workspace must sit untouched before
	// the cleanup removes it. Default: 1h
	ScratchStaleAfter time.Duration

	// ProgressInterval throttles progress log lines. Default: 5s
	ProgressInterval time.Duration

	// Identity options for duplicate detection.
	Identity []identity.Option
}

func (o *Options) fillDefaults() {
	if o.Formatter == nil {
		o.Formatter = JSONFormatter{}
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = 5 * time.Second
	}
	if o.ScratchStaleAfter <= 0 {
		o.ScratchStaleAfter = time.Hour
	}
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary reports what a run produced.
type Summary struct {
	Messages               int
	Orphans                int
	Conversations          int
	DuplicateConversations int
	DuplicateHandles       int
	Converted              int
	Passthrough            int
	Missing                int
	AttachmentBytes        int64
	RecordBytes            int64
	Files                  int
	Elapsed                time.Duration
}

// String renders the summary as one log-friendly line.
func (s Summary) String() string {
	return fmt.Sprintf("%s messages in %d files (%d orphaned), %d attachments converted, %d copied, %d missing, %s records, %s attachments, %s",
		humanize.Comma(int64(s.Messages)), s.Files, s.Orphans,
		s.Converted, s.Passthrough, s.Missing,
		humanize.Bytes(uint64(s.RecordBytes)), humanize.Bytes(uint64(s.AttachmentBytes)),
		s.Elapsed.Round(time.Millisecond))
}

// =============================================================================
// DRIVER
// =============================================================================

// Driver runs one export: it streams messages from a Source, converts
// their attachments and routes the encoded records into per-conversation
// files.
type Driver struct {
	src  Source
	pool *convert.Pool
	opts Options
	log  zerolog.Logger
}

// NewDriver creates a Driver. pool may be nil to export messages without
// copying attachments.
func NewDriver(src Source, pool *convert.Pool, opts Options, log zerolog.Logger) *Driver {
	opts.fillDefaults()
	return &Driver{
		src:  src,
		pool: pool,
		opts: opts,
		log:  log.With().Str("component", "export").Logger(),
	}
}

// LoadDirectory reads the cacheable tables and builds the identity cache.
func LoadDirectory(ctx context.Context, src Source, opts ...identity.Option) (*Directory, error) {
	chats, err := src.Chats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	handles, err := src.Handles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load handles: %w", err)
	}
	participants, err := src.ChatParticipants(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chat participants: %w", err)
	}

	// Every chat takes part in grouping, including chats with no handles
	table := make(map[int64][]int64, len(chats))
	for id := range chats {
		table[id] = participants[id]
	}
	addresses := make(map[int64]string, len(handles))
	for id, h := range handles {
		addresses[id] = h.Address
	}

	return &Directory{
		Chats:        chats,
		Handles:      handles,
		Participants: participants,
		IDs:          identity.Build(table, addresses, opts...),
	}, nil
}

// Run performs the export. Files flushed before an error stay valid.
func (d *Driver) Run(ctx context.Context) (summary Summary, err error) {
	start := time.Now()

	dir, err := LoadDirectory(ctx, d.src, d.opts.Identity...)
	if err != nil {
		return Summary{}, err
	}
	stats := dir.IDs.Stats()
	d.log.Info().
		Int("conversations", stats.RawConversations).
		Int("duplicate_conversations", stats.DuplicateConversations()).
		Int("handles", stats.RawHandles).
		Int("duplicate_handles", stats.DuplicateHandles()).
		Msg("identity cache built")

	if d.pool != nil && d.opts.ScratchRoot != "" {
		removed, err := convert.CleanScratch(d.opts.ScratchRoot, d.opts.ScratchStaleAfter)
		if err != nil {
			d.log.Warn().Err(err).Msg("failed to clean scratch directory")
		} else if removed > 0 {
			d.log.Info().Int("removed", removed).Msg("removed stale scratch workspaces")
		}
	}

	total, err := d.src.CountMessages(ctx, d.opts.Query)
	if err != nil {
		return Summary{}, fmt.Errorf("count messages: %w", err)
	}

	mux, err := NewMux(d.opts.Dir, d.opts.Formatter.FileExtension(), dir.Namer())
	if err != nil {
		return Summary{}, err
	}
	defer func() {
		if closeErr := mux.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		summary.Orphans = mux.Orphans()
		summary.Conversations = mux.Conversations()
		summary.Files = mux.OpenFiles()
		summary.RecordBytes = mux.BytesWritten()
		summary.Elapsed = time.Since(start)
	}()

	summary.DuplicateConversations = stats.DuplicateConversations()
	summary.DuplicateHandles = stats.DuplicateHandles()

	d.log.Info().
		Int("messages", total).
		Str("dir", d.opts.Dir).
		Str("format", d.opts.Formatter.MimeType()).
		Msg("exporting")

	run := &exportRun{
		Driver:   d,
		dir:      dir,
		mux:      mux,
		summary:  &summary,
		total:    total,
		progress: rate.NewLimiter(rate.Every(d.opts.ProgressInterval), 1),
		batch:    make([]storage.Message, 0, d.opts.BatchSize),
	}

	err = d.src.StreamMessages(ctx, d.opts.Query, func(m storage.Message) error {
		run.batch = append(run.batch, m)
		if len(run.batch) >= d.opts.BatchSize {
			return run.flush(ctx)
		}
		return nil
	})
	if err == nil {
		err = run.flush(ctx)
	}
	if err != nil {
		return summary, err
	}

	d.log.Info().Int("messages", summary.Messages).Msg("export finished")
	return summary, nil
}

// exportRun is the state of one Run.
type exportRun struct {
	*Driver
	dir      *Directory
	mux      *Mux
	summary  *Summary
	total    int
	progress *rate.Limiter
	batch    []storage.Message
}

// flush converts the attachments of the buffered messages and routes the
// messages in order.
func (r *exportRun) flush(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}

	attachments, err := r.convertBatch(ctx)
	if err != nil {
		return err
	}

	for i, m := range r.batch {
		rec := r.record(m, attachments[i])
		data, err := r.opts.Formatter.Format(rec)
		if err != nil {
			return err
		}

		ref := Orphan
		if rec.ConversationID != nil {
			ref = Chat(*rec.ConversationID)
		}
		if err := r.mux.Route(ref, data); err != nil {
			return err
		}
		r.summary.Messages++
	}
	r.batch = r.batch[:0]

	if r.progress.Allow() {
		r.log.Info().
			Int("done", r.summary.Messages).
			Int("total", r.total).
			Int("files", r.mux.OpenFiles()).
			Msg("progress")
	}
	return nil
}

// convertBatch returns the attachment records of every buffered message,
// indexed like r.batch.
func (r *exportRun) convertBatch(ctx context.Context) ([][]AttachmentRecord, error) {
	out := make([][]AttachmentRecord, len(r.batch))

	type slot struct{ msg, att int }
	var (
		reqs  []convert.Request
		slots []slot
	)
	for i, m := range r.batch {
		if !m.HasAttachments {
			continue
		}
		atts, err := r.src.Attachments(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("load attachments of message %d: %w", m.ID, err)
		}
		out[i] = make([]AttachmentRecord, len(atts))
		for j, a := range atts {
			out[i][j] = AttachmentRecord{Path: a.Path, MediaType: a.MimeType}
			if a.Path == "" {
				out[i][j] = AttachmentRecord{Missing: true}
				r.summary.Missing++
				continue
			}
			if r.pool == nil {
				continue
			}
			reqs = append(reqs, convert.Request{
				Source:      a.Path,
				Destination: filepath.Join(r.opts.Dir, AttachmentsDir, strconv.FormatInt(a.ID, 10)),
				MediaType:   a.Subtype(),
			})
			slots = append(slots, slot{msg: i, att: j})
		}
	}
	if len(reqs) == 0 {
		return out, nil
	}

	results, errs, err := r.pool.ConvertAll(ctx, reqs)
	if err != nil {
		return nil, fmt.Errorf("convert attachments: %w", err)
	}

	for k, s := range slots {
		rec := &out[s.msg][s.att]
		if errs[k] != nil {
			r.log.Warn().Err(errs[k]).Int64("message", r.batch[s.msg].ID).Msg("attachment skipped")
			*rec = AttachmentRecord{Missing: true}
			r.summary.Missing++
			continue
		}

		res := results[k]
		rec.Path = r.relative(res.Path)
		rec.Converted = res.Outcome.Kind == convert.Converted
		if rec.Converted {
			rec.MediaType = res.Outcome.MediaType
			r.summary.Converted++
		} else {
			r.summary.Passthrough++
		}
		r.summary.AttachmentBytes += res.Bytes
	}
	return out, nil
}

func (r *exportRun) record(m storage.Message, attachments []AttachmentRecord) Record {
	rec := Record{
		Timestamp:     m.Date,
		Sender:        r.dir.Sender(m),
		Receiver:      r.dir.Receiver(m),
		Text:          m.Text,
		GUID:          m.GUID,
		Service:       m.Service,
		IsFromMe:      m.IsFromMe,
		IsRead:        m.IsRead,
		DateRead:      m.DateRead,
		DateDelivered: m.DateDelivered,
		Attachments:   attachments,
	}
	if m.ChatID != nil {
		canonical := r.dir.IDs.Chat(*m.ChatID)
		rec.ConversationID = &canonical
	}
	return rec
}

// relative makes path relative to the export root when possible.
func (r *exportRun) relative(path string) string {
	if rel, err := filepath.Rel(r.opts.Dir, path); err == nil {
		return rel
	}
	return path
}
