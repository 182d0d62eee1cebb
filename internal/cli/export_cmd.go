// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export_cmd.go - The export command.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/jeranaias/chatvault/internal/config"
	"github.com/jeranaias/chatvault/internal/convert"
	"github.com/jeranaias/chatvault/internal/export"
	"github.com/jeranaias/chatvault/internal/identity"
	"github.com/jeranaias/chatvault/internal/storage"
)

// HandleExport runs one export and prints its summary to stdout.
func HandleExport(ctx context.Context, args Args, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	log := newLogger(cfg, stderr)

	outDir, err := ValidateOutputPath(cfg.ExportDir, cfg.DatabasePath)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.DatabasePath, storage.Options{AttachmentRoot: cfg.AttachmentRoot})
	if err != nil {
		return NewCommandError("export", "open database", cfg.DatabasePath, err)
	}
	defer store.Close()

	driver, err := newDriver(store, cfg, outDir, log)
	if err != nil {
		return err
	}

	summary, err := driver.Run(ctx)
	if err != nil {
		return NewCommandError("export", "run", fmt.Sprintf("stopped after %d messages", summary.Messages), err)
	}

	if args.JSON {
		return NewJSONResponse("export", ExportData{
			Database:               store.Path(),
			OutputDir:              outDir,
			Format:                 cfg.Format,
			Messages:               summary.Messages,
			Orphans:                summary.Orphans,
			Conversations:          summary.Conversations,
			Files:                  summary.Files,
			DuplicateConversations: summary.DuplicateConversations,
			DuplicateHandles:       summary.DuplicateHandles,
			Converted:              summary.Converted,
			Passthrough:            summary.Passthrough,
			Missing:                summary.Missing,
			RecordBytes:            summary.RecordBytes,
			AttachmentBytes:        summary.AttachmentBytes,
			ElapsedMs:              summary.Elapsed.Milliseconds(),
		}).Print(stdout)
	}

	printSummary(stdout, outDir, summary)
	return nil
}

// newDriver wires the store, converter pool and formatter for cfg.
func newDriver(store *storage.Store, cfg *config.Config, outDir string, log zerolog.Logger) (*export.Driver, error) {
	formatter, err := export.NewFormatter(cfg.Format)
	if err != nil {
		return nil, NewValidationErrorWithExample("format", cfg.Format, err.Error(), "--format json")
	}

	start, end, err := cfg.Query.Window()
	if err != nil {
		return nil, NewValidationErrorWithExample("date", "", err.Error(), "--start 2024-01-01")
	}

	var pool *convert.Pool
	if cfg.Converter.CopyAttachments {
		conv, err := newConverter(cfg, log)
		if err != nil {
			return nil, err
		}
		pool = convert.NewPool(conv, cfg.Converter.Workers)
	}

	opts := export.Options{
		Dir:              outDir,
		Formatter:        formatter,
		Query:            storage.Query{Start: start, End: end},
		BatchSize:        cfg.Converter.BatchSize,
		ProgressInterval: cfg.Logging.ProgressInterval(),
		Identity:         []identity.Option{identity.WithTieBreak(tieBreak(cfg.Identity.TieBreak))},
	}
	if pool != nil {
		opts.ScratchRoot = cfg.Converter.ScratchDir
		opts.ScratchStaleAfter = cfg.Converter.ScratchStaleAfter()
	}
	return export.NewDriver(store, pool, opts, log), nil
}

// newConverter builds a Converter from the converter settings.
func newConverter(cfg *config.Config, log zerolog.Logger) (*convert.Converter, error) {
	image, err := convert.ParseImageTool(cfg.Converter.ImageTool)
	if err != nil {
		return nil, NewValidationError("image-tool", cfg.Converter.ImageTool, err.Error())
	}
	video, err := convert.ParseVideoTool(cfg.Converter.VideoTool)
	if err != nil {
		return nil, NewValidationError("video-tool", cfg.Converter.VideoTool, err.Error())
	}
	runner := convert.ExecRunner{Timeout: cfg.Converter.ToolTimeout(), Log: log}
	return convert.New(image, video, runner, cfg.Converter.ScratchDir, log), nil
}

// printSummary writes the human-readable run summary.
func printSummary(w io.Writer, outDir string, s export.Summary) {
	fmt.Fprintf(w, "Exported %s messages to %s\n", humanize.Comma(int64(s.Messages)), outDir)
	fmt.Fprintf(w, "  Conversations:  %d (%d duplicate chats merged, %d duplicate handles)\n",
		s.Conversations, s.DuplicateConversations, s.DuplicateHandles)
	fmt.Fprintf(w, "  Orphaned:       %d\n", s.Orphans)
	fmt.Fprintf(w, "  Files:          %d (%s)\n", s.Files, humanize.Bytes(uint64(s.RecordBytes)))
	fmt.Fprintf(w, "  Attachments:    %d converted, %d copied, %d missing (%s)\n",
		s.Converted, s.Passthrough, s.Missing, humanize.Bytes(uint64(s.AttachmentBytes)))
	fmt.Fprintf(w, "  Elapsed:        %s\n", formatDurationShort(s.Elapsed))
}
