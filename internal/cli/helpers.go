// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Shared setup used by export and diagnose.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/chatvault/internal/config"
	"github.com/jeranaias/chatvault/internal/identity"
	"github.com/jeranaias/chatvault/internal/logging"
)

// loadConfig resolves the effective configuration: .env, then the config
// file (explicit or default), then CHATVAULT_* variables, then flags.
func loadConfig(args Args) (*config.Config, error) {
	if err := config.LoadDotEnv(args.EnvFile); err != nil {
		return nil, err
	}

	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		if _, statErr := os.Stat(args.ConfigPath); statErr != nil {
			return nil, NewValidationError("config", args.ConfigPath, "file not found")
		}
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	applyArgs(cfg, args)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return cfg, nil
}

// applyArgs copies the flags that were given onto cfg.
func applyArgs(cfg *config.Config, args Args) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.DatabasePath, args.DBPath)
	set(&cfg.ExportDir, args.OutDir)
	set(&cfg.Format, args.Format)
	set(&cfg.AttachmentRoot, args.AttachmentRoot)
	set(&cfg.Converter.ImageTool, args.ImageTool)
	set(&cfg.Converter.VideoTool, args.VideoTool)
	set(&cfg.Query.Start, args.Start)
	set(&cfg.Query.End, args.End)
	set(&cfg.Identity.TieBreak, args.TieBreak)

	if args.Workers > 0 {
		cfg.Converter.Workers = args.Workers
	}
	if args.NoAttachments {
		cfg.Converter.CopyAttachments = false
	}
	if args.Verbose {
		cfg.Logging.Level = "debug"
	} else if args.Quiet {
		cfg.Logging.Level = "error"
	}
}

// newLogger builds the run logger. Logs always go to w (stderr) so JSON
// output on stdout stays parseable.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format, w)
}

// tieBreak maps the configured name to an identity tie-break.
func tieBreak(name string) identity.TieBreak {
	if strings.EqualFold(name, "largest") {
		return identity.Largest
	}
	return identity.Smallest
}

// ValidateOutputPath resolves the export directory and makes sure it is
// usable. The export must not land inside the database's own directory.
func ValidateOutputPath(out, dbPath string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(out))
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}

	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return "", NewValidationError("out", out, "exists and is not a directory")
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("check export directory: %w", err)
	}

	if dbPath != "" {
		dbDir, err := filepath.Abs(filepath.Dir(dbPath))
		if err == nil && isPathWithinDir(abs, dbDir) {
			return "", NewValidationError("out", out, "must not be inside the database directory")
		}
	}
	return abs, nil
}

// isPathWithinDir checks if a path is within a directory, ensuring proper
// path boundaries (/home/userEVIL is not inside /home/user).
func isPathWithinDir(path, dir string) bool {
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(dir)

	if cleanPath == cleanDir {
		return true
	}
	return strings.HasPrefix(cleanPath, cleanDir+string(filepath.Separator))
}

// formatDurationShort formats a short duration string.
func formatDurationShort(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
