// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.Converter.CopyAttachments)
	require.True(t, cfg.Converter.HasVideoTool())
	require.Equal(t, 2*time.Minute, cfg.Converter.ToolTimeout())
	require.Equal(t, time.Hour, cfg.Converter.ScratchStaleAfter())
}

func TestScratchStaleAfter_FollowsToolTimeout(t *testing.T) {
	tests := []struct {
		secs int
		want time.Duration
	}{
		{0, time.Hour},
		{120, time.Hour},
		{3600, 2 * time.Hour},
	}
	for _, tt := range tests {
		c := ConverterConfig{ToolTimeoutSecs: tt.secs}
		require.Equal(t, tt.want, c.ScratchStaleAfter(), "tool_timeout_secs=%d", tt.secs)
	}
}

func TestLoadFromPath_TOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
database_path = "/data/chat.db"
export_dir = "/data/out"
format = "txt"

[converter]
image_tool = "magick"
video_tool = "none"
workers = 4
copy_attachments = false
tool_timeout_secs = 0
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "/data/chat.db", cfg.DatabasePath)
	require.Equal(t, "txt", cfg.Format)
	require.Equal(t, "magick", cfg.Converter.ImageTool)
	require.False(t, cfg.Converter.HasVideoTool())
	require.Equal(t, 4, cfg.Converter.Workers)
	require.False(t, cfg.Converter.CopyAttachments)
	require.Zero(t, cfg.Converter.ToolTimeout())

	// Unset keys fall back to defaults
	require.Equal(t, 64, cfg.Converter.BatchSize)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, 5*time.Second, cfg.Logging.ProgressInterval())
}

func TestLoadFromPath_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
database_path: /data/chat.db
export_dir: /data/out
converter:
  workers: 2
query:
  start: "2023-01-01"
  end: "2023-02-01"
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Converter.Workers)
	require.True(t, cfg.Converter.CopyAttachments)

	start, end, err := cfg.Query.Window()
	require.NoError(t, err)
	require.Equal(t, 2023, start.Year())
	require.Equal(t, time.February, end.Month())
}

func TestLoadFromPath_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"database_path": "/data/chat.db", "format": "json", "logging": {"format": "json"}}`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, "export", cfg.ExportDir)
}

func TestLoadFromPath_RejectsInvalidValues(t *testing.T) {
	path := writeFile(t, "config.toml", `
format = "pdf"

[converter]
image_tool = "gimp"
workers = 500

[identity]
tie_break = "random"
`)

	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))

	fields := map[string]bool{}
	for _, v := range verrs {
		fields[v.Field] = true
	}
	require.True(t, fields["format"])
	require.True(t, fields["converter.image_tool"])
	require.True(t, fields["converter.workers"])
	require.True(t, fields["identity.tie_break"])
}

func TestValidate_QueryWindowOrder(t *testing.T) {
	cfg := Default()
	cfg.Query = QueryConfig{Start: "2024-05-01", End: "2024-04-01"}

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "query.end")

	cfg.Query = QueryConfig{Start: "2024-13-40"}
	require.Error(t, cfg.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("CHATVAULT_FORMAT", "txt")
	t.Setenv("CHATVAULT_CONVERTER_WORKERS", "8")
	t.Setenv("CHATVAULT_LOGGING_LEVEL", "debug")
	t.Setenv("CHATVAULT_IDENTITY_TIE_BREAK", "largest")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnvOverrides())
	require.Equal(t, "txt", cfg.Format)
	require.Equal(t, 8, cfg.Converter.Workers)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "largest", cfg.Identity.TieBreak)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "CHATVAULT_EXPORT_DIR=/from/dotenv\n")
	t.Setenv("CHATVAULT_EXPORT_DIR", "")
	os.Unsetenv("CHATVAULT_EXPORT_DIR")

	require.NoError(t, LoadDotEnv(path))
	require.Equal(t, "/from/dotenv", os.Getenv("CHATVAULT_EXPORT_DIR"))

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
