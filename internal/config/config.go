// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and validation for chatvault.
//
// Supports TOML, YAML and JSON configuration files, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.chatvault/config.toml
//   - ~/.chatvault/config.yaml
//   - ~/.chatvault/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CHATVAULT_FORMAT.
const EnvPrefix = "CHATVAULT"

// DateLayout is the layout of query.start and query.end.
const DateLayout = "2006-01-02"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete chatvault configuration.
type Config struct {
	// DatabasePath is the message-store SQLite file to export from.
	DatabasePath string `toml:"database_path" json:"database_path" yaml:"database_path" split_words:"true" validate:"required"`
	// ExportDir receives one file per conversation plus orphaned.<ext>.
	ExportDir string `toml:"export_dir" json:"export_dir" yaml:"export_dir" split_words:"true" validate:"required"`
	// Format is the record encoding: "json" (JSON Lines), "txt" or "md".
	Format string `toml:"format" json:"format" yaml:"format" split_words:"true" validate:"oneof=json txt md"`
	// AttachmentRoot replaces a leading "~" in attachment paths.
	// Default: the current user's home directory
	AttachmentRoot string `toml:"attachment_root" json:"attachment_root" yaml:"attachment_root" split_words:"true"`

	Converter ConverterConfig `toml:"converter" json:"converter" yaml:"converter" split_words:"true"`
	Query     QueryConfig     `toml:"query" json:"query" yaml:"query" split_words:"true"`
	Identity  IdentityConfig  `toml:"identity" json:"identity" yaml:"identity" split_words:"true"`
	Logging   LoggingConfig   `toml:"logging" json:"logging" yaml:"logging" split_words:"true"`
}

// ConverterConfig controls attachment conversion.
type ConverterConfig struct {
	// CopyAttachments copies (and converts) attachments into the export.
	// When false, records reference the original attachment paths.
	CopyAttachments bool `toml:"copy_attachments" json:"copy_attachments" yaml:"copy_attachments" split_words:"true"`
	// ImageTool is the still-image converter: "sips" (macOS) or "magick".
	ImageTool string `toml:"image_tool" json:"image_tool" yaml:"image_tool" split_words:"true" validate:"oneof=sips magick"`
	// VideoTool is the animated sticker converter: "ffmpeg" or "none".
	VideoTool string `toml:"video_tool" json:"video_tool" yaml:"video_tool" split_words:"true" validate:"omitempty,oneof=ffmpeg none"`
	// ScratchDir holds per-conversion scratch workspaces.
	// Default: <os temp dir>/chatvault
	ScratchDir string `toml:"scratch_dir" json:"scratch_dir" yaml:"scratch_dir" split_words:"true"`
	// ToolTimeoutSecs bounds each external tool call (0 = no limit).
	ToolTimeoutSecs int `toml:"tool_timeout_secs" json:"tool_timeout_secs" yaml:"tool_timeout_secs" split_words:"true" validate:"gte=0"`
	// Workers is the number of attachments converted concurrently.
	Workers int `toml:"workers" json:"workers" yaml:"workers" split_words:"true" validate:"gte=1,lte=64"`
	// BatchSize is the number of messages buffered before their
	// attachments are converted as one batch.
	BatchSize int `toml:"batch_size" json:"batch_size" yaml:"batch_size" split_words:"true" validate:"gte=1,lte=10000"`
}

// QueryConfig restricts which messages are exported.
type QueryConfig struct {
	// Start is the first day to export (inclusive), YYYY-MM-DD.
	Start string `toml:"start" json:"start" yaml:"start" split_words:"true" validate:"omitempty,datetime=2006-01-02"`
	// End is the day export stops at (exclusive), YYYY-MM-DD.
	End string `toml:"end" json:"end" yaml:"end" split_words:"true" validate:"omitempty,datetime=2006-01-02"`
}

// IdentityConfig controls duplicate chat and handle collapsing.
type IdentityConfig struct {
	// TieBreak picks the canonical ID of a duplicate group:
	// "smallest" (oldest row) or "largest" (newest row).
	TieBreak string `toml:"tie_break" json:"tie_break" yaml:"tie_break" split_words:"true" validate:"oneof=smallest largest"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level" yaml:"level" split_words:"true" validate:"oneof=trace debug info warn warning error off disabled"`
	Format string `toml:"format" json:"format" yaml:"format" split_words:"true" validate:"oneof=console json"`
	// ProgressIntervalSecs is the minimum gap between progress log lines.
	ProgressIntervalSecs int `toml:"progress_interval_secs" json:"progress_interval_secs" yaml:"progress_interval_secs" split_words:"true" validate:"gte=0"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()

	imageTool := "magick"
	if runtime.GOOS == "darwin" {
		imageTool = "sips"
	}

	return &Config{
		DatabasePath:   filepath.Join(home, "Library", "Messages", "chat.db"),
		ExportDir:      "export",
		Format:         "json",
		AttachmentRoot: home,
		Converter: ConverterConfig{
			CopyAttachments: true,
			ImageTool:       imageTool,
			VideoTool:       "ffmpeg",
			ScratchDir:      filepath.Join(os.TempDir(), "chatvault"),
			ToolTimeoutSecs: 120,
			Workers:         1,
			BatchSize:       64,
		},
		Identity: IdentityConfig{
			TieBreak: "smallest",
		},
		Logging: LoggingConfig{
			Level:                "info",
			Format:               "console",
			ProgressIntervalSecs: 5,
		},
	}
}

// =============================================================================
// CONFIG PATHS
// =============================================================================

// ConfigDir returns the chatvault configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".chatvault"), nil
}

// candidatePaths lists the default config files in precedence order.
func candidatePaths() []string {
	dir, err := ConfigDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(dir, "config.toml"),
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "config.json"),
	}
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the first default config file that exists,
// or from built-in defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	for _, path := range candidatePaths() {
		if _, err := os.Stat(path); err == nil {
			return LoadFromPath(path)
		}
	}
	return finish(Default())
}

// LoadFromPath loads configuration from a specific file path with full validation.
// The file type is chosen by extension; anything unknown is read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = LoadJSON(cfg, path)
	case ".yaml", ".yml":
		err = LoadYAML(cfg, path)
	default:
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	return finish(cfg)
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg, func(key string) bool { return md.IsDefined(strings.Split(key, ".")...) })
	return nil
}

// LoadYAML loads configuration from a YAML file.
func LoadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode YAML file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML file: %w", err)
	}
	fillDefaults(cfg, definedIn(raw))
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg, definedIn(raw))
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// finish applies env overrides and validates.
func finish(cfg *Config) (*Config, error) {
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// definedIn reports whether a dotted key is present in a decoded document.
func definedIn(raw map[string]any) func(string) bool {
	return func(key string) bool {
		var node any = raw
		for _, part := range strings.Split(key, ".") {
			m, ok := node.(map[string]any)
			if !ok {
				return false
			}
			if node, ok = m[part]; !ok {
				return false
			}
		}
		return true
	}
}

// fillDefaults fills in any missing values with defaults. Boolean keys are
// only defaulted when the file does not mention them at all.
func fillDefaults(cfg *Config, defined func(key string) bool) {
	defaults := Default()

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaults.DatabasePath
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = defaults.ExportDir
	}
	if cfg.Format == "" {
		cfg.Format = defaults.Format
	}
	if cfg.AttachmentRoot == "" {
		cfg.AttachmentRoot = defaults.AttachmentRoot
	}

	// Converter
	if !defined("converter.copy_attachments") {
		cfg.Converter.CopyAttachments = defaults.Converter.CopyAttachments
	}
	if cfg.Converter.ImageTool == "" {
		cfg.Converter.ImageTool = defaults.Converter.ImageTool
	}
	if cfg.Converter.VideoTool == "" && !defined("converter.video_tool") {
		cfg.Converter.VideoTool = defaults.Converter.VideoTool
	}
	if cfg.Converter.ScratchDir == "" {
		cfg.Converter.ScratchDir = defaults.Converter.ScratchDir
	}
	if !defined("converter.tool_timeout_secs") {
		cfg.Converter.ToolTimeoutSecs = defaults.Converter.ToolTimeoutSecs
	}
	if cfg.Converter.Workers == 0 {
		cfg.Converter.Workers = defaults.Converter.Workers
	}
	if cfg.Converter.BatchSize == 0 {
		cfg.Converter.BatchSize = defaults.Converter.BatchSize
	}

	if cfg.Identity.TieBreak == "" {
		cfg.Identity.TieBreak = defaults.Identity.TieBreak
	}

	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
	if !defined("logging.progress_interval_secs") {
		cfg.Logging.ProgressIntervalSecs = defaults.Logging.ProgressIntervalSecs
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies CHATVAULT_* environment variables on top of the
// loaded values. Nested keys join with underscores, e.g.
// CHATVAULT_CONVERTER_WORKERS or CHATVAULT_LOGGING_LEVEL. Only prefixed
// variables are consulted.
func (c *Config) ApplyEnvOverrides() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("environment override failed: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate validates the configuration and returns ValidateErrors when
// anything is out of range.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, ValidationError{
				Field:   fieldPath(fe.Namespace()),
				Message: describe(fe),
			})
		}
	}

	start, end, err := c.Query.Window()
	if err == nil && !start.IsZero() && !end.IsZero() && !end.After(start) {
		errs = append(errs, ValidationError{
			Field:   "query.end",
			Message: "must be after query.start",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("invalid value '%v', must be one of: %s", fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return fmt.Sprintf("invalid date '%v', expected YYYY-MM-DD", fe.Value())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed '%s' check", fe.Tag())
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Window parses Start and End in local time. Unset bounds are zero.
func (q QueryConfig) Window() (start, end time.Time, err error) {
	if q.Start != "" {
		if start, err = time.ParseInLocation(DateLayout, q.Start, time.Local); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("query.start: %w", err)
		}
	}
	if q.End != "" {
		if end, err = time.ParseInLocation(DateLayout, q.End, time.Local); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("query.end: %w", err)
		}
	}
	return start, end, nil
}

// ToolTimeout returns the per-call tool timeout; zero disables it.
func (c ConverterConfig) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSecs) * time.Second
}

// ScratchStaleAfter is how long a scratch workspace must sit untouched
// before a new run removes it: twice the tool timeout, at least an hour.
func (c ConverterConfig) ScratchStaleAfter() time.Duration {
	return max(time.Hour, 2*c.ToolTimeout())
}

// HasVideoTool reports whether animated conversion is enabled.
func (c ConverterConfig) HasVideoTool() bool {
	return c.VideoTool != "" && c.VideoTool != "none"
}

// ProgressInterval returns the minimum gap between progress log lines.
func (l LoggingConfig) ProgressInterval() time.Duration {
	return time.Duration(l.ProgressIntervalSecs) * time.Second
}
