// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and validation for chatvault.
//
// # Key Types
//
//   - Config: Main configuration structure
//   - ConverterConfig: Sticker conversion tools, scratch space and parallelism
//   - QueryConfig: Optional date window for exported messages
//   - IdentityConfig: Canonical ID choice for duplicate chats and handles
//   - LoggingConfig: Log level, format and progress cadence
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Command-line flags (applied by the cli package)
//   - Environment variables (CHATVAULT_*, optionally from a .env file)
//   - The file passed with --config, or ~/.chatvault/config.{toml,yaml,json}
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.LoadFromPath("chatvault.toml")
//	if err != nil {
//	    return err
//	}
//	timeout := cfg.Converter.ToolTimeout()
package config
