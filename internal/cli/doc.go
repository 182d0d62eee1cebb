// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the command handlers for
// chatvault.
//
// # Key Types
//
//   - Command: Enumeration of the available commands
//   - Args: Parsed global and command-specific flags
//   - ArgParser: Flag and positional argument parsing
//   - JSONResponse: Machine-readable output for --json
//
// # Usage
//
//	os.Exit(cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr))
//
// # Commands Overview
//
//   - export: Write one file per conversation and copy attachments
//   - diagnose: Report duplicate chats and handles and check converter tools
//   - version: Build information
//
// Flags override CHATVAULT_* environment variables, which override the
// config file. Every command supports --json.
package cli
