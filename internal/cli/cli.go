// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and the version/help handlers for chatvault.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdExport
	CmdDiagnose
	CmdVersion
)

// String returns the command name as typed on the command line.
func (c Command) String() string {
	switch c {
	case CmdExport:
		return "export"
	case CmdDiagnose:
		return "diagnose"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments. Empty strings and zero values mean
// "not given" so the config file and environment keep their values.
type Args struct {
	// Global flags
	JSON       bool // Output in JSON format
	Verbose    bool
	Quiet      bool
	ConfigPath string
	EnvFile    string

	// Export and diagnose
	DBPath         string
	OutDir         string
	Format         string
	ImageTool      string
	VideoTool      string
	Workers        int
	Start          string
	End            string
	TieBreak       string
	AttachmentRoot string
	NoAttachments  bool
}

const usageText = `chatvault - export a macOS Messages database into per-conversation files

Duplicate chats and handles are merged so every real conversation gets
exactly one file. Sticker attachments are converted to PNG/GIF on the way.

Usage:
  chatvault export [flags]     Export all conversations
  chatvault diagnose [flags]   Report duplicates and converter tools
  chatvault version            Show version information
  chatvault help               Show this help

Export flags:
  --db PATH                    Message database (default ~/Library/Messages/chat.db)
  --out DIR                    Export directory (default ./export)
  --format json|txt|md         Record format (default json)
  --image-tool sips|magick     Still-image converter
  --video-tool ffmpeg|none     Animated sticker converter
  --workers N                  Concurrent conversions (1-64)
  --start YYYY-MM-DD           First day to export (inclusive)
  --end YYYY-MM-DD             Day export stops at (exclusive)
  --tie-break smallest|largest Canonical ID of duplicate groups
  --attachment-root DIR        Directory "~" in attachment paths refers to
  --no-attachments             Reference attachments in place, copy nothing

Global flags:
  --config FILE                Config file (.toml, .yaml, .json)
  --env-file FILE              Environment file (default .env)
  --json                       Print the result as JSON
  -v, --verbose                Debug logging
  -q, --quiet                  Errors only

Environment:
  CHATVAULT_*                  Overrides any config key, e.g.
                               CHATVAULT_CONVERTER_WORKERS=4

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "chatvault version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments (without the program name) and
// returns the command and its args.
func Parse(argv []string) (Command, Args, error) {
	if len(argv) == 0 {
		return CmdHelp, Args{}, nil
	}

	name := strings.ToLower(argv[0])
	p := NewArgParser(argv[1:])
	args := parseGlobalFlags(p)

	switch name {
	case "export", "x":
		if err := parseExportArgs(&args, p); err != nil {
			return CmdExport, args, err
		}
		return CmdExport, args, nil

	case "diagnose", "doctor":
		if err := parseExportArgs(&args, p); err != nil {
			return CmdDiagnose, args, err
		}
		return CmdDiagnose, args, nil

	case "version", "--version":
		return CmdVersion, args, nil

	case "help", "-h", "--help":
		return CmdHelp, args, nil

	default:
		return CmdHelp, args, NewValidationErrorWithExample("command", argv[0],
			"unknown command", "chatvault export --db chat.db --out ./export")
	}
}

// parseGlobalFlags extracts the flags every command accepts.
func parseGlobalFlags(p *ArgParser) Args {
	return Args{
		JSON:       p.BoolFlag("json"),
		Verbose:    p.BoolFlag("verbose") || p.BoolFlag("v"),
		Quiet:      p.BoolFlag("quiet") || p.BoolFlag("q"),
		ConfigPath: p.Flag("config"),
		EnvFile:    p.Flag("env-file"),
	}
}

// parseExportArgs parses export and diagnose flags.
func parseExportArgs(args *Args, p *ArgParser) error {
	args.DBPath = p.Flag("db")
	args.OutDir = p.FlagOrDefault("out", p.Flag("o"))
	args.Format = strings.ToLower(p.Flag("format"))
	args.ImageTool = strings.ToLower(p.Flag("image-tool"))
	args.VideoTool = strings.ToLower(p.Flag("video-tool"))
	args.Start = p.Flag("start")
	args.End = p.Flag("end")
	args.TieBreak = strings.ToLower(p.Flag("tie-break"))
	args.AttachmentRoot = p.Flag("attachment-root")
	args.NoAttachments = p.BoolFlag("no-attachments")

	if p.HasFlag("workers") {
		n, err := ParseIntWithValidation(p.Flag("workers"), "workers")
		if err != nil {
			return NewValidationErrorWithExample("workers", p.Flag("workers"), err.Error(), "--workers 4")
		}
		args.Workers = n
	}

	if p.PositionalCount() > 0 {
		return NewValidationError("argument", p.Positional(0), "unexpected argument")
	}
	return nil
}

// HandleVersion handles the "version" command with JSON output support.
func HandleVersion(w io.Writer, args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print(w)
	}
	PrintVersion(w)
	return nil
}

// HandleHelp handles the "help" command.
func HandleHelp(w io.Writer) {
	PrintUsage(w)
}

// Run parses argv, executes the command and returns the process exit code.
// Results go to stdout; logs and plain-text errors go to stderr.
func Run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	cmd, args, err := Parse(argv)
	if err == nil {
		switch cmd {
		case CmdExport:
			err = HandleExport(ctx, args, stdout, stderr)
		case CmdDiagnose:
			err = HandleDiagnose(ctx, args, stdout, stderr)
		case CmdVersion:
			err = HandleVersion(stdout, args)
		default:
			HandleHelp(stdout)
		}
	}
	if err == nil {
		return ExitSuccess
	}

	if args.JSON {
		DisplayError(stdout, cmd.String(), err, true)
	} else {
		DisplayError(stderr, cmd.String(), err, false)
		var usage *ValidationError
		if errors.As(err, &usage) && cmd == CmdHelp {
			PrintUsage(stderr)
		}
	}
	return GetExitCode(err)
}
