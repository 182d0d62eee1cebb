// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Flag parsing shared by the export and diagnose commands.

package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser splits the arguments after the command name into flags and
// positional arguments.
//
// Accepted forms:
//
//	--db chat.db       value separated by a space
//	--start=2024-01-01 value after '='
//	-o ./export        short flag
//	--json             boolean; --json=false turns it off explicitly
//
// A flag followed by another flag (or by nothing) is boolean.
type ArgParser struct {
	values     map[string]string
	bools      map[string]bool
	positional []string
}

// NewArgParser parses raw.
func NewArgParser(raw []string) *ArgParser {
	p := &ArgParser{
		values: make(map[string]string),
		bools:  make(map[string]bool),
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if !strings.HasPrefix(arg, "-") {
			p.positional = append(p.positional, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		switch {
		case hasValue && (value == "true" || value == "false"):
			p.bools[name] = value == "true"
		case hasValue:
			p.values[name] = value
		case i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-"):
			p.values[name] = raw[i+1]
			i++
		default:
			p.bools[name] = true
		}
	}
	return p
}

// Flag returns the value of --name, or "" when it was not given.
// Leading dashes in name are ignored.
func (p *ArgParser) Flag(name string) string {
	return p.values[strings.TrimLeft(name, "-")]
}

// FlagOrDefault returns the value of --name, or def when it is empty.
func (p *ArgParser) FlagOrDefault(name, def string) string {
	if v := p.Flag(name); v != "" {
		return v
	}
	return def
}

// BoolFlag reports whether --name was set to true.
func (p *ArgParser) BoolFlag(name string) bool {
	return p.bools[strings.TrimLeft(name, "-")]
}

// HasFlag reports whether --name was given in any form.
func (p *ArgParser) HasFlag(name string) bool {
	name = strings.TrimLeft(name, "-")
	_, isValue := p.values[name]
	_, isBool := p.bools[name]
	return isValue || isBool
}

// Positional returns the positional argument at index, or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// =============================================================================
// VALUE HELPERS
// =============================================================================

// ParseIntWithValidation parses s as a positive integer. fieldName names
// the value in the error.
func ParseIntWithValidation(s string, fieldName string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", fieldName)
	}

	val, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", fieldName, err)
	}

	if val <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", fieldName, val)
	}

	return val, nil
}
