// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeAddress returns the contact-identity key of a handle address.
//
// E-mail style addresses (anything containing "@") are NFKC-normalized and
// case-folded. Phone numbers keep only their digits, plus a leading "+" when
// present, so "+1 (555) 555-0100" and "+15555550100" share a key. Other
// values are NFKC-normalized and case-folded. Blank input yields "".
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(norm.NFKC.String(address))
	if address == "" {
		return ""
	}

	if strings.Contains(address, "@") {
		return cases.Fold().String(address)
	}

	if phone, ok := normalizePhone(address); ok {
		return phone
	}
	return cases.Fold().String(address)
}

// normalizePhone strips formatting from a phone number. It reports false when
// the value contains letters or no digits at all.
func normalizePhone(s string) (string, bool) {
	var sb strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			sb.WriteRune(r)
		case r == '+' && i == 0:
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", false
		}
	}
	out := sb.String()
	if strings.TrimPrefix(out, "+") == "" {
		return "", false
	}
	return out, true
}
