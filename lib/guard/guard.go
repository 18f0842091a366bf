// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

// Package guard scans raw request frames for command-like payload
// patterns that a maintenance daemon must never accept, before any
// deserialization happens. The built-in pattern set is defined in
// code — what counts as dangerous is a security decision, not an
// operational knob — but operators can extend it with a JSONC policy
// file.
package guard

import (
	"fmt"
	"regexp"
)

// Pattern is one deny-list entry: a stable name for audit logs and a
// compiled regular expression.
type Pattern struct {
	Name   string
	regexp *regexp.Regexp
}

// Match reports which pattern a scanned payload hit.
type Match struct {
	// Pattern is the name of the matched deny-list entry.
	Pattern string
}

// builtinPatterns covers the payload classes the transport
// unconditionally refuses. Patterns are matched against the raw frame
// bytes, so an embedded command is caught no matter how the
// surrounding structure encodes it.
var builtinPatterns = []struct {
	name string
	expr string
}{
	// Destructive recursive deletion of the filesystem root, home, or
	// everything in reach.
	{"recursive-delete", `\brm\s+(?:-[a-zA-Z]+\s+)*-[a-zA-Z]*[rR][a-zA-Z]*\s+(?:-[a-zA-Z]+\s+)*(?:/\s|/$|/\*|~|\$HOME|--no-preserve-root)`},

	// Raw writes to block devices, either via dd or shell redirection.
	{"block-device-write", `\bdd\b[^\n]{0,200}\bof=/dev/(?:sd|hd|vd|xvd|nvme|mmcblk)`},
	{"block-device-redirect", `>\s*/dev/(?:sd|hd|vd|xvd|nvme|mmcblk)`},

	// Piping a downloader straight into a shell.
	{"pipe-to-shell", `\b(?:curl|wget)\b[^\n|]{0,300}\|\s*(?:sudo\s+)?(?:ba|z|da|k)?sh\b`},

	// Classic and spelled-out fork bombs.
	{"fork-bomb", `:\s*\(\s*\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`},
	{"fork-bomb-named", `\bwhile\s+true\s*;\s*do\s*.{0,40}&\s*done\b`},
}

// Scanner holds the compiled deny-list. Scanning is pure computation
// over the input bytes; a Scanner is immutable after construction and
// safe for concurrent use.
type Scanner struct {
	patterns []Pattern
}

// NewScanner compiles the built-in deny-list.
func NewScanner() *Scanner {
	patterns := make([]Pattern, 0, len(builtinPatterns))
	for _, builtin := range builtinPatterns {
		patterns = append(patterns, Pattern{
			Name:   builtin.name,
			regexp: regexp.MustCompile(builtin.expr),
		})
	}
	return &Scanner{patterns: patterns}
}

// Scan checks data against the deny-list and returns the first match,
// or nil when the payload is clean.
func (s *Scanner) Scan(data []byte) *Match {
	for _, pattern := range s.patterns {
		if pattern.regexp.Match(data) {
			return &Match{Pattern: pattern.Name}
		}
	}
	return nil
}

// withPatterns returns a new Scanner extending the receiver's
// deny-list. Duplicate names are rejected so audit logs stay
// unambiguous.
func (s *Scanner) withPatterns(extra []Pattern) (*Scanner, error) {
	seen := make(map[string]bool, len(s.patterns)+len(extra))
	for _, pattern := range s.patterns {
		seen[pattern.Name] = true
	}

	combined := make([]Pattern, 0, len(s.patterns)+len(extra))
	combined = append(combined, s.patterns...)
	for _, pattern := range extra {
		if seen[pattern.Name] {
			return nil, fmt.Errorf("guard: duplicate pattern name %q", pattern.Name)
		}
		seen[pattern.Name] = true
		combined = append(combined, pattern)
	}
	return &Scanner{patterns: combined}, nil
}
