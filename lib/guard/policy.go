// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

package guard

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/tidwall/jsonc"
)

// policyFile is the on-disk shape of an operator deny-list policy.
// Policies are authored as JSONC (JSON extended with // comments,
// /* block comments */, and trailing commas) so operators can document
// why each pattern exists next to the pattern itself.
type policyFile struct {
	Patterns []policyPattern `json:"patterns"`
}

type policyPattern struct {
	Name  string `json:"name"`
	Regex string `json:"regex"`
}

// LoadPolicy reads a JSONC policy file and returns a new Scanner whose
// deny-list is the receiver's plus the file's patterns. The receiver
// is unmodified; swap the returned Scanner in atomically.
func (s *Scanner) LoadPolicy(path string) (*Scanner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading deny-list policy: %w", err)
	}

	var policy policyFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &policy); err != nil {
		return nil, fmt.Errorf("parsing deny-list policy %s: %w", path, err)
	}

	extra := make([]Pattern, 0, len(policy.Patterns))
	for _, entry := range policy.Patterns {
		if entry.Name == "" {
			return nil, fmt.Errorf("deny-list policy %s: pattern with empty name", path)
		}
		compiled, err := regexp.Compile(entry.Regex)
		if err != nil {
			return nil, fmt.Errorf("deny-list policy %s: pattern %q: %w", path, entry.Name, err)
		}
		extra = append(extra, Pattern{Name: entry.Name, regexp: compiled})
	}

	return s.withPatterns(extra)
}
