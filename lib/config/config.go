// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the custodian consensus daemon's configuration.
//
// Configuration comes from a single YAML file specified by the
// CUSTODIAN_CONFIG environment variable or the --config flag. There
// are no fallbacks, automatic discovery, or environment-variable
// overrides: configuration is deterministic and auditable.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/custodian-sys/custodian/lib/identity"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "60s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the daemon's full configuration.
type Config struct {
	// Socket is the unix socket path the transport listens on.
	Socket string `yaml:"socket"`

	// AllowList admits connecting identities by uid.
	AllowList []AllowEntry `yaml:"allow_list"`

	// Consensus tunes the round state machine.
	Consensus ConsensusConfig `yaml:"consensus"`

	// RateLimit tunes per-identity admission control.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Guard configures the deny-list scanner.
	Guard GuardConfig `yaml:"guard"`

	// Archive configures where evicted rounds are written for audit.
	Archive ArchiveConfig `yaml:"archive"`
}

// AllowEntry is one allow-list entry in the configuration file.
type AllowEntry struct {
	// Node is the stable node id this uid resolves to.
	Node string `yaml:"node"`

	// Role is "control" or "peer".
	Role string `yaml:"role"`

	// UID is the kernel uid the node's process connects as.
	UID uint32 `yaml:"uid"`

	// GIDs optionally restricts the entry to these primary gids.
	GIDs []uint32 `yaml:"gids,omitempty"`
}

// ConsensusConfig tunes the round state machine.
type ConsensusConfig struct {
	// QuorumThreshold is the minimum count of non-excluded
	// observations required to finalize a round.
	QuorumThreshold int `yaml:"quorum_threshold"`

	// DeviationBound is how far a node's trust score may sit from the
	// round's running median before the node is flagged.
	DeviationBound float64 `yaml:"deviation_bound"`

	// RoundDuration is the collection deadline for each round.
	RoundDuration Duration `yaml:"round_duration"`

	// Retention is how many recent rounds are held for status queries
	// and audit; older rounds are evicted oldest-first.
	Retention int `yaml:"retention"`
}

// RateLimitConfig tunes per-identity admission control.
type RateLimitConfig struct {
	// Requests admitted per identity per rolling Window.
	Requests int `yaml:"requests"`

	// Window is the rolling span the request budget applies to.
	Window Duration `yaml:"window"`
}

// GuardConfig configures the deny-list scanner.
type GuardConfig struct {
	// PolicyFile optionally names a JSONC file of additional
	// deny-list patterns merged with the built-ins.
	PolicyFile string `yaml:"policy_file,omitempty"`
}

// ArchiveConfig configures the evicted-round archive.
type ArchiveConfig struct {
	// Dir is the directory evicted round snapshots are written to.
	// Empty disables archiving.
	Dir string `yaml:"dir,omitempty"`
}

// Default returns the base configuration. The defaults exist so every
// field has a sensible zero-value before the file is merged in; the
// config file is still required for the allow-list.
func Default() *Config {
	return &Config{
		Socket: "/run/custodian/consensus.sock",
		Consensus: ConsensusConfig{
			QuorumThreshold: 3,
			DeviationBound:  0.25,
			RoundDuration:   Duration(2 * time.Minute),
			Retention:       32,
		},
		RateLimit: RateLimitConfig{
			Requests: 120,
			Window:   Duration(time.Minute),
		},
	}
}

// Load loads configuration from the CUSTODIAN_CONFIG environment
// variable. Fails when the variable is unset.
func Load() (*Config, error) {
	path := os.Getenv("CUSTODIAN_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("CUSTODIAN_CONFIG environment variable not set; " +
			"set it to the path of your custodian.yaml, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file, merged over
// Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors. All problems are
// reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Socket == "" {
		errs = append(errs, fmt.Errorf("socket is required"))
	}
	if len(c.AllowList) == 0 {
		errs = append(errs, fmt.Errorf("allow_list must have at least one entry"))
	}
	for _, entry := range c.AllowList {
		if entry.Node == "" {
			errs = append(errs, fmt.Errorf("allow_list entry for uid %d: node is required", entry.UID))
		}
		if entry.Role != string(identity.RoleControl) && entry.Role != string(identity.RolePeer) {
			errs = append(errs, fmt.Errorf("allow_list entry %s: role must be %q or %q",
				entry.Node, identity.RoleControl, identity.RolePeer))
		}
	}
	if c.Consensus.QuorumThreshold < 1 {
		errs = append(errs, fmt.Errorf("consensus.quorum_threshold must be at least 1"))
	}
	if c.Consensus.DeviationBound <= 0 {
		errs = append(errs, fmt.Errorf("consensus.deviation_bound must be positive"))
	}
	if c.Consensus.RoundDuration.Std() <= 0 {
		errs = append(errs, fmt.Errorf("consensus.round_duration must be positive"))
	}
	if c.Consensus.Retention < 1 {
		errs = append(errs, fmt.Errorf("consensus.retention must be at least 1"))
	}
	if c.RateLimit.Requests < 1 {
		errs = append(errs, fmt.Errorf("rate_limit.requests must be at least 1"))
	}
	if c.RateLimit.Window.Std() <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// AllowListEntries converts the configured allow-list into identity
// entries.
func (c *Config) AllowListEntries() []identity.Entry {
	entries := make([]identity.Entry, 0, len(c.AllowList))
	for _, entry := range c.AllowList {
		entries = append(entries, identity.Entry{
			Node: identity.NodeID(entry.Node),
			Role: identity.Role(entry.Role),
			UID:  entry.UID,
			GIDs: entry.GIDs,
		})
	}
	return entries
}
