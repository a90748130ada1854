// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gwconfig loads the gateway's YAML configuration file: the
// listen sockets, the vault and audit log paths, and the table of
// registered tools with their upstream adapter bindings and per-tool
// retry overrides. It is grounded on proxy.Config/LoadConfig/Validate,
// trimmed to this project's adapter-registry shape in place of the
// teacher's CLI/HTTP service map.
package gwconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultSocketPath matches the teacher's own default pattern
// (/run/bureau/proxy.sock), adapted to this project's name.
const defaultSocketPath = "/run/pincer/gateway.sock"

// defaultMaxRetries is lib/caller.BaseCaller's own default, repeated
// here so a tool entry with no explicit override still resolves to a
// documented value instead of Go's zero value (which would disable
// retries entirely).
const defaultMaxRetries = 3

// Config is the top-level gateway configuration.
type Config struct {
	// SocketPath is the Unix socket the gateway listens on for MCP
	// requests. Defaults to /run/pincer/gateway.sock.
	SocketPath string `yaml:"socket_path"`

	// ListenAddress is an optional TCP address (e.g. "127.0.0.1:8787").
	// If set, the gateway listens on both the Unix socket and TCP,
	// mirroring proxy.Config.ListenAddress.
	ListenAddress string `yaml:"listen_address"`

	// VaultPath is the filesystem path to the vault's SQLite database.
	VaultPath string `yaml:"vault_path"`

	// AuditPath is the filesystem path to the hash-chained audit log.
	AuditPath string `yaml:"audit_path"`

	// Tools maps a tool name (e.g. "gemini_generate") to its adapter
	// binding.
	Tools map[string]ToolConfig `yaml:"tools"`
}

// ToolConfig binds one registered tool to an adapter and its retry
// policy.
type ToolConfig struct {
	// Adapter names the caller implementation: "gemini", "slack", or
	// "gpg". Unlike the teacher's "cli"/"http" service types, each
	// adapter here is a concrete Go type already grounded to one
	// upstream, not a generic shape the config fills in.
	Adapter string `yaml:"adapter"`

	// Description is the human-readable text the discovery endpoint
	// advertises for this tool.
	Description string `yaml:"description"`

	// Endpoint overrides the adapter's default upstream URL. Ignored by
	// adapters, such as gpg, that have no upstream URL.
	Endpoint string `yaml:"endpoint"`

	// MaxRetries overrides lib/caller.BaseCaller's default retry count
	// for this tool. Zero means "use the adapter's default" rather than
	// "never retry" (see gpg.MaxRetries for why the gpg adapter
	// registers a retry count of 1 explicitly, at call-site level, not
	// through this field).
	MaxRetries int `yaml:"max_retries"`
}

// RetriesOrDefault returns t.MaxRetries, or defaultMaxRetries if it was
// left unset in the config file.
func (t ToolConfig) RetriesOrDefault() int {
	if t.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return t.MaxRetries
}

// Load reads and parses the YAML configuration file at path, applying
// defaults for any unset field that has one.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gwconfig: reading %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("gwconfig: parsing %s: %w", path, err)
	}

	if config.SocketPath == "" {
		config.SocketPath = defaultSocketPath
	}

	return &config, nil
}

// Validate checks that the configuration describes a runnable gateway:
// a vault path and audit path are present, and every registered tool
// names a known adapter.
func (c *Config) Validate() error {
	if c.VaultPath == "" {
		return fmt.Errorf("gwconfig: vault_path is required")
	}
	if c.AuditPath == "" {
		return fmt.Errorf("gwconfig: audit_path is required")
	}
	if c.SocketPath == "" {
		return fmt.Errorf("gwconfig: socket_path is required")
	}

	for name, tool := range c.Tools {
		switch tool.Adapter {
		case "gemini", "slack", "gpg":
		case "":
			return fmt.Errorf("gwconfig: tool %q: adapter is required", name)
		default:
			return fmt.Errorf("gwconfig: tool %q: unknown adapter %q (supported: gemini, slack, gpg)", name, tool.Adapter)
		}
		if tool.MaxRetries < 0 {
			return fmt.Errorf("gwconfig: tool %q: max_retries cannot be negative", name)
		}
	}

	return nil
}
