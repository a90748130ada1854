// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package controlplane implements the gateway's administrative
// operations (spec §4.I): a thin transactional wrapper over the Vault
// Store and the Keychain Adapter, and the sole writer of
// administrative state. It is grounded on lib/credential.Provision's
// shape (validate inputs, perform the operation, return a result) and
// cmd/bureau-credentials/main.go's subcommand dispatch, generalized
// from Matrix-homeserver credential provisioning to this project's
// vault/keychain domain.
package controlplane

import (
	"context"
	"fmt"
	"sort"

	"github.com/VouchlyAI/Pincer-MCP/lib/vault"
)

// Store is the subset of lib/vault.Vault the control plane needs.
// Declared here so tests can substitute a fake without standing up
// SQLite.
type Store interface {
	SetSecret(ctx context.Context, tool, label, plaintext string) error
	ListSecrets(ctx context.Context) (map[string][]string, error)
	AddAgent(ctx context.Context, agentID, customToken string) (string, error)
	ListAgents(ctx context.Context) ([]vault.AgentInfo, error)
	SetMapping(ctx context.Context, agentID, tool, label string) error
	Revoke(ctx context.Context, agentID, tool string) error
	RemoveAgent(ctx context.Context, agentID string) error
	ClearAll(ctx context.Context) error
	Destroy() error
	Init() error
}

// KeyStore is the subset of lib/keychain.Adapter the control plane
// needs for Reset (key deletion without touching the database).
type KeyStore interface {
	Delete() (existed bool, err error)
}

// ControlPlane is the sole writer of administrative vault state:
// master-key lifecycle, secrets, agent identities, and authorization
// mappings. Every method here is a thin transaction over Store (and,
// for Reset, KeyStore); none of the per-call pipeline's authentication
// or injection logic lives here.
type ControlPlane struct {
	store    Store
	keychain KeyStore
}

// New returns a ControlPlane over store and keychain.
func New(store Store, keychain KeyStore) *ControlPlane {
	return &ControlPlane{store: store, keychain: keychain}
}

// Init creates the master key. Fails with
// pincererr.ErrAlreadyInitialized if one already exists.
func (c *ControlPlane) Init() error {
	return c.store.Init()
}

// Reset deletes the master key only, leaving secrets, tokens, and
// mappings in place (they become undecryptable until the operator
// re-creates them — this project does not perform key rotation as a
// first-class operation per spec §1's Non-goals). Returns whether a
// key actually existed, for telemetry (spec §9 Open Question 2).
func (c *ControlPlane) Reset() (existed bool, err error) {
	return c.keychain.Delete()
}

// ClearAll truncates secrets, tokens, and mappings, leaving the master
// key untouched.
func (c *ControlPlane) ClearAll(ctx context.Context) error {
	return c.store.ClearAll(ctx)
}

// Destroy deletes the master key, the database file, and its sidecar
// files. The vault must not be used again afterward.
func (c *ControlPlane) Destroy() error {
	return c.store.Destroy()
}

// SetSecret encrypts and upserts the secret for (tool, label). Label
// defaults to vault.DefaultLabel when empty.
func (c *ControlPlane) SetSecret(ctx context.Context, tool, label, plaintext string) error {
	if tool == "" {
		return fmt.Errorf("controlplane: tool name is required")
	}
	if plaintext == "" {
		return fmt.Errorf("controlplane: secret value is required")
	}
	return c.store.SetSecret(ctx, tool, label, plaintext)
}

// SecretSummary is one row of ListSecrets' output: a tool and every
// label registered under it, sorted.
type SecretSummary struct {
	Tool   string
	Labels []string
}

// ListSecrets returns every stored (tool, label) pair, grouped by tool
// and sorted by tool then label.
func (c *ControlPlane) ListSecrets(ctx context.Context) ([]SecretSummary, error) {
	grouped, err := c.store.ListSecrets(ctx)
	if err != nil {
		return nil, err
	}

	tools := make([]string, 0, len(grouped))
	for tool := range grouped {
		tools = append(tools, tool)
	}
	sort.Strings(tools)

	summaries := make([]SecretSummary, 0, len(tools))
	for _, tool := range tools {
		summaries = append(summaries, SecretSummary{Tool: tool, Labels: grouped[tool]})
	}
	return summaries, nil
}

// AddAgent registers a new agent identity, generating a proxy token
// unless customToken is supplied. Fails with pincererr.ErrConflict if
// the agent id or token is already in use.
func (c *ControlPlane) AddAgent(ctx context.Context, agentID, customToken string) (string, error) {
	if agentID == "" {
		return "", fmt.Errorf("controlplane: agent id is required")
	}
	return c.store.AddAgent(ctx, agentID, customToken)
}

// ListAgents returns every registered agent with its token and current
// authorizations.
func (c *ControlPlane) ListAgents(ctx context.Context) ([]vault.AgentInfo, error) {
	return c.store.ListAgents(ctx)
}

// Authorize grants agentID access to tool under label (defaulting to
// vault.DefaultLabel when empty), upserting any prior grant for the
// same (agent, tool).
func (c *ControlPlane) Authorize(ctx context.Context, agentID, tool, label string) error {
	if agentID == "" || tool == "" {
		return fmt.Errorf("controlplane: agent id and tool are both required")
	}
	return c.store.SetMapping(ctx, agentID, tool, label)
}

// Revoke withdraws agentID's access to tool. Fails with
// pincererr.ErrNotFound if no such mapping exists.
func (c *ControlPlane) Revoke(ctx context.Context, agentID, tool string) error {
	return c.store.Revoke(ctx, agentID, tool)
}

// RemoveAgent deletes agentID's mappings and its token record. Fails
// with pincererr.ErrNotFound if the agent did not exist.
func (c *ControlPlane) RemoveAgent(ctx context.Context, agentID string) error {
	return c.store.RemoveAgent(ctx, agentID)
}
