// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package injector implements the gateway's just-in-time credential
// step: decrypting the real API key for a (agent, tool) pair only for
// the duration of one outbound call, attaching it to an enriched
// request, and scrubbing it immediately after. This is the scoped
// credential resource the rest of the gateway is built around — every
// Inject must be matched by exactly one Scrub, on every exit path.
package injector

import (
	"context"
	"fmt"
	"sync"

	"github.com/VouchlyAI/Pincer-MCP/lib/secret"
)

// toolToSecretName maps externally visible tool names to the internal
// vault secret name that backs them. This decouples the tool surface an
// agent sees from the vault's key identifiers — renaming a tool, or
// giving two tools the same underlying secret, never touches the vault
// schema. Tool names absent from this map use the tool name itself as
// the secret name.
var toolToSecretName = map[string]string{
	"gemini_generate":    "gemini_api_key",
	"slack_send_message": "slack_bot_token",
	"gpg_sign":           "gpg_signing_key",
}

// SecretName returns the vault secret name backing tool. Unknown tools
// map to themselves.
func SecretName(tool string) string {
	if name, ok := toolToSecretName[tool]; ok {
		return name
	}
	return tool
}

// SecretReader is the subset of the Vault Store the injector needs.
type SecretReader interface {
	GetSecret(ctx context.Context, tool, label string) (*secret.Buffer, error)
	GetMappingLabel(ctx context.Context, agentID, tool string) (string, error)
}

// Credentials is the plaintext material attached to an EnrichedRequest.
// ApiKey is backed by a mmap-locked secret.Buffer for as long as the
// request is outstanding.
type Credentials struct {
	AgentID string
	apiKey  *secret.Buffer
}

// ApiKey returns the plaintext API key. Panics if called after Scrub.
func (c *Credentials) ApiKey() string {
	return c.apiKey.String()
}

// EnrichedRequest is the original tool-call arguments plus the
// credentials block the orchestrator attaches just before dispatch.
// Owned exclusively by whichever orchestrator call created it for the
// duration of one outbound call; Scrub must be called on every exit
// path before the value is released.
type EnrichedRequest struct {
	Tool        string
	Arguments   map[string]any
	Credentials Credentials

	scrubbed bool
}

// Injector fetches plaintext secrets just-in-time and tracks every
// EnrichedRequest it has handed out that has not yet been scrubbed. The
// tracking set is an aid to reasoning about outstanding secret-bearing
// values, not a correctness guarantee — nothing reads it except tests
// and diagnostics.
type Injector struct {
	vault SecretReader

	mu         sync.Mutex
	outstanding map[*EnrichedRequest]struct{}
}

// New returns an Injector backed by vault.
func New(vault SecretReader) *Injector {
	return &Injector{
		vault:       vault,
		outstanding: make(map[*EnrichedRequest]struct{}),
	}
}

// Inject decrypts the secret backing tool for agentID's authorized
// label and returns an EnrichedRequest carrying the original arguments
// plus a credentials block with the plaintext key. The caller must call
// Scrub on the returned value exactly once, on every exit path
// including error and cancellation.
func (i *Injector) Inject(ctx context.Context, agentID, tool string, arguments map[string]any) (*EnrichedRequest, error) {
	label, err := i.vault.GetMappingLabel(ctx, agentID, tool)
	if err != nil {
		return nil, fmt.Errorf("injector: resolving label: %w", err)
	}

	secretName := SecretName(tool)
	buffer, err := i.vault.GetSecret(ctx, secretName, label)
	if err != nil {
		return nil, err
	}

	enriched := &EnrichedRequest{
		Tool:      tool,
		Arguments: arguments,
		Credentials: Credentials{
			AgentID: agentID,
			apiKey:  buffer,
		},
	}

	i.mu.Lock()
	i.outstanding[enriched] = struct{}{}
	i.mu.Unlock()

	return enriched, nil
}

// Scrub overwrites the credential's api key and releases it. Idempotent:
// calling Scrub more than once on the same EnrichedRequest is a no-op
// after the first call. Must be invoked on every exit path of the
// orchestrator, including error paths.
func (i *Injector) Scrub(enriched *EnrichedRequest) {
	if enriched == nil || enriched.scrubbed {
		return
	}
	enriched.scrubbed = true

	if enriched.Credentials.apiKey != nil {
		// ScrubPattern overwrites with a recognizable non-secret byte
		// before Close's own zeroing — a zeroed field reads as "absent"
		// in some log viewers, while 0xa5 is unmistakably a tombstone.
		secret.ScrubPattern(enriched.Credentials.apiKey.Bytes())
		enriched.Credentials.apiKey.Close()
		enriched.Credentials.apiKey = nil
	}

	i.mu.Lock()
	delete(i.outstanding, enriched)
	i.mu.Unlock()
}

// Outstanding returns the number of enriched requests that have been
// injected but not yet scrubbed. Diagnostic only.
func (i *Injector) Outstanding() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.outstanding)
}

// Close scrubs every outstanding enriched request. Called during
// orchestrator shutdown so an in-flight call that never reached its own
// Scrub does not leak a decrypted secret past process shutdown.
func (i *Injector) Close() {
	i.mu.Lock()
	pending := make([]*EnrichedRequest, 0, len(i.outstanding))
	for enriched := range i.outstanding {
		pending = append(pending, enriched)
	}
	i.mu.Unlock()

	for _, enriched := range pending {
		i.Scrub(enriched)
	}
}
