// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package injector

import (
	"context"
	"testing"

	"github.com/VouchlyAI/Pincer-MCP/lib/secret"
)

type fakeVault struct {
	secrets map[string]string
	labels  map[string]string
}

func newFakeVault() *fakeVault {
	return &fakeVault{secrets: make(map[string]string), labels: make(map[string]string)}
}

func (f *fakeVault) setSecret(tool, label, plaintext string) {
	f.secrets[tool+"/"+label] = plaintext
}

func (f *fakeVault) setMapping(agentID, tool, label string) {
	f.labels[agentID+"/"+tool] = label
}

func (f *fakeVault) GetSecret(ctx context.Context, tool, label string) (*secret.Buffer, error) {
	plaintext, ok := f.secrets[tool+"/"+label]
	if !ok {
		return nil, errSecretMissing
	}
	return secret.NewFromBytes([]byte(plaintext))
}

func (f *fakeVault) GetMappingLabel(ctx context.Context, agentID, tool string) (string, error) {
	if label, ok := f.labels[agentID+"/"+tool]; ok {
		return label, nil
	}
	return "default", nil
}

type testError string

func (e testError) Error() string { return string(e) }

const errSecretMissing = testError("secret missing")

func TestInjectScrubRoundTrip(t *testing.T) {
	vault := newFakeVault()
	vault.setSecret("gemini_api_key", "default", "AIza_REAL")
	vault.setMapping("bot", "gemini_generate", "default")

	inj := New(vault)

	enriched, err := inj.Inject(context.Background(), "bot", "gemini_generate", map[string]any{"prompt": "hi"})
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if enriched.Credentials.ApiKey() != "AIza_REAL" {
		t.Fatalf("ApiKey = %q, want AIza_REAL", enriched.Credentials.ApiKey())
	}
	if inj.Outstanding() != 1 {
		t.Fatalf("Outstanding = %d, want 1", inj.Outstanding())
	}

	inj.Scrub(enriched)

	if inj.Outstanding() != 0 {
		t.Fatalf("Outstanding after Scrub = %d, want 0", inj.Outstanding())
	}
	if enriched.Credentials.apiKey != nil {
		t.Fatalf("Credentials.apiKey not cleared after Scrub")
	}

	// Scrub must be idempotent.
	inj.Scrub(enriched)
}

func TestFailedInjectLeavesNothingOutstanding(t *testing.T) {
	vault := newFakeVault()
	inj := New(vault)

	_, err := inj.Inject(context.Background(), "bot", "unknown_tool", nil)
	if err == nil {
		t.Fatal("Inject with missing secret: want error")
	}
	if inj.Outstanding() != 0 {
		t.Fatalf("Outstanding after failed Inject = %d, want 0", inj.Outstanding())
	}
}

func TestCloseScrubsOutstanding(t *testing.T) {
	vault := newFakeVault()
	vault.setSecret("gemini_api_key", "default", "AIza_REAL")

	inj := New(vault)
	enriched, err := inj.Inject(context.Background(), "bot", "gemini_generate", nil)
	if err != nil {
		t.Fatalf("Inject: %v", err)
	}

	inj.Close()

	if inj.Outstanding() != 0 {
		t.Fatalf("Outstanding after Close = %d, want 0", inj.Outstanding())
	}
	if enriched.Credentials.apiKey != nil {
		t.Fatalf("Close did not scrub outstanding request")
	}
}
