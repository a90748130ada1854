// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controlplane

import (
	"context"
	"errors"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/VouchlyAI/Pincer-MCP/lib/keychain"
	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
	"github.com/VouchlyAI/Pincer-MCP/lib/vault"
)

func TestMain(m *testing.M) {
	keyring.MockInit()
	m.Run()
}

func openTestControlPlane(t *testing.T) (*ControlPlane, *vault.Vault) {
	t.Helper()
	keyring.MockInit()

	keychainAdapter := keychain.New()
	v, err := vault.Open(vault.Config{
		Path:     ":memory:",
		Keychain: keychainAdapter,
	})
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	t.Cleanup(func() { v.Close() })

	if err := v.Init(); err != nil {
		t.Fatalf("vault.Init: %v", err)
	}

	return New(v, keychainAdapter), v
}

func TestSetSecretAndListSecrets(t *testing.T) {
	cp, _ := openTestControlPlane(t)
	ctx := context.Background()

	if err := cp.SetSecret(ctx, "gemini_generate", "", "AIza_REAL"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if err := cp.SetSecret(ctx, "gemini_generate", "staging", "AIza_STAGING"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if err := cp.SetSecret(ctx, "slack_send_message", "", "xoxb-REAL"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}

	summaries, err := cp.ListSecrets(ctx)
	if err != nil {
		t.Fatalf("ListSecrets: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("ListSecrets = %+v, want 2 tools", summaries)
	}
	if summaries[0].Tool != "gemini_generate" || len(summaries[0].Labels) != 2 {
		t.Fatalf("summaries[0] = %+v, want gemini_generate with 2 labels", summaries[0])
	}
	if summaries[1].Tool != "slack_send_message" || len(summaries[1].Labels) != 1 {
		t.Fatalf("summaries[1] = %+v, want slack_send_message with 1 label", summaries[1])
	}
}

func TestSetSecretRejectsEmptyFields(t *testing.T) {
	cp, _ := openTestControlPlane(t)
	ctx := context.Background()

	if err := cp.SetSecret(ctx, "", "default", "value"); err == nil {
		t.Fatal("SetSecret: want error for empty tool")
	}
	if err := cp.SetSecret(ctx, "gemini_generate", "default", ""); err == nil {
		t.Fatal("SetSecret: want error for empty value")
	}
}

func TestAgentLifecycle(t *testing.T) {
	cp, _ := openTestControlPlane(t)
	ctx := context.Background()

	token, err := cp.AddAgent(ctx, "agent-1", "")
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	if token == "" {
		t.Fatal("AddAgent: want generated token")
	}

	if err := cp.SetSecret(ctx, "gemini_generate", "", "AIza_REAL"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if err := cp.Authorize(ctx, "agent-1", "gemini_generate", ""); err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	agents, err := cp.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 1 || agents[0].AgentID != "agent-1" || len(agents[0].Authorizations) != 1 {
		t.Fatalf("ListAgents = %+v, want one authorized agent-1", agents)
	}

	if err := cp.Revoke(ctx, "agent-1", "gemini_generate"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	agents, err = cp.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents[0].Authorizations) != 0 {
		t.Fatalf("ListAgents after revoke = %+v, want no authorizations", agents)
	}

	if err := cp.RemoveAgent(ctx, "agent-1"); err != nil {
		t.Fatalf("RemoveAgent: %v", err)
	}
	agents, err = cp.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 0 {
		t.Fatalf("ListAgents after remove = %+v, want none", agents)
	}
}

func TestRemoveAgentNotFound(t *testing.T) {
	cp, _ := openTestControlPlane(t)
	ctx := context.Background()

	err := cp.RemoveAgent(ctx, "ghost")
	if !errors.Is(err, pincererr.ErrNotFound) {
		t.Fatalf("RemoveAgent: got %v, want ErrNotFound", err)
	}
}

func TestAddAgentRejectsEmptyID(t *testing.T) {
	cp, _ := openTestControlPlane(t)
	if _, err := cp.AddAgent(context.Background(), "", ""); err == nil {
		t.Fatal("AddAgent: want error for empty agent id")
	}
}

func TestInitTwiceFails(t *testing.T) {
	cp, _ := openTestControlPlane(t)
	if err := cp.Init(); !errors.Is(err, pincererr.ErrAlreadyInitialized) {
		t.Fatalf("Init: got %v, want ErrAlreadyInitialized", err)
	}
}

func TestResetDeletesMasterKeyOnly(t *testing.T) {
	cp, v := openTestControlPlane(t)
	ctx := context.Background()

	if err := cp.SetSecret(ctx, "gemini_generate", "", "AIza_REAL"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}

	existed, err := cp.Reset()
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !existed {
		t.Fatal("Reset: want existed=true for a key that was present")
	}

	// The secret row survives Reset even though it can no longer be
	// decrypted.
	summaries, err := cp.ListSecrets(ctx)
	if err != nil {
		t.Fatalf("ListSecrets: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("ListSecrets after Reset = %+v, want secret row retained", summaries)
	}

	_, err = v.GetSecret(ctx, "gemini_generate", "")
	if err == nil {
		t.Fatal("GetSecret after Reset: want error, master key is gone")
	}
}

func TestResetReportsAbsentKey(t *testing.T) {
	cp, _ := openTestControlPlane(t)

	if _, err := cp.Reset(); err != nil {
		t.Fatalf("first Reset: %v", err)
	}

	existed, err := cp.Reset()
	if err != nil {
		t.Fatalf("second Reset: %v", err)
	}
	if existed {
		t.Fatal("second Reset: want existed=false, key was already deleted")
	}
}

func TestClearAllLeavesMasterKeyIntact(t *testing.T) {
	cp, _ := openTestControlPlane(t)
	ctx := context.Background()

	if err := cp.SetSecret(ctx, "gemini_generate", "", "AIza_REAL"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if _, err := cp.AddAgent(ctx, "agent-1", ""); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}

	if err := cp.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	summaries, err := cp.ListSecrets(ctx)
	if err != nil {
		t.Fatalf("ListSecrets: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("ListSecrets after ClearAll = %+v, want none", summaries)
	}
	agents, err := cp.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 0 {
		t.Fatalf("ListAgents after ClearAll = %+v, want none", agents)
	}

	// Init must still refuse: ClearAll does not touch the master key.
	if err := cp.Init(); !errors.Is(err, pincererr.ErrAlreadyInitialized) {
		t.Fatalf("Init after ClearAll: got %v, want ErrAlreadyInitialized", err)
	}
}
