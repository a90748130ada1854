// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/VouchlyAI/Pincer-MCP/lib/keychain"
	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

var tokenPattern = regexp.MustCompile(`^pxr_[A-Za-z0-9_-]{21,}$`)

func TestMain(m *testing.M) {
	keyring.MockInit()
	m.Run()
}

func openTestVault(t *testing.T) *Vault {
	t.Helper()
	keyring.MockInit()

	v, err := Open(Config{
		Path:     ":memory:",
		Keychain: keychain.New(),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { v.Close() })

	if err := v.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return v
}

func TestSetGetSecretRoundtrip(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	if err := v.SetSecret(ctx, "gemini_api_key", "default", "AIza_REAL"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}

	buf, err := v.GetSecret(ctx, "gemini_api_key", "default")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	defer buf.Close()

	if buf.String() != "AIza_REAL" {
		t.Fatalf("GetSecret returned %q, want %q", buf.String(), "AIza_REAL")
	}
}

func TestSetSecretOverwrites(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	if err := v.SetSecret(ctx, "gemini_api_key", "default", "old-value"); err != nil {
		t.Fatalf("SetSecret #1: %v", err)
	}
	if err := v.SetSecret(ctx, "gemini_api_key", "default", "new-value"); err != nil {
		t.Fatalf("SetSecret #2: %v", err)
	}

	buf, err := v.GetSecret(ctx, "gemini_api_key", "default")
	if err != nil {
		t.Fatalf("GetSecret: %v", err)
	}
	defer buf.Close()

	if buf.String() != "new-value" {
		t.Fatalf("GetSecret returned %q, want %q (no older value should survive)", buf.String(), "new-value")
	}
}

func TestGetSecretMissing(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	if _, err := v.GetSecret(ctx, "nonexistent", "default"); !errors.Is(err, pincererr.ErrSecretMissing) {
		t.Fatalf("GetSecret on missing record: got %v, want ErrSecretMissing", err)
	}
}

func TestListSecretsGroupedAndSorted(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	for _, entry := range []struct{ tool, label string }{
		{"gemini_api_key", "production"},
		{"gemini_api_key", "dev"},
		{"slack_token", "default"},
	} {
		if err := v.SetSecret(ctx, entry.tool, entry.label, "x"); err != nil {
			t.Fatalf("SetSecret(%s,%s): %v", entry.tool, entry.label, err)
		}
	}

	grouped, err := v.ListSecrets(ctx)
	if err != nil {
		t.Fatalf("ListSecrets: %v", err)
	}

	wantGemini := []string{"dev", "production"}
	if len(grouped["gemini_api_key"]) != 2 || grouped["gemini_api_key"][0] != wantGemini[0] || grouped["gemini_api_key"][1] != wantGemini[1] {
		t.Fatalf("ListSecrets gemini_api_key labels = %v, want %v", grouped["gemini_api_key"], wantGemini)
	}
	if len(grouped["slack_token"]) != 1 || grouped["slack_token"][0] != "default" {
		t.Fatalf("ListSecrets slack_token labels = %v, want [default]", grouped["slack_token"])
	}
}

func TestAddAgentGeneratesValidToken(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	token, err := v.AddAgent(ctx, "bot", "")
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	if !tokenPattern.MatchString(token) {
		t.Fatalf("generated token %q does not match expected format", token)
	}

	agentID, found, err := v.GetAgentByToken(ctx, token)
	if err != nil {
		t.Fatalf("GetAgentByToken: %v", err)
	}
	if !found || agentID != "bot" {
		t.Fatalf("GetAgentByToken: got (%q, %v), want (bot, true)", agentID, found)
	}
}

func TestAddAgentDuplicateIDConflict(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	if _, err := v.AddAgent(ctx, "bot", ""); err != nil {
		t.Fatalf("first AddAgent: %v", err)
	}
	if _, err := v.AddAgent(ctx, "bot", ""); !errors.Is(err, pincererr.ErrConflict) {
		t.Fatalf("duplicate AddAgent: got %v, want ErrConflict", err)
	}
}

func TestAddAgentDuplicateTokenConflict(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	if _, err := v.AddAgent(ctx, "bot-one", "pxr_aaaaaaaaaaaaaaaaaaaaa"); err != nil {
		t.Fatalf("first AddAgent: %v", err)
	}
	if _, err := v.AddAgent(ctx, "bot-two", "pxr_aaaaaaaaaaaaaaaaaaaaa"); !errors.Is(err, pincererr.ErrConflict) {
		t.Fatalf("duplicate token AddAgent: got %v, want ErrConflict", err)
	}
}

func TestAuthorizeIsAuthorizedRevoke(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	if _, err := v.AddAgent(ctx, "bot", ""); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	if err := v.SetMapping(ctx, "bot", "gemini_generate", "production"); err != nil {
		t.Fatalf("SetMapping: %v", err)
	}

	authorized, err := v.IsAuthorized(ctx, "bot", "gemini_generate")
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if !authorized {
		t.Fatal("IsAuthorized: got false, want true after SetMapping")
	}

	label, err := v.GetMappingLabel(ctx, "bot", "gemini_generate")
	if err != nil {
		t.Fatalf("GetMappingLabel: %v", err)
	}
	if label != "production" {
		t.Fatalf("GetMappingLabel: got %q, want %q", label, "production")
	}

	if err := v.Revoke(ctx, "bot", "gemini_generate"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	authorized, err = v.IsAuthorized(ctx, "bot", "gemini_generate")
	if err != nil {
		t.Fatalf("IsAuthorized after revoke: %v", err)
	}
	if authorized {
		t.Fatal("IsAuthorized after revoke: got true, want false")
	}
}

func TestGetMappingLabelDefaultsWithoutAuthorizing(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	if _, err := v.AddAgent(ctx, "bot", ""); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}

	label, err := v.GetMappingLabel(ctx, "bot", "unmapped_tool")
	if err != nil {
		t.Fatalf("GetMappingLabel: %v", err)
	}
	if label != DefaultLabel {
		t.Fatalf("GetMappingLabel for unmapped tool: got %q, want %q", label, DefaultLabel)
	}

	authorized, err := v.IsAuthorized(ctx, "bot", "unmapped_tool")
	if err != nil {
		t.Fatalf("IsAuthorized: %v", err)
	}
	if authorized {
		t.Fatal("IsAuthorized for unmapped tool: got true, want false (GetMappingLabel must not be the gate)")
	}
}

func TestRevokeNotFound(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	if err := v.Revoke(ctx, "ghost", "gemini_generate"); !errors.Is(err, pincererr.ErrNotFound) {
		t.Fatalf("Revoke on absent mapping: got %v, want ErrNotFound", err)
	}
}

func TestRemoveAgentCascadesMappings(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	token, err := v.AddAgent(ctx, "bot", "")
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	if err := v.SetMapping(ctx, "bot", "gemini_generate", "default"); err != nil {
		t.Fatalf("SetMapping: %v", err)
	}

	if err := v.RemoveAgent(ctx, "bot"); err != nil {
		t.Fatalf("RemoveAgent: %v", err)
	}

	if _, found, err := v.GetAgentByToken(ctx, token); err != nil || found {
		t.Fatalf("GetAgentByToken after RemoveAgent: found=%v err=%v, want not found", found, err)
	}
	if authorized, err := v.IsAuthorized(ctx, "bot", "gemini_generate"); err != nil || authorized {
		t.Fatalf("IsAuthorized after RemoveAgent: got (%v, %v), want (false, nil)", authorized, err)
	}
}

func TestRemoveAgentNotFound(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	if err := v.RemoveAgent(ctx, "ghost"); !errors.Is(err, pincererr.ErrNotFound) {
		t.Fatalf("RemoveAgent on absent agent: got %v, want ErrNotFound", err)
	}
}

func TestListAgentsRoundtrip(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	token, err := v.AddAgent(ctx, "bot", "")
	if err != nil {
		t.Fatalf("AddAgent: %v", err)
	}
	if err := v.SetMapping(ctx, "bot", "gemini_generate", "default"); err != nil {
		t.Fatalf("SetMapping: %v", err)
	}

	agents, err := v.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("ListAgents returned %d agents, want 1", len(agents))
	}
	if agents[0].AgentID != "bot" || agents[0].ProxyToken != token {
		t.Fatalf("ListAgents entry = %+v, want AgentID=bot ProxyToken=%s", agents[0], token)
	}
	if len(agents[0].Authorizations) != 1 || agents[0].Authorizations[0].Tool != "gemini_generate" {
		t.Fatalf("ListAgents authorizations = %+v", agents[0].Authorizations)
	}
}

func TestClearAllKeepsMasterKey(t *testing.T) {
	ctx := context.Background()
	v := openTestVault(t)

	if err := v.SetSecret(ctx, "gemini_api_key", "default", "value"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if _, err := v.AddAgent(ctx, "bot", ""); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}

	if err := v.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	if _, err := v.GetSecret(ctx, "gemini_api_key", "default"); !errors.Is(err, pincererr.ErrSecretMissing) {
		t.Fatalf("GetSecret after ClearAll: got %v, want ErrSecretMissing", err)
	}

	// Master key must still work: SetSecret after ClearAll should
	// succeed without needing Init again.
	if err := v.SetSecret(ctx, "gemini_api_key", "default", "value-2"); err != nil {
		t.Fatalf("SetSecret after ClearAll: %v", err)
	}
}

