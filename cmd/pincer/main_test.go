// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"strings"
	"testing"
)

func TestVaultPathUsesEnvOverride(t *testing.T) {
	t.Setenv("VAULT_DB_PATH", "/custom/path/vault.db")
	if got := vaultPath(); got != "/custom/path/vault.db" {
		t.Errorf("vaultPath() = %q, want /custom/path/vault.db", got)
	}
}

func TestVaultPathDefaultsUnderHome(t *testing.T) {
	os.Unsetenv("VAULT_DB_PATH")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available in this environment")
	}
	got := vaultPath()
	if !strings.HasPrefix(got, home) || !strings.HasSuffix(got, ".pincer/vault.db") {
		t.Errorf("vaultPath() = %q, want a path under %q ending in .pincer/vault.db", got, home)
	}
}
