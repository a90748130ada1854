// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

// schema creates the vault's three tables idempotently. Run once per
// connection via sqlitepool.Config.OnConnect.
const schema = `
CREATE TABLE IF NOT EXISTS secrets (
	tool_name  TEXT NOT NULL,
	key_label  TEXT NOT NULL,
	ciphertext BLOB NOT NULL,
	nonce      BLOB NOT NULL,
	auth_tag   BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (tool_name, key_label)
);

CREATE TABLE IF NOT EXISTS proxy_tokens (
	agent_id    TEXT PRIMARY KEY,
	proxy_token TEXT NOT NULL UNIQUE,
	created_at  INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_proxy_tokens_token ON proxy_tokens(proxy_token);

CREATE TABLE IF NOT EXISTS agent_mappings (
	agent_id  TEXT NOT NULL REFERENCES proxy_tokens(agent_id) ON DELETE CASCADE,
	tool_name TEXT NOT NULL,
	key_label TEXT NOT NULL,
	PRIMARY KEY (agent_id, tool_name)
);

CREATE INDEX IF NOT EXISTS idx_agent_mappings_agent_tool ON agent_mappings(agent_id, tool_name);
`
