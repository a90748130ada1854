// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault implements the persistent side of the credential
// lifecycle: encrypted secret records, proxy-token identities, and
// agent-tool authorization mappings, all backed by a single local
// SQLite file (lib/sqlitepool over zombiezen.com/go/sqlite). The vault
// also owns the in-process cache of the decrypted master key, fetched
// once from the keychain and zeroed on Close.
package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/VouchlyAI/Pincer-MCP/lib/cipher"
	"github.com/VouchlyAI/Pincer-MCP/lib/clock"
	"github.com/VouchlyAI/Pincer-MCP/lib/keychain"
	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
	"github.com/VouchlyAI/Pincer-MCP/lib/secret"
	"github.com/VouchlyAI/Pincer-MCP/lib/sqlitepool"
)

// DefaultLabel is the key_label used when a caller does not specify
// one, both for secret records and agent-tool mappings.
const DefaultLabel = "default"

// tokenPrefix is the literal prefix every proxy token carries.
const tokenPrefix = "pxr_"

// generatedTokenChars is the number of URL-safe characters generated
// after tokenPrefix for a default (non-custom) token.
const generatedTokenChars = 21

// Mapping describes one tool a given agent is authorized to use, and
// the secret label that authorization resolves to.
type Mapping struct {
	Tool  string
	Label string
}

// AgentInfo is the full view of a registered agent: its identity, its
// proxy token, and every tool it is currently authorized for.
type AgentInfo struct {
	AgentID        string
	ProxyToken     string
	Authorizations []Mapping
}

// Config holds the parameters for opening a Vault.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	Path string

	// Keychain is the OS credential store adapter used to read,
	// write, and delete the master key. Required.
	Keychain *keychain.Adapter

	// Clock provides timestamps for created_at columns. Defaults to
	// the real wall clock if nil.
	Clock clock.Clock

	// Logger receives operational messages. Defaults to a no-op
	// logger if nil.
	Logger *slog.Logger
}

// Vault is the single owner of the SQLite connection pool and the
// cached master key. It is safe for concurrent use; SQLite serializes
// writes internally via the busy_timeout pragma, and the master-key
// cache is guarded by a mutex.
type Vault struct {
	pool     *sqlitepool.Pool
	path     string
	keychain *keychain.Adapter
	clock    clock.Clock
	logger   *slog.Logger

	keyMu     sync.Mutex
	masterKey *secret.Buffer
}

// Open opens (creating if absent) the vault database at cfg.Path and
// applies the schema idempotently. It does not require the master key
// to already exist — operations that need it (SetSecret, GetSecret)
// fetch and cache it lazily on first use.
func Open(cfg Config) (*Vault, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("vault: Path is required")
	}
	if cfg.Keychain == nil {
		return nil, fmt.Errorf("vault: Keychain is required")
	}

	clockImpl := cfg.Clock
	if clockImpl == nil {
		clockImpl = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: 1,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	return &Vault{
		pool:     pool,
		path:     cfg.Path,
		keychain: cfg.Keychain,
		clock:    clockImpl,
		logger:   logger,
	}, nil
}

// Init generates a new random 32-byte master key and writes it to the
// keychain. Fails with pincererr.ErrAlreadyInitialized if one already
// exists.
func (v *Vault) Init() error {
	key := make([]byte, cipher.KeySize)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("vault: generating master key: %w", err)
	}
	defer secret.Zero(key)

	if err := v.keychain.Write(key); err != nil {
		return err
	}
	return nil
}

// masterKeyBuffer returns the cached master-key buffer, fetching and
// caching it from the keychain on first use. The returned buffer is
// owned by the Vault; callers must not Close it.
func (v *Vault) masterKeyBuffer() (*secret.Buffer, error) {
	v.keyMu.Lock()
	defer v.keyMu.Unlock()

	if v.masterKey != nil {
		return v.masterKey, nil
	}

	key, err := v.keychain.Read()
	if err != nil {
		return nil, err
	}
	defer secret.Zero(key)

	buffer, err := secret.NewFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("vault: caching master key: %w", err)
	}
	v.masterKey = buffer
	return buffer, nil
}

func (v *Vault) take(ctx context.Context) (*sqlite.Conn, error) {
	return v.pool.Take(ctx)
}

// SetSecret encrypts plaintext under the master key and upserts it as
// the record for (tool, label). Writing the same (tool, label) again
// replaces the prior ciphertext atomically.
func (v *Vault) SetSecret(ctx context.Context, tool, label, plaintext string) error {
	if label == "" {
		label = DefaultLabel
	}

	keyBuffer, err := v.masterKeyBuffer()
	if err != nil {
		return err
	}

	sealed, err := cipher.Encrypt(keyBuffer.Bytes(), []byte(plaintext))
	if err != nil {
		return fmt.Errorf("vault: encrypting secret: %w", err)
	}

	conn, err := v.take(ctx)
	if err != nil {
		return fmt.Errorf("vault: set_secret: %w", err)
	}
	defer v.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO secrets (tool_name, key_label, ciphertext, nonce, auth_tag, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tool_name, key_label) DO UPDATE SET
		   ciphertext = excluded.ciphertext,
		   nonce = excluded.nonce,
		   auth_tag = excluded.auth_tag,
		   created_at = excluded.created_at`,
		&sqlitex.ExecOptions{
			Args: []any{tool, label, sealed.Ciphertext, sealed.Nonce, sealed.Tag, v.clock.Now().Unix()},
		},
	)
	if err != nil {
		return fmt.Errorf("vault: set_secret: %w", err)
	}
	return nil
}

// GetSecret decrypts and returns the plaintext for (tool, label). The
// plaintext is returned in a locked, scrub-on-close secret.Buffer; the
// caller owns it and must Close it.
func (v *Vault) GetSecret(ctx context.Context, tool, label string) (*secret.Buffer, error) {
	if label == "" {
		label = DefaultLabel
	}

	conn, err := v.take(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: get_secret: %w", err)
	}
	defer v.pool.Put(conn)

	var sealed cipher.Sealed
	found := false

	err = sqlitex.Execute(conn,
		`SELECT ciphertext, nonce, auth_tag FROM secrets WHERE tool_name = ? AND key_label = ?`,
		&sqlitex.ExecOptions{
			Args: []any{tool, label},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				sealed.Ciphertext = columnBlob(stmt, 0)
				sealed.Nonce = columnBlob(stmt, 1)
				sealed.Tag = columnBlob(stmt, 2)
				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("vault: get_secret: %w", err)
	}
	if !found {
		return nil, pincererr.ErrSecretMissing
	}

	keyBuffer, err := v.masterKeyBuffer()
	if err != nil {
		return nil, err
	}

	plaintext, err := cipher.Decrypt(keyBuffer.Bytes(), sealed)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(plaintext)

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		return nil, fmt.Errorf("vault: buffering decrypted secret: %w", err)
	}
	return buffer, nil
}

// columnBlob copies a BLOB column into a freshly allocated slice.
// sqlite's ColumnBytes requires a pre-sized destination.
func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	data := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, data)
	return data
}

// ListSecrets returns every stored (tool, label) pair, grouped by tool
// and sorted by tool then label.
func (v *Vault) ListSecrets(ctx context.Context) (map[string][]string, error) {
	conn, err := v.take(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: list_secrets: %w", err)
	}
	defer v.pool.Put(conn)

	grouped := make(map[string][]string)
	err = sqlitex.Execute(conn,
		`SELECT tool_name, key_label FROM secrets ORDER BY tool_name, key_label`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tool := stmt.ColumnText(0)
				label := stmt.ColumnText(1)
				grouped[tool] = append(grouped[tool], label)
				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("vault: list_secrets: %w", err)
	}
	return grouped, nil
}

// generateToken returns a new proxy token of the form
// pxr_<21 URL-safe chars>.
func generateToken() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("vault: generating token entropy: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(raw)
	return tokenPrefix + encoded[:generatedTokenChars], nil
}

// AddAgent registers a new agent identity. If customToken is empty, a
// token is generated. Fails with pincererr.ErrConflict if agentID or
// the resulting token is already in use.
func (v *Vault) AddAgent(ctx context.Context, agentID, customToken string) (string, error) {
	token := customToken
	if token == "" {
		generated, err := generateToken()
		if err != nil {
			return "", err
		}
		token = generated
	}

	conn, err := v.take(ctx)
	if err != nil {
		return "", fmt.Errorf("vault: add_agent: %w", err)
	}
	defer v.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO proxy_tokens (agent_id, proxy_token, created_at) VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{agentID, token, v.clock.Now().Unix()}},
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return "", pincererr.ErrConflict
		}
		return "", fmt.Errorf("vault: add_agent: %w", err)
	}
	return token, nil
}

// GetAgentByToken resolves a proxy token to its owning agent id.
// Returns found=false if the token does not resolve.
func (v *Vault) GetAgentByToken(ctx context.Context, token string) (agentID string, found bool, err error) {
	conn, err := v.take(ctx)
	if err != nil {
		return "", false, fmt.Errorf("vault: get_agent_by_token: %w", err)
	}
	defer v.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`SELECT agent_id FROM proxy_tokens WHERE proxy_token = ?`,
		&sqlitex.ExecOptions{
			Args: []any{token},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				agentID = stmt.ColumnText(0)
				found = true
				return nil
			},
		},
	)
	if err != nil {
		return "", false, fmt.Errorf("vault: get_agent_by_token: %w", err)
	}
	return agentID, found, nil
}

// SetMapping grants agentID access to tool under label, upserting any
// prior grant for the same (agent, tool).
func (v *Vault) SetMapping(ctx context.Context, agentID, tool, label string) error {
	if label == "" {
		label = DefaultLabel
	}

	conn, err := v.take(ctx)
	if err != nil {
		return fmt.Errorf("vault: set_mapping: %w", err)
	}
	defer v.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO agent_mappings (agent_id, tool_name, key_label) VALUES (?, ?, ?)
		 ON CONFLICT(agent_id, tool_name) DO UPDATE SET key_label = excluded.key_label`,
		&sqlitex.ExecOptions{Args: []any{agentID, tool, label}},
	)
	if err != nil {
		return fmt.Errorf("vault: set_mapping: %w", err)
	}
	return nil
}

// IsAuthorized reports whether agentID has any mapping for tool. This
// is the sole authorization gate; GetMappingLabel must not be used for
// that purpose.
func (v *Vault) IsAuthorized(ctx context.Context, agentID, tool string) (bool, error) {
	conn, err := v.take(ctx)
	if err != nil {
		return false, fmt.Errorf("vault: is_authorized: %w", err)
	}
	defer v.pool.Put(conn)

	authorized := false
	err = sqlitex.Execute(conn,
		`SELECT 1 FROM agent_mappings WHERE agent_id = ? AND tool_name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{agentID, tool},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				authorized = true
				return nil
			},
		},
	)
	if err != nil {
		return false, fmt.Errorf("vault: is_authorized: %w", err)
	}
	return authorized, nil
}

// GetMappingLabel returns the secret label agentID is entitled to use
// for tool, defaulting to DefaultLabel if no mapping row exists. This
// method does not check authorization — callers must call IsAuthorized
// separately.
func (v *Vault) GetMappingLabel(ctx context.Context, agentID, tool string) (string, error) {
	conn, err := v.take(ctx)
	if err != nil {
		return "", fmt.Errorf("vault: get_mapping_label: %w", err)
	}
	defer v.pool.Put(conn)

	label := DefaultLabel
	err = sqlitex.Execute(conn,
		`SELECT key_label FROM agent_mappings WHERE agent_id = ? AND tool_name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{agentID, tool},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				label = stmt.ColumnText(0)
				return nil
			},
		},
	)
	if err != nil {
		return "", fmt.Errorf("vault: get_mapping_label: %w", err)
	}
	return label, nil
}

// ListAgents returns every registered agent with its token and current
// authorizations.
func (v *Vault) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	conn, err := v.take(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: list_agents: %w", err)
	}
	defer v.pool.Put(conn)

	byID := make(map[string]*AgentInfo)
	var order []string

	err = sqlitex.Execute(conn,
		`SELECT agent_id, proxy_token FROM proxy_tokens ORDER BY agent_id`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				agentID := stmt.ColumnText(0)
				info := &AgentInfo{AgentID: agentID, ProxyToken: stmt.ColumnText(1)}
				byID[agentID] = info
				order = append(order, agentID)
				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("vault: list_agents: %w", err)
	}

	err = sqlitex.Execute(conn,
		`SELECT agent_id, tool_name, key_label FROM agent_mappings ORDER BY agent_id, tool_name`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				agentID := stmt.ColumnText(0)
				info, ok := byID[agentID]
				if !ok {
					return nil
				}
				info.Authorizations = append(info.Authorizations, Mapping{
					Tool:  stmt.ColumnText(1),
					Label: stmt.ColumnText(2),
				})
				return nil
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("vault: list_agents: %w", err)
	}

	agents := make([]AgentInfo, 0, len(order))
	for _, agentID := range order {
		agents = append(agents, *byID[agentID])
	}
	return agents, nil
}

// Revoke deletes the mapping granting agentID access to tool. Fails
// with pincererr.ErrNotFound if no such mapping exists.
func (v *Vault) Revoke(ctx context.Context, agentID, tool string) error {
	conn, err := v.take(ctx)
	if err != nil {
		return fmt.Errorf("vault: revoke: %w", err)
	}
	defer v.pool.Put(conn)

	if err := sqlitex.Execute(conn,
		`DELETE FROM agent_mappings WHERE agent_id = ? AND tool_name = ?`,
		&sqlitex.ExecOptions{Args: []any{agentID, tool}},
	); err != nil {
		return fmt.Errorf("vault: revoke: %w", err)
	}
	if conn.Changes() == 0 {
		return pincererr.ErrNotFound
	}
	return nil
}

// RemoveAgent deletes every mapping for agentID and then its token
// record, inside one transaction. Fails with pincererr.ErrNotFound if
// the agent did not exist.
func (v *Vault) RemoveAgent(ctx context.Context, agentID string) (err error) {
	conn, err := v.take(ctx)
	if err != nil {
		return fmt.Errorf("vault: remove_agent: %w", err)
	}
	defer v.pool.Put(conn)

	endTx, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("vault: remove_agent: begin transaction: %w", err)
	}
	defer endTx(&err)

	if err = sqlitex.Execute(conn,
		`DELETE FROM agent_mappings WHERE agent_id = ?`,
		&sqlitex.ExecOptions{Args: []any{agentID}},
	); err != nil {
		return fmt.Errorf("vault: remove_agent: deleting mappings: %w", err)
	}

	if err = sqlitex.Execute(conn,
		`DELETE FROM proxy_tokens WHERE agent_id = ?`,
		&sqlitex.ExecOptions{Args: []any{agentID}},
	); err != nil {
		return fmt.Errorf("vault: remove_agent: deleting token: %w", err)
	}
	if conn.Changes() == 0 {
		err = pincererr.ErrNotFound
		return err
	}
	return nil
}

// ClearAll truncates secrets, tokens, and mappings, leaving the master
// key untouched.
func (v *Vault) ClearAll(ctx context.Context) (err error) {
	conn, err := v.take(ctx)
	if err != nil {
		return fmt.Errorf("vault: clear_all: %w", err)
	}
	defer v.pool.Put(conn)

	endTx, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("vault: clear_all: begin transaction: %w", err)
	}
	defer endTx(&err)

	for _, table := range []string{"agent_mappings", "proxy_tokens", "secrets"} {
		if err = sqlitex.ExecuteTransient(conn, "DELETE FROM "+table, nil); err != nil {
			return fmt.Errorf("vault: clear_all: %s: %w", table, err)
		}
	}
	return nil
}

// Destroy closes the vault, deletes the master key from the keychain,
// and removes the database file and its WAL/SHM sidecar files. After
// Destroy the Vault must not be used again.
func (v *Vault) Destroy() error {
	if err := v.Close(); err != nil {
		return err
	}
	existed, err := v.keychain.Delete()
	if err != nil {
		return err
	}
	v.logger.Info("vault: master key deleted", "existed", existed)
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(v.path + suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("vault: destroy: removing %s%s: %w", v.path, suffix, err)
		}
	}
	return nil
}

// Close closes the database handle and zeroes the cached master-key
// buffer. Must be called on every shutdown path.
func (v *Vault) Close() error {
	v.keyMu.Lock()
	if v.masterKey != nil {
		v.masterKey.Close()
		v.masterKey = nil
	}
	v.keyMu.Unlock()

	return v.pool.Close()
}

// isUniqueConstraintError reports whether err is SQLite's unique
// constraint violation, surfaced as a Conflict rather than a generic
// I/O failure. SQLite's own error text always names the violated
// constraint type, so a substring check is reliable across driver
// versions without depending on a specific wrapped error type.
func isUniqueConstraintError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
