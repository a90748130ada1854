// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit implements the gateway's tamper-evident log: one JSON
// object per line, each entry's hash incorporating the previous
// entry's hash, so any in-place modification of an older entry breaks
// the chain at that entry (or, if its chainHash was rewritten to match,
// at the entry after it). Entries further on still verify.
//
// Canonicalization of the hashed portion of each entry uses
// lib/codec's CBOR Core Deterministic Encoding — the same logical
// entry always produces identical bytes regardless of map iteration
// order — while the entry persisted to disk is plain, human-readable
// JSON (operators read this file directly; they do not decode CBOR).
//
// Every entry also carries a random correlationId, letting an
// operator cross-reference one audit line against whatever the
// caller's own upstream request logs recorded for the same call.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/VouchlyAI/Pincer-MCP/lib/clock"
	"github.com/VouchlyAI/Pincer-MCP/lib/codec"
)

// GenesisHash is the fixed literal prev_hash of the first entry ever
// appended to a fresh log, and the fallback last_hash used when the
// log file is absent or its last line cannot be parsed.
const GenesisHash = "0000000000000000"

// chainHashChars is the number of leading hex characters of the
// SHA-256 digest kept as a chain hash.
const chainHashChars = 16

// Status is the terminal outcome of one tool-call attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// baseEntry is every field hashed into the chain. prev_hash and
// chain_hash are deliberately excluded — they are a function of
// baseEntry's own bytes, not part of them.
type baseEntry struct {
	CorrelationID  string `json:"correlationId"`
	AgentID        string `json:"agentId"`
	Tool           string `json:"tool"`
	TimestampUTC   string `json:"timestamp_utc"`
	TimestampLocal string `json:"timestamp_local"`
	DurationMS     int64  `json:"duration"`
	Status         Status `json:"status"`
	Error          string `json:"error,omitempty"`
}

// Entry is a single fully-formed audit log line: baseEntry plus the
// chain fields. Immutable once appended; the log never rewrites or
// truncates an existing line.
type Entry struct {
	baseEntry
	PrevHash  string `json:"prevHash"`
	ChainHash string `json:"chainHash"`
}

// Event is what the orchestrator reports for one tool-call attempt.
// Log stamps it with timestamps and computes the chain fields.
type Event struct {
	AgentID    string
	Tool       string
	DurationMS int64
	Status     Status
	Error      string
}

// Log is an append-only, hash-chained JSON-lines audit log. Safe for
// concurrent use: log() invocations are serialized by mu, which also
// guards the last_hash read/update required for a correct chain.
type Log struct {
	path   string
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	lastHash string
	file     *os.File
}

// Config holds the parameters for opening a Log.
type Config struct {
	// Path is the filesystem path to the audit log file. Required.
	Path string

	// Clock provides timestamps. Defaults to the real wall clock.
	Clock clock.Clock

	// Logger receives operational messages, notably the startup
	// warning when loadLastHash falls back to the genesis hash.
	Logger *slog.Logger
}

// Open opens (creating if absent) the audit log at cfg.Path and
// initializes last_hash from the last line's chain_hash, or from
// GenesisHash if the file is absent or its last line cannot be
// parsed.
//
// A parse failure on the last line is treated leniently: the chain
// silently restarts from GenesisHash rather than aborting startup.
// This is a deliberate security trade-off preserved from the spec — an
// attacker who truncates or corrupts the last line can restart the
// chain instead of being caught at startup. Operators who need strict
// continuity detection should monitor for the warning this logs.
func Open(cfg Config) (*Log, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit: Path is required")
	}

	clockImpl := cfg.Clock
	if clockImpl == nil {
		clockImpl = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	lastHash, err := loadLastHash(cfg.Path, logger)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", cfg.Path, err)
	}

	return &Log{
		path:     cfg.Path,
		clock:    clockImpl,
		logger:   logger,
		lastHash: lastHash,
		file:     file,
	}, nil
}

// loadLastHash reads the last line of path and returns its chain_hash,
// or GenesisHash if the file does not exist, is empty, or the last
// line fails to parse.
func loadLastHash(path string, logger *slog.Logger) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GenesisHash, nil
		}
		return "", fmt.Errorf("audit: reading %s: %w", path, err)
	}
	defer file.Close()

	var lastLine string
	scanner := bufio.NewScanner(file)
	// Audit entries can grow past bufio's 64KiB default (error text
	// plus chain fields), so raise the scan buffer.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lastLine = line
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("audit: scanning %s: %w", path, err)
	}

	if lastLine == "" {
		return GenesisHash, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(lastLine), &entry); err != nil || entry.ChainHash == "" {
		logger.Warn("audit: last line of log could not be parsed, restarting hash chain from genesis",
			"path", path, "parse_error", err)
		return GenesisHash, nil
	}
	return entry.ChainHash, nil
}

// Log stamps event with the current timestamps, computes its chain
// hash against the running last_hash, appends the full entry as one
// newline-terminated line, and advances last_hash. Serialized by mu so
// concurrent calls cannot interleave appends or race on last_hash.
func (l *Log) Log(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	base := baseEntry{
		CorrelationID:  uuid.New().String(),
		AgentID:        event.AgentID,
		Tool:           event.Tool,
		TimestampUTC:   now.UTC().Format("2006-01-02T15:04:05.000Z"),
		TimestampLocal: now.Local().Format("2006-01-02 15:04:05 MST"),
		DurationMS:     event.DurationMS,
		Status:         event.Status,
		Error:          event.Error,
	}

	canonical, err := codec.Marshal(base)
	if err != nil {
		return fmt.Errorf("audit: canonicalizing entry: %w", err)
	}

	chainHash := computeChainHash(l.lastHash, canonical)

	entry := Entry{
		baseEntry: base,
		PrevHash:  l.lastHash,
		ChainHash: chainHash,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: encoding entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("audit: appending to %s: %w", l.path, err)
	}

	l.lastHash = chainHash
	return nil
}

// computeChainHash returns the first chainHashChars hex characters of
// SHA-256(prevHash || canonicalEntry).
func computeChainHash(prevHash string, canonicalEntry []byte) string {
	hasher := sha256.New()
	hasher.Write([]byte(prevHash))
	hasher.Write(canonicalEntry)
	digest := hasher.Sum(nil)
	return hex.EncodeToString(digest)[:chainHashChars]
}

// LastHash returns the current running last_hash. Diagnostic and test
// use only.
func (l *Log) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// Close closes the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
