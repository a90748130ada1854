// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/VouchlyAI/Pincer-MCP/lib/codec"
)

// VerifyResult is the outcome of verifying one audit log file.
type VerifyResult struct {
	// Entries is the number of lines successfully parsed.
	Entries int

	// BrokenAt is the zero-based index of the first entry whose
	// chain_hash does not match its recomputed hash, or whose
	// prev_hash does not match the previous entry's chain_hash. -1
	// when the chain is intact end to end.
	BrokenAt int
}

// Verify re-derives every entry's chain_hash from its own fields and
// checks it against the stored value, and checks that each entry's
// prev_hash equals the previous entry's chain_hash. The first entry's
// prev_hash must equal GenesisHash.
//
// This does not require an open Log — it is the operator-facing
// integrity check, independent of any in-process last_hash state.
func Verify(path string) (VerifyResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("audit: opening %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	result := VerifyResult{BrokenAt: -1}
	expectedPrev := GenesisHash

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return result, fmt.Errorf("audit: parsing entry %d: %w", result.Entries, err)
		}

		if entry.PrevHash != expectedPrev {
			if result.BrokenAt < 0 {
				result.BrokenAt = result.Entries
			}
		}

		canonical, err := codec.Marshal(entry.baseEntry)
		if err != nil {
			return result, fmt.Errorf("audit: canonicalizing entry %d: %w", result.Entries, err)
		}
		recomputed := computeChainHash(entry.PrevHash, canonical)
		if recomputed != entry.ChainHash {
			if result.BrokenAt < 0 {
				result.BrokenAt = result.Entries
			}
		}

		expectedPrev = entry.ChainHash
		result.Entries++
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("audit: scanning %s: %w", path, err)
	}

	return result, nil
}
