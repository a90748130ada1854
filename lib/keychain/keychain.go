// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keychain adapts the host OS credential store (macOS Keychain,
// Windows Credential Manager, Secret Service/libsecret on Linux) to the
// three operations the vault needs for its master key: read, write, and
// delete. The service and account identifiers are fixed constants so
// that every process on the host resolves to the same keychain entry.
package keychain

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

const (
	// service is the fixed keychain service name under which the
	// master key is stored. Every pincer process on a host shares
	// this value so they all resolve to the same vault.
	service = "pincer"

	// account is the fixed keychain account name within service.
	account = "vault-master-key"

	// KeySize is the length in bytes of the master key.
	KeySize = 32
)

// Adapter reads, writes, and deletes the master key from the host OS
// credential store. The value at rest is the key's lowercase hex
// encoding (keychain backends store strings, not arbitrary bytes).
type Adapter struct{}

// New returns a keychain Adapter bound to the fixed pincer service and
// account identifiers.
func New() *Adapter {
	return &Adapter{}
}

// Read returns the master key. Returns pincererr.ErrNotInitialized if
// no entry exists, or pincererr.ErrKeychainIO wrapping the underlying
// platform error for any other failure.
func (a *Adapter) Read() ([]byte, error) {
	encoded, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, pincererr.ErrNotInitialized
		}
		return nil, fmt.Errorf("%w: reading master key: %v", pincererr.ErrKeychainIO, err)
	}

	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: master key entry is not valid hex: %v", pincererr.ErrKeychainIO, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: master key entry has wrong length %d, want %d", pincererr.ErrKeychainIO, len(key), KeySize)
	}
	return key, nil
}

// Write stores key as the master key. Fails with
// pincererr.ErrAlreadyInitialized if an entry already exists; callers
// that want to overwrite must Delete first.
func (a *Adapter) Write(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("keychain: master key must be %d bytes, got %d", KeySize, len(key))
	}

	if _, err := keyring.Get(service, account); err == nil {
		return pincererr.ErrAlreadyInitialized
	} else if !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: checking for existing master key: %v", pincererr.ErrKeychainIO, err)
	}

	encoded := hex.EncodeToString(key)
	if err := keyring.Set(service, account, encoded); err != nil {
		return fmt.Errorf("%w: writing master key: %v", pincererr.ErrKeychainIO, err)
	}
	return nil
}

// Delete removes the master key entry. Idempotent from the caller's
// point of view (deleting an absent entry is not an error) but reports
// whether an entry actually existed, since the control plane surfaces
// that signal for telemetry.
func (a *Adapter) Delete() (existed bool, err error) {
	err = keyring.Delete(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: deleting master key: %v", pincererr.ErrKeychainIO, err)
	}
	return true, nil
}
