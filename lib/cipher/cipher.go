// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cipher provides the vault's authenticated symmetric
// encryption: ChaCha20-Poly1305 with a 32-byte key and a random
// 12-byte nonce drawn fresh for every call. A nonce is never reused
// under the same key, and the key is never cached here — callers pass
// it in on every Encrypt/Decrypt call, so the only long-lived copy of
// the master key lives in the Vault Store's own buffer.
package cipher

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

const (
	// KeySize is the required length in bytes of an encryption key.
	KeySize = chacha20poly1305.KeySize

	// NonceSize is the length in bytes of a generated nonce.
	NonceSize = chacha20poly1305.NonceSize

	// TagSize is the length in bytes of the authentication tag
	// Poly1305 appends to every ciphertext.
	TagSize = chacha20poly1305.Overhead
)

// Sealed is the triple an AEAD encryption produces: ciphertext,
// authentication tag, and the nonce used to produce them, split apart
// to match the vault's three-column record shape. All three fields are
// required to decrypt.
type Sealed struct {
	Ciphertext []byte
	Tag        []byte
	Nonce      []byte
}

// Encrypt seals plaintext under key, which must be exactly KeySize
// bytes. A fresh random nonce is drawn from crypto/rand for this call
// and returned alongside the ciphertext and tag; the caller is
// responsible for persisting all three.
func Encrypt(key, plaintext []byte) (Sealed, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return Sealed{}, fmt.Errorf("cipher: constructing AEAD: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Sealed{}, fmt.Errorf("cipher: generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	tagStart := len(sealed) - TagSize
	return Sealed{
		Ciphertext: sealed[:tagStart],
		Tag:        sealed[tagStart:],
		Nonce:      nonce,
	}, nil
}

// Decrypt opens sealed under key. Any mismatch between key, nonce,
// ciphertext, and tag — including a single tampered byte in any of
// them — returns pincererr.ErrAuthFailure; the underlying AEAD library
// does not distinguish the cause, and this package does not try to.
func Decrypt(key []byte, sealed Sealed) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: constructing AEAD: %w", err)
	}

	combined := make([]byte, 0, len(sealed.Ciphertext)+len(sealed.Tag))
	combined = append(combined, sealed.Ciphertext...)
	combined = append(combined, sealed.Tag...)

	plaintext, err := aead.Open(nil, sealed.Nonce, combined, nil)
	if err != nil {
		return nil, pincererr.ErrAuthFailure
	}
	return plaintext, nil
}
