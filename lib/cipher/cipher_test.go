// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cipher

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("AIza_REAL_secret_value")

	sealed, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	got, err := Decrypt(key, sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("Decrypt returned %q, want %q", got, plaintext)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key := randomKey(t)
	other := randomKey(t)
	plaintext := []byte("top secret")

	sealed, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if _, err := Decrypt(other, sealed); !errors.Is(err, pincererr.ErrAuthFailure) {
		t.Fatalf("Decrypt with wrong key: got %v, want ErrAuthFailure", err)
	}
}

func TestDecryptTamperedTagFails(t *testing.T) {
	key := randomKey(t)
	sealed, err := Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := sealed
	tampered.Tag = append([]byte(nil), sealed.Tag...)
	tampered.Tag[0] ^= 0x01

	if _, err := Decrypt(key, tampered); !errors.Is(err, pincererr.ErrAuthFailure) {
		t.Fatalf("Decrypt with flipped tag bit: got %v, want ErrAuthFailure", err)
	}
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	key := randomKey(t)
	sealed, err := Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	tampered := sealed
	tampered.Ciphertext = append([]byte(nil), sealed.Ciphertext...)
	tampered.Ciphertext[0] ^= 0x01

	if _, err := Decrypt(key, tampered); !errors.Is(err, pincererr.ErrAuthFailure) {
		t.Fatalf("Decrypt with tampered ciphertext: got %v, want ErrAuthFailure", err)
	}
}

func TestEncryptNoncesAreUnique(t *testing.T) {
	key := randomKey(t)
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		sealed, err := Encrypt(key, []byte("payload"))
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		nonce := string(sealed.Nonce)
		if seen[nonce] {
			t.Fatalf("nonce reused across encryptions")
		}
		seen[nonce] = true
	}
}
