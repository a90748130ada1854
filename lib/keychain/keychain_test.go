// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"bytes"
	"errors"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/VouchlyAI/Pincer-MCP/lib/pincererr"
)

func TestMain(m *testing.M) {
	keyring.MockInit()
	m.Run()
}

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	for index := range key {
		key[index] = byte(index)
	}
	return key
}

func TestReadNotInitialized(t *testing.T) {
	keyring.MockInit()
	adapter := New()

	if _, err := adapter.Read(); !errors.Is(err, pincererr.ErrNotInitialized) {
		t.Fatalf("Read on empty keychain: got %v, want ErrNotInitialized", err)
	}
}

func TestWriteReadRoundtrip(t *testing.T) {
	keyring.MockInit()
	adapter := New()
	key := testKey(t)

	if err := adapter.Write(key); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := adapter.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Fatalf("Read returned %x, want %x", got, key)
	}
}

func TestWriteAlreadyInitialized(t *testing.T) {
	keyring.MockInit()
	adapter := New()
	key := testKey(t)

	if err := adapter.Write(key); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if err := adapter.Write(key); !errors.Is(err, pincererr.ErrAlreadyInitialized) {
		t.Fatalf("second Write: got %v, want ErrAlreadyInitialized", err)
	}
}

func TestWriteWrongKeySize(t *testing.T) {
	keyring.MockInit()
	adapter := New()

	if err := adapter.Write([]byte("too-short")); err == nil {
		t.Fatal("Write with wrong key size: got nil error")
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	keyring.MockInit()
	adapter := New()
	key := testKey(t)

	existed, err := adapter.Delete()
	if err != nil {
		t.Fatalf("Delete on empty keychain: %v", err)
	}
	if existed {
		t.Fatal("Delete on empty keychain: got existed=true, want false")
	}

	if err := adapter.Write(key); err != nil {
		t.Fatalf("Write: %v", err)
	}

	existed, err = adapter.Delete()
	if err != nil {
		t.Fatalf("Delete after Write: %v", err)
	}
	if !existed {
		t.Fatal("Delete after Write: got existed=false, want true")
	}

	if _, err := adapter.Read(); !errors.Is(err, pincererr.ErrNotInitialized) {
		t.Fatalf("Read after Delete: got %v, want ErrNotInitialized", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	keyring.MockInit()
	adapter := New()
	key := testKey(t)

	if err := adapter.Write(key); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := adapter.Delete(); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if _, err := adapter.Delete(); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}
