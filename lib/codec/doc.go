// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides pincer's CBOR encoding configuration.
//
// The audit log (lib/audit) stores human-readable JSON lines, but the
// hash chain that ties each entry to the one before it is computed over
// a canonical byte sequence, not over arbitrary JSON (whose key order
// and whitespace are not guaranteed stable across encoder versions).
// This package supplies that canonical encoding: CBOR under Core
// Deterministic Encoding (RFC 8949 §4.2) — sorted map keys, smallest
// integer encoding, no indefinite-length items — so the same logical
// entry always produces identical bytes before hashing, regardless of
// struct field order or map iteration order.
//
//	canonical, err := codec.Marshal(baseEntry)
//	sum := sha256.Sum256(append(prevHash, canonical...))
//
// Everything the core writes to disk or returns over the wire — the
// audit file itself, HTTP request/response bodies — stays plain JSON;
// CBOR here exists solely to canonicalize bytes before hashing.
package codec
