// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive data such
// as API keys, master keys, and decrypted vault records.
//
// [Buffer] allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (preventing swap), and marks it
// excluded from core dumps via madvise(MADV_DONTDUMP). On Close, the
// memory is zeroed, unlocked, and unmapped. Because the memory lives
// outside the Go heap, the garbage collector cannot copy or relocate
// it, which is what lets pincer guarantee a secret does not outlive its
// Close call.
//
// Constructors:
//
//   - [New] -- allocates a zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//
// Access via [Buffer.Bytes] (slice into the mmap region) or
// [Buffer.String] (heap copy, for API boundaries that require a
// string). After Close, any access panics. Close is idempotent.
//
// [Zero] and [ScrubPattern] operate on plain heap-allocated byte slices
// (request bodies, JSON fields) that never made it into a Buffer in
// the first place — the orchestrator's scrub step uses ScrubPattern to
// overwrite a credential field with a fixed, recognizable non-secret
// pattern before dropping the reference.
package secret
