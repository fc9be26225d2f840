// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cas names and stores ciphertext blobs by content.
//
// An [Address] is the BLAKE3 keyed hash of a blob under a fixed
// lockbox domain key, so the same bytes always get the same address
// and any change to the bytes changes it. Because lockbox only ever
// stores ciphertext produced under a fresh key and nonce, sharing the
// same file twice yields two different addresses.
//
// [DirStore] keeps blobs in a sharded directory tree with atomic
// writes. The hub uses it as its blob gateway backend. The sharing
// pipeline itself treats addresses as opaque: it never recomputes or
// verifies them.
package cas
