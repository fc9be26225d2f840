// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keywrap encapsulates content keys for individual recipients.
//
// Each identity owns a long-term X25519 [Keypair]. To share a content
// key, [Wrapper.Wrap] generates a fresh ephemeral keypair, agrees a
// shared secret with the recipient's public key and seals the content
// key under it with a fresh nonce. The resulting [Record] carries the
// wrapped key, the ephemeral public key and the nonce. Only the
// recipient's long-term secret can recompute the shared secret, and
// because every wrap uses a new ephemeral key, losing one ephemeral
// secret exposes exactly one wrap.
//
// Two schemes are registered:
//
//   - [NaClBox] ("nacl-box") -- X25519 + XSalsa20-Poly1305 via
//     golang.org/x/crypto/nacl/box, 24-byte nonce. Default.
//   - [X25519HKDF] ("x25519-hkdf-chacha20poly1305") -- X25519, HKDF-SHA256
//     bound to both public keys, ChaCha20-Poly1305 with the ephemeral
//     public key as associated data, 12-byte nonce.
//
// Unwrap never returns a guessed key: a corrupted record, a record for
// someone else or a low-order ephemeral point is a
// [failure.AuthFailure].
package keywrap
