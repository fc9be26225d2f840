// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package aead is the content cipher: authenticated symmetric
// encryption of whole blobs under single-use keys.
//
// Every suite uses a 256-bit key and a 96-bit random nonce, and
// appends the 16-byte authentication tag to the ciphertext. Decrypt
// fails closed: a flipped bit anywhere in the ciphertext, tag, nonce
// or additional data yields a [failure.AuthFailure] error and no
// plaintext.
//
// Suites are selected by name so an envelope can record which one
// sealed it:
//
//   - [ChaCha20Poly1305] ("chacha20-poly1305") -- default
//   - [AES256GCM] ("aes-256-gcm")
//
// A content key is generated per blob by [Cipher.GenerateKey] and used
// exactly once, so a random nonce can never repeat under the same key.
// Keys live in [secret.Buffer] values; the caller closes them.
package aead
