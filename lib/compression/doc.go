// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compression shrinks plaintext before it is encrypted.
//
// Ciphertext does not compress, so anything worth compressing must be
// compressed first. The algorithm is recorded in the envelope by name
// ([Algorithm.String]) and the plaintext size travels in the envelope
// descriptor, which lets LZ4 block decoding allocate exactly once.
//
// [Auto] picks an algorithm from the media type or a zstd sample;
// [Compress] falls back to [None] whenever compression would not make
// the data smaller, and reports the algorithm it actually used.
package compression
