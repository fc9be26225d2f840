// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material outside the Go heap.
//
// A [Buffer] is an anonymous mmap region that is locked into RAM
// (mlock), excluded from core dumps (MADV_DONTDUMP) and zeroed before
// it is unmapped on Close. The garbage collector never sees the region,
// so it cannot leave stray copies of a content key or an identity
// secret behind when it moves objects.
//
// Constructors:
//
//   - [New] -- zero-filled buffer of a given size
//   - [NewFromBytes] -- copies into protected memory, zeros the source
//   - [NewRandom] -- fills a new buffer from crypto/rand (content keys,
//     identity secrets, KDF output)
//   - [ReadFromPath] -- password files and stdin
//
// [Buffer.Bytes] returns a slice into the mmap region; it must not
// outlive the Buffer. [Buffer.Equal] compares in constant time. [Zero]
// clears heap slices that briefly held secret bytes.
//
// Depends on golang.org/x/sys/unix only.
package secret
