// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope defines the unit of sharing and the collaborators
// the sharing pipeline talks to.
//
// An [Envelope] names one ciphertext blob by content address and
// carries everything a recipient needs to open it: the cipher and
// key-wrap scheme names, the content nonce, the sender's public key,
// the recipient list and one [WrappedKey] per recipient. Its
// [Descriptor] holds the non-sensitive attributes (name, media type,
// size, preview address); only those, via an [IndexEntry], ever reach
// the search index.
//
// The header fields that exist before encryption (version, algorithm
// names, sender and descriptor) are the content cipher's associated
// data ([Envelope.AdditionalData]), so a metadata collaborator cannot
// alter them without decryption failing.
//
// The collaborator interfaces are deliberately narrow:
//
//   - [Directory] -- publish and look up identity public keys
//   - [Storage] -- put ciphertext, get it back through a named gateway
//   - [Metadata] -- publish envelopes, fetch them subject to an access
//     check the collaborator enforces
//   - [Index] -- accept non-sensitive attributes for search
//
// lib/hub implements all four over HTTP; lib/hubstore implements the
// directory, metadata and index on SQLite for the hub server.
package envelope
