// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package custody keeps the device's long-term identity keypair.
//
// A [Store] holds one identity per name in the client state database.
// [Store.LoadOrCreate] is idempotent under concurrent first access:
// within a process the first caller generates the keypair while later
// callers wait and then share the cached result; across processes the
// INSERT ... ON CONFLICT DO NOTHING followed by a re-read makes every
// process converge on whichever keypair was committed first.
//
// The only network behavior is [Store.PublishPublicKey], a single call
// to the directory collaborator.
//
// Backups ([Store.Export], [Store.Import]) are password-encrypted
// blobs: the password is stretched with PBKDF2-SHA256 or Argon2id over
// a random salt and the serialized identity is sealed with a content
// cipher from lib/aead. The blob header is authenticated as associated
// data, so a blob whose KDF parameters were lowered fails to open
// instead of opening with weaker protection. A wrong password is a
// failure.AuthFailure.
//
// Escrow ([Store.Escrow], [Store.RecoverEscrow]) seals the same
// serialized identity to operator age recipients through lib/sealed.
package custody
