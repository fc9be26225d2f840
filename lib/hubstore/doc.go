// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hubstore is the hub's persistent state: the public-key
// directory, the envelope metadata store with its access check, and
// the search index. All three live in one SQLite database opened
// through lib/sqlitepool.
//
// A [Store] hands out three views, one per collaborator contract in
// lib/envelope: [Store.Directory], [Store.Metadata] and [Store.Index].
// The lockbox client uses them through the hub's HTTP API; tests and
// single-machine setups can use them directly.
//
// The metadata access check is enforced here, not filtered by the
// caller: [Metadata.Fetch] returns failure.AccessDenied to anyone who
// is neither the sender nor a listed recipient. Envelopes are
// immutable. Re-publishing identical bytes is a no-op; publishing
// different bytes under an existing address is failure.Conflict.
//
// The index holds only envelope.IndexEntry fields. Nonces, wrapped
// keys and recipient names never reach the index_entries table.
package hubstore
