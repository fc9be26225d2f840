// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite databases lockbox keeps: the
// client state database (identity custody and the orphan ledger) and
// the hub database (directory, envelopes and index).
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool and applies the same
// pragmas to every connection:
//
//   - journal_mode=WAL: readers never block the single writer.
//   - synchronous=FULL: a committed identity or envelope survives power
//     loss. Write volume is tiny, so the fsync cost does not matter.
//   - busy_timeout=5000: wait for the write lock instead of failing.
//   - foreign_keys=ON.
//   - secure_delete=ON: deleted rows (a replaced secret key) are
//     overwritten rather than left in free pages.
//
// Callers write SQL directly with sqlitex.Execute and manage
// transactions with sqlitex.ImmediateTransaction.
package sqlitepool
