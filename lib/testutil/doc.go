// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for lockbox packages.
//
// [UniqueID] generates monotonically increasing identifiers so tests
// sharing a hub or database do not collide on identity names.
// [RandomBytes] returns test plaintext. [RequireKind] fails a test
// unless an error carries a given failure kind. [StateDB] opens a
// throwaway SQLite pool with a schema applied. [RequireClosed] waits
// for a readiness channel with a safety timeout.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
