// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock injects the current time.
//
// Envelope creation times, identity creation times and orphan ledger
// entries are stamped through a [Clock] instead of time.Now so tests
// can pin them. Production code passes [Real]; tests pass [Fake] and
// move it with [FakeClock.Advance].
package clock
