// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"context"

	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
)

// Directory maps identities to their published public keys.
type Directory interface {
	Publish(ctx context.Context, identity string, key keywrap.PublicKey) error

	// Lookup returns a failure.NotFound error when identity has
	// published no key.
	Lookup(ctx context.Context, identity string) (keywrap.PublicKey, error)
}

// Storage is the content-addressed ciphertext store.
type Storage interface {
	Put(ctx context.Context, ciphertext []byte) (cas.Address, error)

	// Get fetches address through one gateway. A missing blob is a
	// failure.NotFound error.
	Get(ctx context.Context, address cas.Address, gateway string) ([]byte, error)
}

// Metadata stores envelopes and enforces who may read them.
type Metadata interface {
	Publish(ctx context.Context, envelope *Envelope) error

	// Fetch returns the envelope at address if requester is its
	// sender or one of its recipients, and a failure.AccessDenied
	// error otherwise.
	Fetch(ctx context.Context, address cas.Address, requester string) (*Envelope, error)
}

// Index receives non-sensitive attributes for search.
type Index interface {
	Index(ctx context.Context, entry IndexEntry) error
}
