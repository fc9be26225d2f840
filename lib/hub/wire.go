// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/envelope"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Kind    failure.Kind `cbor:"kind"`
	Message string       `cbor:"message"`
}

// DirectoryEntry is the body of directory requests and responses.
type DirectoryEntry struct {
	Identity  string            `cbor:"identity"`
	PublicKey keywrap.PublicKey `cbor:"public_key"`
}

// BlobResponse answers a blob upload.
type BlobResponse struct {
	Address cas.Address `cbor:"address"`
	Size    int64       `cbor:"size"`
}

// SearchResponse answers an index search.
type SearchResponse struct {
	Entries []envelope.IndexEntry `cbor:"entries"`
}
