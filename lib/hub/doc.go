// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hub is the HTTP face of the lockbox collaborators: the
// public-key directory, the ciphertext blob gateway, envelope metadata
// and the search index.
//
// [Server] serves the API over a [hubstore.Store] and a
// [cas.DirStore]. [Client] speaks it and implements the lib/envelope
// collaborator interfaces, so the share orchestrator and the retrieval
// resolver run unchanged against a remote hub.
//
// Request and response bodies are CBOR (codec.ContentType) except blob
// bodies, which are raw ciphertext. Errors carry an [ErrorResponse]
// with the failure kind, and the status code follows
// netutil.StatusForKind.
//
// # Authentication
//
// Callers present "Authorization: Bearer <identity>.<expiry>.<mac>"
// where expiry is Unix seconds and mac is the unpadded base64url
// HMAC-SHA256 of the identity and expiry under the hub's token secret
// ([MintToken]). The server verifies the MAC in constant time, rejects
// expired tokens, and then authorizes per route: a caller may only publish its own
// directory entry, only publish envelopes it sends, and only index
// entries it owns. Blob reads are unauthenticated because blobs are
// ciphertext and the gateway role is public.
//
// # Routes
//
//	PUT  /v1/directory/{identity}   publish a public key
//	GET  /v1/directory/{identity}   look up a public key
//	POST /v1/blobs                  upload ciphertext, returns its address
//	GET  /v1/blobs/{address}        download ciphertext
//	POST /v1/envelopes              publish an envelope
//	GET  /v1/envelopes/{address}    fetch an envelope (participants only)
//	POST /v1/index                  add an index entry
//	GET  /v1/index?q=&limit=        search visible index entries
//	GET  /v1/health                 liveness, unauthenticated
package hub
