// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is lockbox's CBOR configuration.
//
// Envelopes, backup blobs and every hub request and response are CBOR.
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same envelope always encodes to the same bytes; the hub relies on
// that to tell an idempotent re-publish from a conflicting one.
//
//	data, err := codec.Marshal(envelope)
//	err = codec.Unmarshal(data, &envelope)
//
// Types that only ever travel as CBOR use `cbor` struct tags. Types
// that are also printed as JSON by the CLI use `json` tags, which
// fxamacker/cbor reads as a fallback. A field never carries both.
//
// Types implementing encoding.TextMarshaler (public keys, content
// addresses) encode as CBOR text strings.
package codec
