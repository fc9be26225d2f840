// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers shared by the hub server
// and its clients.
//
// Response helpers ([ReadResponse], [DecodeResponse], [ErrorBody])
// bound body reads so a misbehaving hub or gateway cannot exhaust
// memory. Blob downloads use [ReadBlob] with the caller's own limit.
//
// [KindForStatus] and [StatusForKind] translate between HTTP status
// codes and lib/failure kinds, so both sides of the hub API agree on
// which failures are access decisions and which are transient.
package netutil

import (
	"fmt"
	"io"
	"net/http"

	"github.com/bureau-foundation/lockbox/lib/codec"
	"github.com/bureau-foundation/lockbox/lib/failure"
)

// MaxResponseSize bounds API (non-blob) response reads: 16 MB.
// Envelopes and index pages are orders of magnitude smaller.
const MaxResponseSize int64 = 16 << 20

// ReadResponse reads an API response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a CBOR API response body (up to
// MaxResponseSize bytes) and decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// ReadBlob reads at most limit bytes. A body longer than limit is an
// error rather than a silent truncation.
func ReadBlob(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("blob exceeds %d bytes", limit)
	}
	return data, nil
}

// ErrorBody reads an error response body for diagnostics. Read errors
// are ignored; a partial body is still useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	return string(data)
}

// KindForStatus maps an HTTP status to a failure kind.
func KindForStatus(status int) failure.Kind {
	switch {
	case status == http.StatusBadRequest, status == http.StatusRequestEntityTooLarge:
		return failure.Invalid
	case status == http.StatusUnauthorized:
		return failure.Unauthenticated
	case status == http.StatusForbidden:
		return failure.AccessDenied
	case status == http.StatusNotFound:
		return failure.NotFound
	case status == http.StatusConflict:
		return failure.Conflict
	case status == http.StatusTooManyRequests, status >= 500:
		return failure.Transient
	default:
		return failure.Internal
	}
}

// StatusForKind maps a failure kind to the HTTP status a server
// returns for it.
func StatusForKind(kind failure.Kind) int {
	switch kind {
	case failure.Invalid:
		return http.StatusBadRequest
	case failure.Unauthenticated:
		return http.StatusUnauthorized
	case failure.AccessDenied:
		return http.StatusForbidden
	case failure.NotFound:
		return http.StatusNotFound
	case failure.Conflict:
		return http.StatusConflict
	case failure.Transient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
