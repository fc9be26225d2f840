// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package failure

import (
	"errors"
	"fmt"
)

// Kind classifies an error for programmatic handling and for the
// message shown to the user.
type Kind string

const (
	// RecipientKeyMissing means a recipient has no published public
	// key. Raised before anything is uploaded.
	RecipientKeyMissing Kind = "recipient_key_missing"

	// UploadFailure means the ciphertext could not be stored. Nothing
	// was published.
	UploadFailure Kind = "upload_failure"

	// MetadataPublishFailure means the ciphertext was stored but its
	// envelope was not published. The upload is orphaned.
	MetadataPublishFailure Kind = "metadata_publish_failure"

	// AccessDenied means the metadata service refused the requester,
	// or the envelope holds no wrapped key for them. Never retried.
	AccessDenied Kind = "access_denied"

	// AuthFailure means a cryptographic check failed: a wrapped key,
	// a content ciphertext or a backup blob did not authenticate.
	AuthFailure Kind = "auth_failure"

	// GatewayUnavailable means every gateway in the fallback chain
	// failed to return the ciphertext.
	GatewayUnavailable Kind = "gateway_unavailable"

	// NotFound means a collaborator has no record of the requested
	// identity, envelope or blob.
	NotFound Kind = "not_found"

	// Invalid means the caller supplied malformed input.
	Invalid Kind = "invalid"

	// Conflict means the request contradicts existing state.
	Conflict Kind = "conflict"

	// Unauthenticated means the hub did not accept the caller's
	// credentials.
	Unauthenticated Kind = "unauthenticated"

	// Transient means a network error or timeout. The caller may
	// retry with backoff.
	Transient Kind = "transient"

	// Internal means an unexpected local failure.
	Internal Kind = "internal"
)

// Error is an error with a Kind. The message comes from the wrapped
// error; the kind travels alongside it.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

// Unwrap exposes the wrapped error to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind from a format string. %w
// verbs wrap as with fmt.Errorf.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches kind to err with a context prefix. It returns nil
// when err is nil.
func Wrap(kind Kind, err error, context string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: fmt.Errorf("%s: %w", context, err)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// Internal when err carries no kind. It returns "" for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var kinded *Error
	if errors.As(err, &kinded) {
		return kinded.Kind
	}
	return Internal
}

// Is reports whether err's kind is kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
