// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package failure

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), Internal},
		{"direct", New(AuthFailure, "bad tag"), AuthFailure},
		{"wrapped by fmt", fmt.Errorf("opening: %w", New(AccessDenied, "no")), AccessDenied},
		{"outermost wins", New(UploadFailure, "put: %w", New(Transient, "reset")), UploadFailure},
		{"wrap helper", Wrap(GatewayUnavailable, io.EOF, "fetching"), GatewayUnavailable},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := KindOf(test.err); got != test.want {
				t.Errorf("KindOf = %q, want %q", got, test.want)
			}
		})
	}
}

func TestWrapPreservesChain(t *testing.T) {
	err := Wrap(Transient, io.ErrUnexpectedEOF, "reading body")
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("wrapped error lost its cause")
	}
	if err.Error() != "reading body: unexpected EOF" {
		t.Errorf("message = %q", err.Error())
	}
	if Wrap(Transient, nil, "ignored") != nil {
		t.Error("Wrap(nil) returned non-nil")
	}
}

func TestUserMessagesAreDistinct(t *testing.T) {
	kinds := []Kind{RecipientKeyMissing, UploadFailure, MetadataPublishFailure, AccessDenied, AuthFailure, GatewayUnavailable}
	seen := make(map[string]Kind)
	codes := make(map[int]Kind)
	for _, kind := range kinds {
		err := New(kind, "detail")
		message := UserMessage(err)
		if message == "" || message == "detail" {
			t.Errorf("%s: generic message %q", kind, message)
		}
		if other, ok := seen[message]; ok {
			t.Errorf("%s and %s share message %q", kind, other, message)
		}
		seen[message] = kind

		code := ExitCode(err)
		if code <= 1 {
			t.Errorf("%s: exit code %d is not specific", kind, code)
		}
		if other, ok := codes[code]; ok {
			t.Errorf("%s and %s share exit code %d", kind, other, code)
		}
		codes[code] = kind
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("receive: %w", New(AccessDenied, "not a participant"))
	if !Is(err, AccessDenied) {
		t.Error("Is(AccessDenied) = false")
	}
	if Is(err, AuthFailure) {
		t.Error("Is(AuthFailure) = true")
	}
	if Is(nil, Internal) {
		t.Error("Is(nil, Internal) = true")
	}
}
