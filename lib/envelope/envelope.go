// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/codec"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
)

// Version is the envelope format version written by this package.
const Version = 1

// Envelope is the complete, storable description of one shared blob.
// Envelopes are immutable after construction.
type Envelope struct {
	Version int `json:"version"`

	// Address is the content address of the ciphertext.
	Address cas.Address `json:"address"`

	// Cipher and KeyWrap name the lib/aead suite and lib/keywrap
	// scheme that produced the ciphertext and the wrapped keys.
	Cipher  string `json:"cipher"`
	KeyWrap string `json:"key_wrap"`

	// Nonce is the content nonce. The tag is appended to the
	// ciphertext itself.
	Nonce []byte `json:"nonce"`

	// Compression names the lib/compression algorithm applied to the
	// plaintext before encryption.
	Compression string `json:"compression"`

	Sender     string            `json:"sender"`
	SenderKey  keywrap.PublicKey `json:"sender_key"`
	Recipients []string          `json:"recipients"`

	// WrappedKeys holds exactly one record per entry in Recipients,
	// in the same order.
	WrappedKeys []WrappedKey `json:"wrapped_keys"`

	Descriptor Descriptor `json:"descriptor"`

	// CreatedAt is Unix milliseconds.
	CreatedAt int64 `json:"created_at"`
}

// WrappedKey is the content key wrapped for one recipient.
type WrappedKey struct {
	Recipient    string            `json:"recipient"`
	RecipientKey keywrap.PublicKey `json:"recipient_key"`
	Record       keywrap.Record    `json:"record"`
}

// Descriptor is the non-sensitive description of the plaintext.
type Descriptor struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`

	// Size is the plaintext length in bytes, before compression.
	Size int64 `json:"size"`

	// Preview is the address of the preview envelope's ciphertext,
	// if one was shared alongside.
	Preview *cas.Address `json:"preview,omitempty"`
}

// sealedHeader is the part of an envelope the content cipher
// authenticates. Address and WrappedKeys are produced after encryption
// and the nonce is a cipher input, so they are not part of it.
type sealedHeader struct {
	Version     int               `json:"version"`
	Cipher      string            `json:"cipher"`
	KeyWrap     string            `json:"key_wrap"`
	Compression string            `json:"compression"`
	Sender      string            `json:"sender"`
	SenderKey   keywrap.PublicKey `json:"sender_key"`
	Descriptor  Descriptor        `json:"descriptor"`
}

// AdditionalData returns the associated data for the content cipher:
// the deterministic CBOR encoding of the format version, algorithm
// names, sender and descriptor. Altering any of them after the share
// makes decryption fail with failure.AuthFailure.
func (e *Envelope) AdditionalData() ([]byte, error) {
	data, err := codec.Marshal(sealedHeader{
		Version:     e.Version,
		Cipher:      e.Cipher,
		KeyWrap:     e.KeyWrap,
		Compression: e.Compression,
		Sender:      e.Sender,
		SenderKey:   e.SenderKey,
		Descriptor:  e.Descriptor,
	})
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "encoding envelope header")
	}
	return data, nil
}

// IndexEntry is everything the search index is allowed to see.
type IndexEntry struct {
	Address        cas.Address `json:"address"`
	Owner          string      `json:"owner"`
	Name           string      `json:"name"`
	MediaType      string      `json:"media_type"`
	Size           int64       `json:"size"`
	RecipientCount int         `json:"recipient_count"`
	HasPreview     bool        `json:"has_preview"`
	CreatedAt      int64       `json:"created_at"`
}

// IndexEntry derives the index record for e.
func (e *Envelope) IndexEntry() IndexEntry {
	return IndexEntry{
		Address:        e.Address,
		Owner:          e.Sender,
		Name:           e.Descriptor.Name,
		MediaType:      e.Descriptor.MediaType,
		Size:           e.Descriptor.Size,
		RecipientCount: len(e.Recipients),
		HasPreview:     e.Descriptor.Preview != nil,
		CreatedAt:      e.CreatedAt,
	}
}

// Created returns CreatedAt as a time.Time.
func (e *Envelope) Created() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

// KeyFor returns the wrapped key addressed to identity.
func (e *Envelope) KeyFor(identity string) (WrappedKey, bool) {
	for _, wrapped := range e.WrappedKeys {
		if wrapped.Recipient == identity {
			return wrapped, true
		}
	}
	return WrappedKey{}, false
}

// IsParticipant reports whether identity is the sender or a recipient.
func (e *Envelope) IsParticipant(identity string) bool {
	if identity == e.Sender {
		return true
	}
	for _, recipient := range e.Recipients {
		if recipient == identity {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants: a known version, a
// non-empty address, sender and recipient list, no duplicate
// recipients, and exactly one wrapped key per recipient in order.
func (e *Envelope) Validate() error {
	if e.Version != Version {
		return failure.New(failure.Invalid, "envelope version %d is not supported", e.Version)
	}
	if e.Address.IsZero() {
		return failure.New(failure.Invalid, "envelope has no content address")
	}
	if e.Sender == "" {
		return failure.New(failure.Invalid, "envelope has no sender")
	}
	if len(e.Nonce) == 0 {
		return failure.New(failure.Invalid, "envelope has no content nonce")
	}
	if len(e.Recipients) == 0 {
		return failure.New(failure.Invalid, "envelope has no recipients")
	}
	if len(e.WrappedKeys) != len(e.Recipients) {
		return failure.New(failure.Invalid, "envelope has %d wrapped keys for %d recipients",
			len(e.WrappedKeys), len(e.Recipients))
	}

	seen := make(map[string]struct{}, len(e.Recipients))
	for index, recipient := range e.Recipients {
		if recipient == "" {
			return failure.New(failure.Invalid, "envelope recipient %d is empty", index)
		}
		if _, duplicate := seen[recipient]; duplicate {
			return failure.New(failure.Invalid, "envelope lists recipient %q twice", recipient)
		}
		seen[recipient] = struct{}{}
		if e.WrappedKeys[index].Recipient != recipient {
			return failure.New(failure.Invalid, "wrapped key %d is for %q, want %q",
				index, e.WrappedKeys[index].Recipient, recipient)
		}
	}
	if e.Descriptor.Size < 0 {
		return failure.New(failure.Invalid, "envelope size %d is negative", e.Descriptor.Size)
	}
	return nil
}

// String identifies the envelope in logs.
func (e *Envelope) String() string {
	return fmt.Sprintf("envelope %s from %s to %d recipient(s)", e.Address.Short(), e.Sender, len(e.Recipients))
}
