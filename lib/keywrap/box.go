// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/nacl/box"

	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/secret"
)

const boxNonceSize = 24

// NaClBox wraps with X25519 + XSalsa20-Poly1305 (NaCl crypto_box).
var NaClBox Wrapper = naclBox{}

type naclBox struct{}

func (naclBox) Scheme() string { return "nacl-box" }

func (naclBox) Wrap(contentKey *secret.Buffer, recipient PublicKey) (Record, error) {
	if recipient.IsZero() {
		return Record{}, failure.New(failure.Invalid, "nacl-box: recipient public key is empty")
	}

	ephemeralPublic, ephemeralSecret, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return Record{}, failure.New(failure.Internal, "nacl-box: generating ephemeral key: %w", err)
	}
	defer secret.Zero(ephemeralSecret[:])

	var nonce [boxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return Record{}, failure.New(failure.Internal, "nacl-box: generating nonce: %w", err)
	}

	recipientKey := [KeySize]byte(recipient)
	sealed := box.Seal(nil, contentKey.Bytes(), &nonce, &recipientKey, ephemeralSecret)
	return Record{
		Ciphertext:   sealed,
		EphemeralKey: PublicKey(*ephemeralPublic),
		Nonce:        nonce[:],
	}, nil
}

func (naclBox) Unwrap(record Record, keypair *Keypair) (*secret.Buffer, error) {
	if len(record.Nonce) != boxNonceSize {
		return nil, failure.New(failure.AuthFailure, "nacl-box: nonce is %d bytes, want %d", len(record.Nonce), boxNonceSize)
	}
	if len(record.Ciphertext) <= box.Overhead {
		return nil, failure.New(failure.AuthFailure, "nacl-box: wrapped key too short")
	}

	nonce := [boxNonceSize]byte(record.Nonce)
	ephemeral := [KeySize]byte(record.EphemeralKey)
	recipientSecret := (*[KeySize]byte)(keypair.Secret.Bytes())

	opened, ok := box.Open(nil, record.Ciphertext, &nonce, &ephemeral, recipientSecret)
	if !ok {
		return nil, failure.New(failure.AuthFailure, "nacl-box: wrapped key did not authenticate")
	}
	contentKey, err := secret.NewFromBytes(opened)
	if err != nil {
		return nil, failure.New(failure.Internal, "nacl-box: protecting content key: %w", err)
	}
	return contentKey, nil
}
