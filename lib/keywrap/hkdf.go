// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/secret"
)

// hkdfInfo separates wrap keys from every other use of the same
// shared secret. Changing it invalidates every record of this scheme.
var hkdfInfo = []byte("lockbox.keywrap.x25519-hkdf-chacha20poly1305.v1")

// X25519HKDF wraps with X25519, HKDF-SHA256 and ChaCha20-Poly1305.
var X25519HKDF Wrapper = x25519HKDF{}

type x25519HKDF struct{}

func (x25519HKDF) Scheme() string { return "x25519-hkdf-chacha20poly1305" }

func (x25519HKDF) Wrap(contentKey *secret.Buffer, recipient PublicKey) (Record, error) {
	if recipient.IsZero() {
		return Record{}, failure.New(failure.Invalid, "x25519-hkdf: recipient public key is empty")
	}

	ephemeral, err := GenerateKeypair()
	if err != nil {
		return Record{}, failure.New(failure.Internal, "x25519-hkdf: %w", err)
	}
	defer ephemeral.Close()

	shared, err := curve25519.X25519(ephemeral.Secret.Bytes(), recipient[:])
	if err != nil {
		return Record{}, failure.New(failure.Invalid, "x25519-hkdf: recipient key rejected: %w", err)
	}
	wrapKey, err := deriveWrapKey(shared, ephemeral.Public, recipient)
	secret.Zero(shared)
	if err != nil {
		return Record{}, err
	}
	defer wrapKey.Close()

	aead, err := chacha20poly1305.New(wrapKey.Bytes())
	if err != nil {
		return Record{}, failure.New(failure.Internal, "x25519-hkdf: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Record{}, failure.New(failure.Internal, "x25519-hkdf: generating nonce: %w", err)
	}

	return Record{
		Ciphertext:   aead.Seal(nil, nonce, contentKey.Bytes(), ephemeral.Public[:]),
		EphemeralKey: ephemeral.Public,
		Nonce:        nonce,
	}, nil
}

func (x25519HKDF) Unwrap(record Record, keypair *Keypair) (*secret.Buffer, error) {
	if len(record.Nonce) != chacha20poly1305.NonceSize {
		return nil, failure.New(failure.AuthFailure, "x25519-hkdf: nonce is %d bytes, want %d",
			len(record.Nonce), chacha20poly1305.NonceSize)
	}

	shared, err := curve25519.X25519(keypair.Secret.Bytes(), record.EphemeralKey[:])
	if err != nil {
		return nil, failure.New(failure.AuthFailure, "x25519-hkdf: ephemeral key rejected: %w", err)
	}
	wrapKey, err := deriveWrapKey(shared, record.EphemeralKey, keypair.Public)
	secret.Zero(shared)
	if err != nil {
		return nil, err
	}
	defer wrapKey.Close()

	aead, err := chacha20poly1305.New(wrapKey.Bytes())
	if err != nil {
		return nil, failure.New(failure.Internal, "x25519-hkdf: %w", err)
	}
	opened, err := aead.Open(nil, record.Nonce, record.Ciphertext, record.EphemeralKey[:])
	if err != nil {
		return nil, failure.New(failure.AuthFailure, "x25519-hkdf: wrapped key did not authenticate")
	}
	contentKey, err := secret.NewFromBytes(opened)
	if err != nil {
		return nil, failure.New(failure.Internal, "x25519-hkdf: protecting content key: %w", err)
	}
	return contentKey, nil
}

// deriveWrapKey expands the ECDH output into a ChaCha20-Poly1305 key.
// The salt binds both public keys so a record cannot be replayed
// against a different recipient.
func deriveWrapKey(shared []byte, ephemeral, recipient PublicKey) (*secret.Buffer, error) {
	salt := make([]byte, 0, 2*KeySize)
	salt = append(salt, ephemeral[:]...)
	salt = append(salt, recipient[:]...)

	key, err := secret.New(chacha20poly1305.KeySize)
	if err != nil {
		return nil, failure.New(failure.Internal, "x25519-hkdf: %w", err)
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, hkdfInfo), key.Bytes()); err != nil {
		key.Close()
		return nil, failure.New(failure.Internal, "x25519-hkdf: deriving wrap key: %w", err)
	}
	return key, nil
}
