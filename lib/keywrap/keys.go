// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/bureau-foundation/lockbox/lib/secret"
)

// KeySize is the length of X25519 public and secret keys.
const KeySize = curve25519.ScalarSize

// PublicKey is an X25519 public key. Its text form is unpadded
// base64url, used in configuration, the hub directory and CLI output.
type PublicKey [KeySize]byte

// String returns the text form.
func (k PublicKey) String() string {
	return base64.RawURLEncoding.EncodeToString(k[:])
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsZero reports whether k is unset.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// Equal compares two public keys.
func (k PublicKey) Equal(other PublicKey) bool {
	return subtle.ConstantTimeCompare(k[:], other[:]) == 1
}

// ParsePublicKey parses the text form of a public key.
func ParsePublicKey(text string) (PublicKey, error) {
	var key PublicKey
	decoded, err := base64.RawURLEncoding.DecodeString(text)
	if err != nil {
		return key, fmt.Errorf("parsing public key: %w", err)
	}
	if len(decoded) != KeySize {
		return key, fmt.Errorf("public key is %d bytes, want %d", len(decoded), KeySize)
	}
	copy(key[:], decoded)
	return key, nil
}

// Keypair is a long-term identity keypair. The secret half lives in a
// secret.Buffer; Close releases it.
type Keypair struct {
	Public PublicKey
	Secret *secret.Buffer
}

// GenerateKeypair creates a new random identity keypair.
func GenerateKeypair() (*Keypair, error) {
	secretKey, err := secret.NewRandom(KeySize)
	if err != nil {
		return nil, fmt.Errorf("generating identity secret: %w", err)
	}
	keypair, err := KeypairFromSecret(secretKey)
	if err != nil {
		secretKey.Close()
		return nil, err
	}
	return keypair, nil
}

// KeypairFromSecret derives the public half for an existing secret
// key. The returned Keypair takes ownership of secretKey.
func KeypairFromSecret(secretKey *secret.Buffer) (*Keypair, error) {
	if secretKey.Len() != KeySize {
		return nil, fmt.Errorf("identity secret is %d bytes, want %d", secretKey.Len(), KeySize)
	}
	public, err := curve25519.X25519(secretKey.Bytes(), curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	keypair := &Keypair{Secret: secretKey}
	copy(keypair.Public[:], public)
	return keypair, nil
}

// Close releases the secret key.
func (k *Keypair) Close() error {
	if k == nil || k.Secret == nil {
		return nil
	}
	return k.Secret.Close()
}
