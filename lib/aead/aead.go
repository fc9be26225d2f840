// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aead

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"sort"

	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/secret"
)

const (
	// KeySize is the content key length in bytes.
	KeySize = 32

	// NonceSize is the nonce length in bytes (96 bits).
	NonceSize = 12

	// Overhead is the tag length appended to every ciphertext.
	Overhead = 16
)

// Cipher encrypts and decrypts blobs under a caller-held key.
// Implementations hold no mutable state and are safe for concurrent
// use.
type Cipher interface {
	// Name is the identifier recorded in envelopes.
	Name() string

	// GenerateKey returns a fresh random content key. The caller
	// closes it.
	GenerateKey() (*secret.Buffer, error)

	// Encrypt seals plaintext under key with a fresh random nonce.
	// The returned ciphertext has the tag appended.
	Encrypt(plaintext []byte, key *secret.Buffer, additionalData []byte) (ciphertext, nonce []byte, err error)

	// Decrypt opens ciphertext. Any authentication failure is a
	// failure.AuthFailure error with a nil plaintext.
	Decrypt(ciphertext []byte, key *secret.Buffer, nonce, additionalData []byte) ([]byte, error)
}

// DefaultName is the suite used when configuration names none.
const DefaultName = "chacha20-poly1305"

var suites = map[string]Cipher{}

func register(c Cipher) { suites[c.Name()] = c }

// Lookup returns the suite registered under name.
func Lookup(name string) (Cipher, error) {
	if name == "" {
		name = DefaultName
	}
	c, ok := suites[name]
	if !ok {
		return nil, failure.New(failure.Invalid, "unknown content cipher %q (known: %v)", name, Names())
	}
	return c, nil
}

// Names lists the registered suite names in sorted order.
func Names() []string {
	names := make([]string, 0, len(suites))
	for name := range suites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// suite adapts a crypto/cipher.AEAD constructor to Cipher. Both
// registered suites share the key, nonce and tag sizes, so the
// sealing logic lives here once.
type suite struct {
	name    string
	newAEAD func(key []byte) (cipher.AEAD, error)
}

func (s suite) Name() string { return s.name }

func (s suite) GenerateKey() (*secret.Buffer, error) {
	key, err := secret.NewRandom(KeySize)
	if err != nil {
		return nil, fmt.Errorf("generating %s key: %w", s.name, err)
	}
	return key, nil
}

func (s suite) Encrypt(plaintext []byte, key *secret.Buffer, additionalData []byte) ([]byte, []byte, error) {
	aead, err := s.open(key)
	if err != nil {
		return nil, nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, failure.New(failure.Internal, "generating nonce: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, additionalData), nonce, nil
}

func (s suite) Decrypt(ciphertext []byte, key *secret.Buffer, nonce, additionalData []byte) ([]byte, error) {
	aead, err := s.open(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, failure.New(failure.Invalid, "%s: nonce is %d bytes, want %d", s.name, len(nonce), NonceSize)
	}
	if len(ciphertext) < Overhead {
		return nil, failure.New(failure.AuthFailure, "%s: ciphertext shorter than its tag", s.name)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, failure.New(failure.AuthFailure, "%s: %w", s.name, err)
	}
	return plaintext, nil
}

func (s suite) open(key *secret.Buffer) (cipher.AEAD, error) {
	if key == nil || key.Len() != KeySize {
		length := 0
		if key != nil {
			length = key.Len()
		}
		return nil, failure.New(failure.Invalid, "%s: key is %d bytes, want %d", s.name, length, KeySize)
	}
	aead, err := s.newAEAD(key.Bytes())
	if err != nil {
		return nil, failure.New(failure.Internal, "creating %s cipher: %w", s.name, err)
	}
	return aead, nil
}
