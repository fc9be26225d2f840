// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package aead

import (
	"crypto/aes"
	"crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ChaCha20Poly1305 is the IETF ChaCha20-Poly1305 suite.
	ChaCha20Poly1305 Cipher = suite{
		name:    "chacha20-poly1305",
		newAEAD: chacha20poly1305.New,
	}

	// AES256GCM is AES-256 in Galois/Counter Mode.
	AES256GCM Cipher = suite{
		name: "aes-256-gcm",
		newAEAD: func(key []byte) (cipher.AEAD, error) {
			block, err := aes.NewCipher(key)
			if err != nil {
				return nil, err
			}
			return cipher.NewGCM(block)
		},
	}
)

func init() {
	register(ChaCha20Poly1305)
	register(AES256GCM)
}
