// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"bytes"
	"testing"

	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/secret"
)

func newKeypair(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func newContentKey(t *testing.T) *secret.Buffer {
	t.Helper()
	key, err := secret.NewRandom(32)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

func forEachScheme(t *testing.T, test func(t *testing.T, w Wrapper)) {
	t.Helper()
	for _, scheme := range Schemes() {
		w, err := Lookup(scheme)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", scheme, err)
		}
		t.Run(scheme, func(t *testing.T) { test(t, w) })
	}
}

func TestWrapUnwrap(t *testing.T) {
	forEachScheme(t, func(t *testing.T, w Wrapper) {
		recipient := newKeypair(t)
		contentKey := newContentKey(t)

		record, err := w.Wrap(contentKey, recipient.Public)
		if err != nil {
			t.Fatalf("Wrap: %v", err)
		}
		unwrapped, err := w.Unwrap(record, recipient)
		if err != nil {
			t.Fatalf("Unwrap: %v", err)
		}
		defer unwrapped.Close()

		if !unwrapped.Equal(contentKey) {
			t.Fatal("unwrapped key differs from the wrapped key")
		}
	})
}

func TestUnwrapByOtherIdentityFails(t *testing.T) {
	forEachScheme(t, func(t *testing.T, w Wrapper) {
		recipient := newKeypair(t)
		outsider := newKeypair(t)

		record, err := w.Wrap(newContentKey(t), recipient.Public)
		if err != nil {
			t.Fatalf("Wrap: %v", err)
		}
		key, err := w.Unwrap(record, outsider)
		if !failure.Is(err, failure.AuthFailure) {
			t.Fatalf("error = %v, want AuthFailure", err)
		}
		if key != nil {
			t.Fatal("returned a key on failure")
		}
	})
}

func TestFreshEphemeralPerWrap(t *testing.T) {
	forEachScheme(t, func(t *testing.T, w Wrapper) {
		recipient := newKeypair(t)
		contentKey := newContentKey(t)

		first, err := w.Wrap(contentKey, recipient.Public)
		if err != nil {
			t.Fatalf("Wrap: %v", err)
		}
		second, err := w.Wrap(contentKey, recipient.Public)
		if err != nil {
			t.Fatalf("Wrap: %v", err)
		}
		if first.EphemeralKey.Equal(second.EphemeralKey) {
			t.Error("two wraps share an ephemeral public key")
		}
		if bytes.Equal(first.Nonce, second.Nonce) {
			t.Error("two wraps share a nonce")
		}
		if bytes.Equal(first.Ciphertext, second.Ciphertext) {
			t.Error("two wraps produced identical ciphertext")
		}
	})
}

func TestCorruptedRecordFails(t *testing.T) {
	forEachScheme(t, func(t *testing.T, w Wrapper) {
		recipient := newKeypair(t)
		record, err := w.Wrap(newContentKey(t), recipient.Public)
		if err != nil {
			t.Fatalf("Wrap: %v", err)
		}

		mutations := map[string]func(r *Record){
			"ciphertext":    func(r *Record) { r.Ciphertext[0] ^= 0x01 },
			"nonce":         func(r *Record) { r.Nonce[len(r.Nonce)-1] ^= 0x80 },
			"ephemeral key": func(r *Record) { r.EphemeralKey[5] ^= 0x10 },
			"short nonce":   func(r *Record) { r.Nonce = r.Nonce[:4] },
			"truncated":     func(r *Record) { r.Ciphertext = r.Ciphertext[:8] },
		}
		for name, mutate := range mutations {
			t.Run(name, func(t *testing.T) {
				corrupted := Record{
					Ciphertext:   bytes.Clone(record.Ciphertext),
					EphemeralKey: record.EphemeralKey,
					Nonce:        bytes.Clone(record.Nonce),
				}
				mutate(&corrupted)
				if _, err := w.Unwrap(corrupted, recipient); !failure.Is(err, failure.AuthFailure) {
					t.Fatalf("error = %v, want AuthFailure", err)
				}
			})
		}
	})
}

func TestWrapRejectsEmptyRecipient(t *testing.T) {
	forEachScheme(t, func(t *testing.T, w Wrapper) {
		if _, err := w.Wrap(newContentKey(t), PublicKey{}); !failure.Is(err, failure.Invalid) {
			t.Fatalf("error = %v, want Invalid", err)
		}
	})
}

func TestSchemesAreNotInterchangeable(t *testing.T) {
	recipient := newKeypair(t)
	record, err := NaClBox.Wrap(newContentKey(t), recipient.Public)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if _, err := X25519HKDF.Unwrap(record, recipient); !failure.Is(err, failure.AuthFailure) {
		t.Fatalf("error = %v, want AuthFailure", err)
	}
}

func TestPublicKeyText(t *testing.T) {
	keypair := newKeypair(t)
	text, err := keypair.Public.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var parsed PublicKey
	if err := parsed.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if parsed != keypair.Public {
		t.Fatal("public key text form did not round trip")
	}
	if _, err := ParsePublicKey("not-base64!"); err == nil {
		t.Error("parsed invalid base64")
	}
	if _, err := ParsePublicKey("AAAA"); err == nil {
		t.Error("parsed a 3-byte key")
	}
}

func TestKeypairFromSecret(t *testing.T) {
	original := newKeypair(t)
	clone, err := original.Secret.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	rebuilt, err := KeypairFromSecret(clone)
	if err != nil {
		t.Fatalf("KeypairFromSecret: %v", err)
	}
	defer rebuilt.Close()
	if rebuilt.Public != original.Public {
		t.Fatal("derived public key differs")
	}
}
