// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keywrap

import (
	"sort"

	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/secret"
)

// Record is one wrapped content key, addressed to one recipient.
// Records are immutable once built.
type Record struct {
	Ciphertext   []byte    `json:"ciphertext"`
	EphemeralKey PublicKey `json:"ephemeral_key"`
	Nonce        []byte    `json:"nonce"`
}

// Wrapper wraps content keys for recipients and unwraps records with a
// recipient's keypair. Implementations keep no state between calls.
type Wrapper interface {
	// Scheme is the identifier recorded in envelopes.
	Scheme() string

	// Wrap seals contentKey for recipient using a fresh ephemeral
	// keypair and nonce. contentKey is borrowed, not closed.
	Wrap(contentKey *secret.Buffer, recipient PublicKey) (Record, error)

	// Unwrap recovers the content key from record. The caller closes
	// the returned buffer.
	Unwrap(record Record, keypair *Keypair) (*secret.Buffer, error)
}

// DefaultScheme is used when configuration names none.
const DefaultScheme = "nacl-box"

var schemes = map[string]Wrapper{}

func register(w Wrapper) { schemes[w.Scheme()] = w }

// Lookup returns the wrapper registered under scheme.
func Lookup(scheme string) (Wrapper, error) {
	if scheme == "" {
		scheme = DefaultScheme
	}
	w, ok := schemes[scheme]
	if !ok {
		return nil, failure.New(failure.Invalid, "unknown key wrap scheme %q (known: %v)", scheme, Schemes())
	}
	return w, nil
}

// Schemes lists the registered scheme names in sorted order.
func Schemes() []string {
	names := make([]string, 0, len(schemes))
	for name := range schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	register(NaClBox)
	register(X25519HKDF)
}
