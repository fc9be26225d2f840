// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"context"

	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/sealed"
	"github.com/bureau-foundation/lockbox/lib/secret"
)

// Escrow seals the identity to the given age recipients and returns
// the armored result. Any one recipient's private key can restore it
// with RecoverEscrow.
func (s *Store) Escrow(ctx context.Context, recipients []string) (string, error) {
	if len(recipients) == 0 {
		return "", failure.New(failure.Invalid, "no escrow recipients configured (escrow.recipients)")
	}
	for _, recipient := range recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return "", failure.Wrap(failure.Invalid, err, "escrow recipient")
		}
	}

	identity, err := s.LoadOrCreate(ctx)
	if err != nil {
		return "", err
	}
	plaintext, err := marshalIdentity(identity)
	if err != nil {
		return "", failure.Wrap(failure.Internal, err, "encoding identity")
	}
	defer secret.Zero(plaintext)

	armored, err := sealed.Encrypt(plaintext, recipients)
	if err != nil {
		return "", failure.Wrap(failure.Internal, err, "sealing escrow")
	}
	s.logger.Info("identity escrowed", "identity", identity.Name, "recipients", len(recipients))
	return armored, nil
}

// RecoverEscrow restores an identity from an escrow blob using an
// operator's age private key. Conflicts are handled as in Import.
func (s *Store) RecoverEscrow(ctx context.Context, armored string, ageKey *secret.Buffer, replace bool) (*Identity, error) {
	plaintext, err := sealed.Decrypt(armored, ageKey)
	if err != nil {
		return nil, failure.Wrap(failure.AuthFailure, err, "opening escrow blob")
	}
	defer plaintext.Close()

	// unmarshalIdentity zeros its argument; hand it a heap copy and
	// let the locked buffer close normally.
	payload := make([]byte, plaintext.Len())
	copy(payload, plaintext.Bytes())
	name, keypair, createdAt, err := unmarshalIdentity(payload)
	if err != nil {
		return nil, err
	}
	if name != s.name {
		keypair.Close()
		return nil, failure.New(failure.Invalid, "escrow blob holds identity %q but this device is configured for %q", name, s.name)
	}
	return s.install(ctx, keypair, createdAt, replace)
}
