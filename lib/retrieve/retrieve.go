// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package retrieve fetches shared ciphertext and recovers plaintext.
//
// [Resolver.Open] fetches a blob by content address from a primary
// gateway and then at most [MaxFallbacks] fallback gateways, in the
// configured order. It never loops and never substitutes anything for
// missing content: when every gateway fails the result is
// failure.GatewayUnavailable with each attempt's error attached.
//
// [Resolver.Receive] reverses a share. The metadata collaborator
// enforces access, so a non-participant is refused there, before any
// ciphertext is requested. Envelope fields the metadata collaborator
// could alter are authenticated by decryption, and nothing is
// allocated from the declared size before that succeeds.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/lockbox/lib/aead"
	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/compression"
	"github.com/bureau-foundation/lockbox/lib/custody"
	"github.com/bureau-foundation/lockbox/lib/envelope"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
)

// MaxFallbacks is the number of fallback gateways Open will try after
// the primary.
const MaxFallbacks = 2

// DefaultCallTimeout bounds each collaborator call.
const DefaultCallTimeout = 30 * time.Second

// Config wires a Resolver.
type Config struct {
	Storage  envelope.Storage
	Metadata envelope.Metadata

	// Primary and Fallbacks are the gateways Receive uses.
	Primary   string
	Fallbacks []string

	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Resolver retrieves shared blobs. Safe for concurrent use.
type Resolver struct {
	storage     envelope.Storage
	metadata    envelope.Metadata
	primary     string
	fallbacks   []string
	callTimeout time.Duration
	logger      *slog.Logger
}

// New returns a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Storage == nil || cfg.Metadata == nil {
		return nil, fmt.Errorf("retrieve: Storage and Metadata are required")
	}
	r := &Resolver{
		storage:     cfg.Storage,
		metadata:    cfg.Metadata,
		primary:     cfg.Primary,
		fallbacks:   cfg.Fallbacks,
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger,
	}
	if r.callTimeout <= 0 {
		r.callTimeout = DefaultCallTimeout
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r, nil
}

// Open fetches address from primary, then from up to MaxFallbacks of
// fallbacks in order. Extra fallbacks are ignored. Any error from a
// gateway (not found, transport, timeout) moves on to the next one;
// cancellation of ctx stops the chain.
func (r *Resolver) Open(ctx context.Context, address cas.Address, primary string, fallbacks []string) ([]byte, error) {
	if primary == "" {
		return nil, failure.New(failure.Invalid, "no primary gateway configured")
	}
	if len(fallbacks) > MaxFallbacks {
		r.logger.Warn("ignoring extra fallback gateways",
			"configured", len(fallbacks),
			"used", MaxFallbacks,
			"ignored", fallbacks[MaxFallbacks:],
		)
		fallbacks = fallbacks[:MaxFallbacks]
	}
	gateways := append([]string{primary}, fallbacks...)

	attempts := make([]error, 0, len(gateways))
	for index, gateway := range gateways {
		if err := ctx.Err(); err != nil {
			return nil, failure.Wrap(failure.Transient, err, "fetching "+address.Short())
		}
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		data, err := r.storage.Get(callCtx, address, gateway)
		cancel()
		if err == nil {
			if index > 0 {
				r.logger.Info("ciphertext fetched from fallback gateway",
					"address", address.String(),
					"gateway", gateway,
					"failed_attempts", index,
				)
			}
			return data, nil
		}
		r.logger.Warn("gateway fetch failed",
			"address", address.String(),
			"gateway", gateway,
			"error", err,
		)
		attempts = append(attempts, fmt.Errorf("gateway %s: %w", gateway, err))
	}
	return nil, &failure.Error{
		Kind: failure.GatewayUnavailable,
		Err: fmt.Errorf("content %s unavailable after %d gateway(s): %w",
			address.Short(), len(gateways), errors.Join(attempts...)),
	}
}

// Receive fetches the envelope at address as identity, unwraps the
// content key addressed to it, fetches the ciphertext through the
// configured gateways and returns the plaintext with its envelope.
func (r *Resolver) Receive(ctx context.Context, address cas.Address, identity *custody.Identity) ([]byte, *envelope.Envelope, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	env, err := r.metadata.Fetch(callCtx, address, identity.Name)
	cancel()
	if err != nil {
		var kinded *failure.Error
		if errors.As(err, &kinded) {
			return nil, nil, err
		}
		return nil, nil, failure.Wrap(failure.Transient, err, "fetching envelope")
	}
	if err := env.Validate(); err != nil {
		return nil, nil, err
	}
	if env.Address != address {
		return nil, nil, failure.New(failure.Invalid, "metadata returned envelope %s for %s", env.Address.Short(), address.Short())
	}

	wrapped, ok := env.KeyFor(identity.Name)
	if !ok && identity.Name == env.Sender {
		return nil, nil, failure.New(failure.AccessDenied,
			"you shared %s but did not include yourself as a recipient, so you hold no key for it", address.Short())
	}
	if !ok {
		return nil, nil, failure.New(failure.AccessDenied, "%s holds no key for %s", env, identity.Name)
	}
	if !wrapped.RecipientKey.IsZero() && !wrapped.RecipientKey.Equal(identity.Keypair.Public) {
		return nil, nil, failure.New(failure.AuthFailure,
			"content key was wrapped for a different public key of %s; the identity on this device has changed", identity.Name)
	}

	wrapper, err := keywrap.Lookup(env.KeyWrap)
	if err != nil {
		return nil, nil, err
	}
	cipher, err := aead.Lookup(env.Cipher)
	if err != nil {
		return nil, nil, err
	}
	algorithm, err := compression.Parse(env.Compression)
	if err != nil {
		return nil, nil, failure.Wrap(failure.Invalid, err, "envelope compression")
	}

	contentKey, err := wrapper.Unwrap(wrapped.Record, identity.Keypair)
	if err != nil {
		return nil, nil, err
	}
	defer contentKey.Close()

	ciphertext, err := r.Open(ctx, env.Address, r.primary, r.fallbacks)
	if err != nil {
		return nil, nil, err
	}

	additionalData, err := env.AdditionalData()
	if err != nil {
		return nil, nil, err
	}
	compressed, err := cipher.Decrypt(ciphertext, contentKey, env.Nonce, additionalData)
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := compression.Decompress(compressed, algorithm, env.Descriptor.Size)
	if err != nil {
		return nil, nil, failure.Wrap(failure.Invalid, err, "decompressing content")
	}
	r.logger.Debug("content received", "address", address.String(), "size", len(plaintext))
	return plaintext, env, nil
}
