// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package share

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/lockbox/lib/aead"
	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/clock"
	"github.com/bureau-foundation/lockbox/lib/compression"
	"github.com/bureau-foundation/lockbox/lib/custody"
	"github.com/bureau-foundation/lockbox/lib/envelope"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
	"github.com/bureau-foundation/lockbox/lib/orphan"
	"github.com/bureau-foundation/lockbox/lib/preview"
)

// DefaultCallTimeout bounds each collaborator call.
const DefaultCallTimeout = 30 * time.Second

// Blob is a plaintext to share.
type Blob struct {
	Name      string
	MediaType string
	Data      []byte
}

// Options are per-share choices.
type Options struct {
	// GeneratePreview shares a preview alongside eligible blobs.
	GeneratePreview bool

	// Compression is "auto", "none", "lz4" or "zstd". Empty means
	// auto.
	Compression compression.Mode
}

// OrphanRecorder receives uploads whose envelope was not published.
// *orphan.Ledger implements it.
type OrphanRecorder interface {
	Record(ctx context.Context, entry orphan.Entry) error
}

// Config wires an Orchestrator to its collaborators.
type Config struct {
	// Sender is the local identity. Required.
	Sender *custody.Identity

	// Cipher defaults to aead's default suite; Wrapper to keywrap's
	// default scheme.
	Cipher  aead.Cipher
	Wrapper keywrap.Wrapper

	// Directory, Storage and Metadata are required. Index and Orphans
	// are optional.
	Directory envelope.Directory
	Storage   envelope.Storage
	Metadata  envelope.Metadata
	Index     envelope.Index
	Orphans   OrphanRecorder

	Previews    preview.Generator
	CallTimeout time.Duration
	Clock       clock.Clock
	Logger      *slog.Logger
}

// Orchestrator shares blobs. It holds no per-share state and is safe
// for concurrent use.
type Orchestrator struct {
	sender      *custody.Identity
	cipher      aead.Cipher
	wrapper     keywrap.Wrapper
	directory   envelope.Directory
	storage     envelope.Storage
	metadata    envelope.Metadata
	index       envelope.Index
	orphans     OrphanRecorder
	previews    preview.Generator
	callTimeout time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Sender == nil || cfg.Sender.Keypair == nil {
		return nil, fmt.Errorf("share: Sender is required")
	}
	if cfg.Directory == nil || cfg.Storage == nil || cfg.Metadata == nil {
		return nil, fmt.Errorf("share: Directory, Storage and Metadata are required")
	}
	o := &Orchestrator{
		sender:      cfg.Sender,
		cipher:      cfg.Cipher,
		wrapper:     cfg.Wrapper,
		directory:   cfg.Directory,
		storage:     cfg.Storage,
		metadata:    cfg.Metadata,
		index:       cfg.Index,
		orphans:     cfg.Orphans,
		previews:    cfg.Previews,
		callTimeout: cfg.CallTimeout,
		clock:       clock.OrReal(cfg.Clock),
		logger:      cfg.Logger,
	}
	var err error
	if o.cipher == nil {
		if o.cipher, err = aead.Lookup(""); err != nil {
			return nil, err
		}
	}
	if o.wrapper == nil {
		if o.wrapper, err = keywrap.Lookup(""); err != nil {
			return nil, err
		}
	}
	if o.callTimeout <= 0 {
		o.callTimeout = DefaultCallTimeout
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o, nil
}

// recipient is a resolved recipient.
type recipient struct {
	identity string
	key      keywrap.PublicKey
}

// operation carries one Share call's correlation state.
type operation struct {
	id     string
	logger *slog.Logger
}

// Share encrypts blob for recipients and publishes it, returning the
// published envelope. Every ciphertext (the preview's, then the
// blob's) is uploaded before any envelope is published, so an upload
// failure leaves no metadata behind.
func (o *Orchestrator) Share(ctx context.Context, blob Blob, recipients []string, options Options) (*envelope.Envelope, error) {
	identities, err := normalizeRecipients(recipients)
	if err != nil {
		return nil, err
	}
	if blob.Name == "" {
		return nil, failure.New(failure.Invalid, "blob has no name")
	}
	if blob.MediaType == "" {
		blob.MediaType = "application/octet-stream"
	}

	op := operation{id: uuid.NewString()}
	op.logger = o.logger.With("operation", op.id, "sender", o.sender.Name)
	op.logger.Debug("share started", "name", blob.Name, "size", len(blob.Data), "recipients", len(identities))

	resolved, err := o.resolve(ctx, identities)
	if err != nil {
		op.logger.Warn("share aborted before upload", "error", err)
		return nil, err
	}

	// uploaded is in publish order: the preview first, so the main
	// envelope never names an unpublished preview.
	var uploaded []*envelope.Envelope
	var previewAddress *cas.Address
	if options.GeneratePreview && preview.Eligible(blob.MediaType) {
		generated, ok, err := o.previews.Generate(blob.Data, blob.MediaType)
		switch {
		case err != nil:
			op.logger.Warn("preview generation failed; sharing without preview", "error", err)
		case ok:
			previewEnvelope, err := o.seal(ctx, Blob{
				Name:      blob.Name + ".preview",
				MediaType: generated.MediaType,
				Data:      generated.Data,
			}, resolved, options.Compression, nil)
			if err != nil {
				return nil, fmt.Errorf("sharing preview: %w", err)
			}
			previewAddress = &previewEnvelope.Address
			uploaded = append(uploaded, previewEnvelope)
		}
	}

	env, err := o.seal(ctx, blob, resolved, options.Compression, previewAddress)
	if err != nil {
		o.recordOrphans(ctx, op, uploaded, err)
		return nil, err
	}
	uploaded = append(uploaded, env)

	for _, pending := range uploaded {
		publishCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		err := o.metadata.Publish(publishCtx, pending)
		cancel()
		if err != nil {
			o.recordOrphans(ctx, op, uploaded, err)
			return nil, failure.Wrap(failure.MetadataPublishFailure, err, "publishing envelope for "+pending.Descriptor.Name)
		}
		op.logger.Debug("envelope published", "address", pending.Address.String(), "name", pending.Descriptor.Name)
	}

	if o.index != nil {
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		err := o.index.Index(callCtx, env.IndexEntry())
		cancel()
		if err != nil {
			op.logger.Warn("index update failed; share is still complete",
				"address", env.Address.String(),
				"error", err,
			)
		}
	}

	op.logger.Info("share complete",
		"address", env.Address.String(),
		"recipients", len(env.Recipients),
		"compression", env.Compression,
		"preview", previewAddress != nil,
	)
	return env, nil
}

// normalizeRecipients drops duplicates, keeping first-seen order.
func normalizeRecipients(recipients []string) ([]string, error) {
	seen := make(map[string]struct{}, len(recipients))
	result := make([]string, 0, len(recipients))
	for _, identity := range recipients {
		if identity == "" {
			return nil, failure.New(failure.Invalid, "recipient identity is empty")
		}
		if _, duplicate := seen[identity]; duplicate {
			continue
		}
		seen[identity] = struct{}{}
		result = append(result, identity)
	}
	if len(result) == 0 {
		return nil, failure.New(failure.Invalid, "at least one recipient is required")
	}
	return result, nil
}

// resolve looks up every recipient's key. It stops at the first
// failure: a partially resolved recipient set is never used.
func (o *Orchestrator) resolve(ctx context.Context, identities []string) ([]recipient, error) {
	resolved := make([]recipient, 0, len(identities))
	for _, identity := range identities {
		callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
		key, err := o.directory.Lookup(callCtx, identity)
		cancel()
		switch {
		case failure.Is(err, failure.NotFound):
			return nil, failure.New(failure.RecipientKeyMissing, "recipient %q has no published public key", identity)
		case err != nil:
			return nil, collaboratorError(err, fmt.Sprintf("looking up public key for %s", identity))
		case key.IsZero():
			return nil, failure.New(failure.RecipientKeyMissing, "recipient %q published an empty public key", identity)
		}
		resolved = append(resolved, recipient{identity: identity, key: key})
	}
	return resolved, nil
}

// seal compresses, encrypts, wraps and uploads a single blob and
// returns its unpublished envelope. previewAddress is recorded as
// given and is part of the authenticated header.
func (o *Orchestrator) seal(ctx context.Context, blob Blob, recipients []recipient, mode compression.Mode, previewAddress *cas.Address) (*envelope.Envelope, error) {
	algorithm, err := mode.Resolve(blob.Data, blob.MediaType)
	if err != nil {
		return nil, failure.Wrap(failure.Invalid, err, "compression")
	}
	compressed, algorithm, err := compression.Compress(blob.Data, algorithm)
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "compressing")
	}

	env := &envelope.Envelope{
		Version:     envelope.Version,
		Cipher:      o.cipher.Name(),
		KeyWrap:     o.wrapper.Scheme(),
		Compression: algorithm.String(),
		Sender:      o.sender.Name,
		SenderKey:   o.sender.Keypair.Public,
		Recipients:  make([]string, 0, len(recipients)),
		WrappedKeys: make([]envelope.WrappedKey, 0, len(recipients)),
		Descriptor: envelope.Descriptor{
			Name:      blob.Name,
			MediaType: blob.MediaType,
			Size:      int64(len(blob.Data)),
			Preview:   previewAddress,
		},
	}
	additionalData, err := env.AdditionalData()
	if err != nil {
		return nil, err
	}

	contentKey, err := o.cipher.GenerateKey()
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "generating content key")
	}
	defer contentKey.Close()

	ciphertext, nonce, err := o.cipher.Encrypt(compressed, contentKey, additionalData)
	if err != nil {
		return nil, err
	}
	env.Nonce = nonce
	for _, r := range recipients {
		record, err := o.wrapper.Wrap(contentKey, r.key)
		if err != nil {
			return nil, failure.Wrap(failure.Internal, err, fmt.Sprintf("wrapping content key for %s", r.identity))
		}
		env.Recipients = append(env.Recipients, r.identity)
		env.WrappedKeys = append(env.WrappedKeys, envelope.WrappedKey{
			Recipient:    r.identity,
			RecipientKey: r.key,
			Record:       record,
		})
	}

	uploadCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	address, err := o.storage.Put(uploadCtx, ciphertext)
	cancel()
	if err != nil {
		return nil, failure.Wrap(failure.UploadFailure, err, "uploading ciphertext for "+blob.Name)
	}
	env.Address = address
	env.CreatedAt = o.clock.Now().UnixMilli()
	if err := env.Validate(); err != nil {
		return nil, failure.Wrap(failure.Internal, err, "built envelope")
	}
	return env, nil
}

// recordOrphans logs and records every upload of a share that did not
// complete, including any of its envelopes already published. The
// ledger writes outlive a cancelled share context.
func (o *Orchestrator) recordOrphans(ctx context.Context, op operation, uploaded []*envelope.Envelope, cause error) {
	if len(uploaded) == 0 {
		return
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.callTimeout)
	defer cancel()
	for _, env := range uploaded {
		op.logger.Error("ciphertext orphaned: share did not complete",
			"address", env.Address.String(),
			"name", env.Descriptor.Name,
			"error", cause,
		)
		if o.orphans == nil {
			continue
		}
		err := o.orphans.Record(recordCtx, orphan.Entry{
			OperationID: op.id + "/" + env.Address.Short(),
			Address:     env.Address,
			Name:        env.Descriptor.Name,
			Recipients:  len(env.Recipients),
			Reason:      cause.Error(),
		})
		if err != nil {
			op.logger.Error("recording orphan failed", "address", env.Address.String(), "error", err)
		}
	}
}

// collaboratorError keeps a collaborator's failure kind and classifies
// unkinded errors (transport failures, deadlines) as transient.
func collaboratorError(err error, action string) error {
	var kinded *failure.Error
	if errors.As(err, &kinded) {
		return failure.Wrap(kinded.Kind, err, action)
	}
	return failure.Wrap(failure.Transient, err, action)
}
