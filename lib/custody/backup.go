// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/bureau-foundation/lockbox/lib/aead"
	"github.com/bureau-foundation/lockbox/lib/codec"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
	"github.com/bureau-foundation/lockbox/lib/secret"
)

// BackupVersion is the backup blob format version.
const BackupVersion = 1

// KDF names.
const (
	PBKDF2SHA256 = "pbkdf2-sha256"
	Argon2id     = "argon2id"
)

const (
	saltSize = 16

	// DefaultPBKDF2Iterations is the PBKDF2-SHA256 work factor for new
	// backups.
	DefaultPBKDF2Iterations = 600_000

	// MinPBKDF2Iterations is the lowest work factor Import accepts.
	MinPBKDF2Iterations = 100_000

	maxPBKDF2Iterations = 50_000_000

	// DefaultArgon2Time and DefaultArgon2Memory (KiB) are the Argon2id
	// parameters for new backups.
	DefaultArgon2Time   = 3
	DefaultArgon2Memory = 64 * 1024

	minArgon2Memory = 19 * 1024
	maxArgon2Memory = 4 * 1024 * 1024
	maxArgon2Time   = 64
	argon2Threads   = 4
)

// KDFParams selects the password stretching function and its cost.
type KDFParams struct {
	// Name is PBKDF2SHA256 or Argon2id.
	Name string

	// Iterations is the PBKDF2 iteration count or the Argon2id time
	// parameter. Zero selects the default.
	Iterations uint32

	// Memory is the Argon2id memory in KiB. Ignored for PBKDF2. Zero
	// selects the default.
	Memory uint32
}

// withDefaults fills zero fields.
func (p KDFParams) withDefaults() KDFParams {
	if p.Name == "" {
		p.Name = PBKDF2SHA256
	}
	switch p.Name {
	case PBKDF2SHA256:
		if p.Iterations == 0 {
			p.Iterations = DefaultPBKDF2Iterations
		}
		p.Memory = 0
	case Argon2id:
		if p.Iterations == 0 {
			p.Iterations = DefaultArgon2Time
		}
		if p.Memory == 0 {
			p.Memory = DefaultArgon2Memory
		}
	}
	return p
}

// Validate reports whether p, after defaults, is acceptable for a new
// backup.
func (p KDFParams) Validate() error {
	return p.withDefaults().check()
}

// check enforces the floors and ceilings on KDF cost. The floors
// refuse blobs whose work factor was lowered; the ceilings refuse
// blobs crafted to exhaust memory or CPU on import.
func (p KDFParams) check() error {
	switch p.Name {
	case PBKDF2SHA256:
		if p.Iterations < MinPBKDF2Iterations || p.Iterations > maxPBKDF2Iterations {
			return failure.New(failure.Invalid, "pbkdf2 iterations %d outside [%d, %d]",
				p.Iterations, MinPBKDF2Iterations, maxPBKDF2Iterations)
		}
	case Argon2id:
		if p.Iterations < 1 || p.Iterations > maxArgon2Time {
			return failure.New(failure.Invalid, "argon2id time %d outside [1, %d]", p.Iterations, maxArgon2Time)
		}
		if p.Memory < minArgon2Memory || p.Memory > maxArgon2Memory {
			return failure.New(failure.Invalid, "argon2id memory %d KiB outside [%d, %d]",
				p.Memory, minArgon2Memory, maxArgon2Memory)
		}
	default:
		return failure.New(failure.Invalid, "unknown backup kdf %q", p.Name)
	}
	return nil
}

func (p KDFParams) derive(password, salt []byte) (*secret.Buffer, error) {
	var key []byte
	switch p.Name {
	case PBKDF2SHA256:
		key = pbkdf2.Key(password, salt, int(p.Iterations), aead.KeySize, sha256.New)
	case Argon2id:
		key = argon2.IDKey(password, salt, p.Iterations, p.Memory, argon2Threads, aead.KeySize)
	default:
		return nil, failure.New(failure.Invalid, "unknown backup kdf %q", p.Name)
	}
	return secret.NewFromBytes(key)
}

// backupHeader is the authenticated, unencrypted part of a blob.
type backupHeader struct {
	Version       int    `cbor:"version"`
	Cipher        string `cbor:"cipher"`
	KDF           string `cbor:"kdf"`
	KDFSalt       []byte `cbor:"kdf_salt"`
	KDFIterations uint32 `cbor:"kdf_iterations"`
	KDFMemory     uint32 `cbor:"kdf_memory,omitempty"`
}

// backupBlob is the serialized backup. The header fields are repeated
// so the blob is a single flat CBOR map.
type backupBlob struct {
	backupHeader
	Nonce      []byte `cbor:"nonce"`
	Ciphertext []byte `cbor:"ciphertext"`
}

// identityPayload is the plaintext inside backup and escrow blobs.
type identityPayload struct {
	Name      string            `cbor:"name"`
	PublicKey keywrap.PublicKey `cbor:"public_key"`
	SecretKey []byte            `cbor:"secret_key"`
	CreatedAt int64             `cbor:"created_at"`
}

func marshalIdentity(identity *Identity) ([]byte, error) {
	secretCopy := make([]byte, identity.Keypair.Secret.Len())
	copy(secretCopy, identity.Keypair.Secret.Bytes())
	defer secret.Zero(secretCopy)

	return codec.Marshal(identityPayload{
		Name:      identity.Name,
		PublicKey: identity.Keypair.Public,
		SecretKey: secretCopy,
		CreatedAt: identity.CreatedAt.UnixMilli(),
	})
}

// unmarshalIdentity decodes a payload and checks that its secret key
// produces its public key. plaintext is zeroed.
func unmarshalIdentity(plaintext []byte) (name string, keypair *keywrap.Keypair, createdAt time.Time, err error) {
	defer secret.Zero(plaintext)

	var payload identityPayload
	if err := codec.Unmarshal(plaintext, &payload); err != nil {
		return "", nil, time.Time{}, failure.Wrap(failure.Invalid, err, "decoding identity payload")
	}
	defer secret.Zero(payload.SecretKey)
	if len(payload.SecretKey) != keywrap.KeySize {
		return "", nil, time.Time{}, failure.New(failure.Invalid, "identity payload secret key is %d bytes", len(payload.SecretKey))
	}

	secretKey, err := secret.NewFromBytes(payload.SecretKey)
	if err != nil {
		return "", nil, time.Time{}, failure.Wrap(failure.Internal, err, "protecting imported secret")
	}
	keypair, err = keywrap.KeypairFromSecret(secretKey)
	if err != nil {
		secretKey.Close()
		return "", nil, time.Time{}, failure.Wrap(failure.Invalid, err, "imported identity")
	}
	if !keypair.Public.Equal(payload.PublicKey) {
		keypair.Close()
		return "", nil, time.Time{}, failure.New(failure.Invalid, "imported identity: public key does not match secret key")
	}
	return payload.Name, keypair, time.UnixMilli(payload.CreatedAt), nil
}

// SealBackup encrypts identity under password. cipherName selects the
// content cipher ("" for the default).
func SealBackup(identity *Identity, password []byte, params KDFParams, cipherName string) ([]byte, error) {
	if len(password) == 0 {
		return nil, failure.New(failure.Invalid, "backup password is empty")
	}
	params = params.withDefaults()
	if err := params.check(); err != nil {
		return nil, err
	}
	cipher, err := aead.Lookup(cipherName)
	if err != nil {
		return nil, err
	}

	header := backupHeader{
		Version:       BackupVersion,
		Cipher:        cipher.Name(),
		KDF:           params.Name,
		KDFSalt:       make([]byte, saltSize),
		KDFIterations: params.Iterations,
		KDFMemory:     params.Memory,
	}
	if _, err := io.ReadFull(rand.Reader, header.KDFSalt); err != nil {
		return nil, failure.New(failure.Internal, "generating backup salt: %w", err)
	}
	additionalData, err := codec.Marshal(header)
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "encoding backup header")
	}

	key, err := params.derive(password, header.KDFSalt)
	if err != nil {
		return nil, err
	}
	defer key.Close()

	plaintext, err := marshalIdentity(identity)
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "encoding identity")
	}
	defer secret.Zero(plaintext)

	ciphertext, nonce, err := cipher.Encrypt(plaintext, key, additionalData)
	if err != nil {
		return nil, err
	}
	blob, err := codec.Marshal(backupBlob{backupHeader: header, Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "encoding backup blob")
	}
	return blob, nil
}

// OpenBackup decrypts a blob produced by SealBackup. A wrong password
// or any modification of the blob is failure.AuthFailure.
func OpenBackup(blob, password []byte) (name string, keypair *keywrap.Keypair, createdAt time.Time, err error) {
	var decoded backupBlob
	if err := codec.Unmarshal(blob, &decoded); err != nil {
		return "", nil, time.Time{}, failure.Wrap(failure.Invalid, err, "decoding backup blob")
	}
	header := decoded.backupHeader
	if header.Version != BackupVersion {
		return "", nil, time.Time{}, failure.New(failure.Invalid, "unsupported backup version %d", header.Version)
	}
	if len(header.KDFSalt) < saltSize {
		return "", nil, time.Time{}, failure.New(failure.Invalid, "backup salt is %d bytes, want at least %d", len(header.KDFSalt), saltSize)
	}
	params := KDFParams{Name: header.KDF, Iterations: header.KDFIterations, Memory: header.KDFMemory}
	if err := params.check(); err != nil {
		return "", nil, time.Time{}, err
	}
	cipher, err := aead.Lookup(header.Cipher)
	if err != nil {
		return "", nil, time.Time{}, err
	}

	additionalData, err := codec.Marshal(header)
	if err != nil {
		return "", nil, time.Time{}, failure.Wrap(failure.Internal, err, "encoding backup header")
	}
	key, err := params.derive(password, header.KDFSalt)
	if err != nil {
		return "", nil, time.Time{}, err
	}
	defer key.Close()

	plaintext, err := cipher.Decrypt(decoded.Ciphertext, key, decoded.Nonce, additionalData)
	if err != nil {
		if failure.Is(err, failure.AuthFailure) {
			return "", nil, time.Time{}, failure.New(failure.AuthFailure, "backup did not decrypt: wrong password or corrupted blob")
		}
		return "", nil, time.Time{}, err
	}
	return unmarshalIdentity(plaintext)
}

// Export returns a password-protected backup of the identity,
// creating the identity first if none exists.
func (s *Store) Export(ctx context.Context, password []byte, params KDFParams, cipherName string) ([]byte, error) {
	identity, err := s.LoadOrCreate(ctx)
	if err != nil {
		return nil, err
	}
	blob, err := SealBackup(identity, password, params, cipherName)
	if err != nil {
		return nil, err
	}
	s.logger.Info("identity exported", "identity", identity.Name, "kdf", params.withDefaults().Name)
	return blob, nil
}

// Import restores an identity from a backup blob. A blob for a
// different identity name is failure.Invalid. Importing over an
// existing identity with a different key is failure.Conflict unless
// replace is set; importing the key already stored is a no-op.
func (s *Store) Import(ctx context.Context, blob, password []byte, replace bool) (*Identity, error) {
	name, keypair, createdAt, err := OpenBackup(blob, password)
	if err != nil {
		return nil, err
	}
	if name != s.name {
		keypair.Close()
		return nil, failure.New(failure.Invalid, "backup holds identity %q but this device is configured for %q", name, s.name)
	}
	return s.install(ctx, keypair, createdAt, replace)
}
