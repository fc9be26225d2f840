// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/lockbox/lib/clock"
	"github.com/bureau-foundation/lockbox/lib/envelope"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
	"github.com/bureau-foundation/lockbox/lib/secret"
	"github.com/bureau-foundation/lockbox/lib/sqlitepool"
)

// Identity is a named identity keypair.
type Identity struct {
	Name      string
	Keypair   *keywrap.Keypair
	CreatedAt time.Time
}

// Config configures a Store.
type Config struct {
	// Pool is the client state database. Its schema must include
	// Schema.
	Pool *sqlitepool.Pool

	// Name is the local identity name, as published to the directory.
	Name string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Store is the local identity store. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	name   string
	clock  clock.Clock
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Identity
}

// NewStore returns a Store for cfg.Name.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("custody: Pool is required")
	}
	if cfg.Name == "" {
		return nil, failure.New(failure.Invalid, "custody: identity name is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		pool:   cfg.Pool,
		name:   cfg.Name,
		clock:  clock.OrReal(cfg.Clock),
		logger: logger,
	}, nil
}

// Name returns the identity name the store manages.
func (s *Store) Name() string { return s.name }

// LoadOrCreate returns the identity, generating and persisting a new
// keypair the first time. The returned Identity is owned by the Store
// and stays valid until Close or a replacing Import.
func (s *Store) LoadOrCreate(ctx context.Context) (*Identity, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return s.cached, nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "opening identity store")
	}
	defer s.pool.Put(conn)

	identity, err := s.read(conn)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		if err := s.create(conn); err != nil {
			return nil, err
		}
		// Re-read: another process may have won the insert.
		identity, err = s.read(conn)
		if err != nil {
			return nil, err
		}
		if identity == nil {
			return nil, failure.New(failure.Internal, "identity %q vanished after insert", s.name)
		}
	}

	s.cached = identity
	return identity, nil
}

// Load returns the identity without creating one. A missing identity
// is failure.NotFound.
func (s *Store) Load(ctx context.Context) (*Identity, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return s.cached, nil
	}
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "opening identity store")
	}
	defer s.pool.Put(conn)

	identity, err := s.read(conn)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, failure.New(failure.NotFound, "no identity %q on this device; run 'lockbox init'", s.name)
	}
	s.cached = identity
	return identity, nil
}

// PublishPublicKey announces the identity's public key to directory.
func (s *Store) PublishPublicKey(ctx context.Context, directory envelope.Directory) error {
	identity, err := s.LoadOrCreate(ctx)
	if err != nil {
		return err
	}
	if err := directory.Publish(ctx, identity.Name, identity.Keypair.Public); err != nil {
		return fmt.Errorf("publishing public key for %s: %w", identity.Name, err)
	}
	s.logger.Info("public key published", "identity", identity.Name, "public_key", identity.Keypair.Public.String())
	return nil
}

// Close releases the cached identity.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		return nil
	}
	err := s.cached.Keypair.Close()
	s.cached = nil
	return err
}

func (s *Store) create(conn *sqlite.Conn) error {
	keypair, err := keywrap.GenerateKeypair()
	if err != nil {
		return failure.Wrap(failure.Internal, err, "generating identity")
	}
	defer keypair.Close()

	err = sqlitex.Execute(conn, `
		INSERT INTO identities (name, public_key, secret_key, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING`, &sqlitex.ExecOptions{
		Args: []any{s.name, keypair.Public[:], keypair.Secret.Bytes(), s.clock.Now().UnixMilli()},
	})
	if err != nil {
		return failure.Wrap(failure.Internal, err, "storing identity")
	}
	if conn.Changes() > 0 {
		s.logger.Info("identity created", "identity", s.name, "public_key", keypair.Public.String())
	}
	return nil
}

// read loads the named identity, or returns nil if none is stored.
// The secret key is copied straight from the column into locked
// memory.
func (s *Store) read(conn *sqlite.Conn) (*Identity, error) {
	var identity *Identity
	var stored keywrap.PublicKey
	err := sqlitex.Execute(conn, `
		SELECT public_key, secret_key, created_at FROM identities WHERE name = ?`, &sqlitex.ExecOptions{
		Args: []any{s.name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if stmt.ColumnLen(0) != keywrap.KeySize || stmt.ColumnLen(1) != keywrap.KeySize {
				return fmt.Errorf("identity %q has malformed key columns", s.name)
			}
			stmt.ColumnBytes(0, stored[:])
			secretKey, err := secret.New(keywrap.KeySize)
			if err != nil {
				return err
			}
			stmt.ColumnBytes(1, secretKey.Bytes())
			keypair, err := keywrap.KeypairFromSecret(secretKey)
			if err != nil {
				secretKey.Close()
				return err
			}
			identity = &Identity{
				Name:      s.name,
				Keypair:   keypair,
				CreatedAt: time.UnixMilli(stmt.ColumnInt64(2)),
			}
			return nil
		},
	})
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "loading identity")
	}
	if identity != nil && !identity.Keypair.Public.Equal(stored) {
		identity.Keypair.Close()
		return nil, failure.New(failure.Internal, "identity %q: stored public key does not match its secret key", s.name)
	}
	return identity, nil
}

// install writes an identity recovered from a backup or escrow blob.
// The store takes ownership of keypair.
func (s *Store) install(ctx context.Context, keypair *keywrap.Keypair, createdAt time.Time, replace bool) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.pool.Take(ctx)
	if err != nil {
		keypair.Close()
		return nil, failure.Wrap(failure.Internal, err, "opening identity store")
	}
	defer s.pool.Put(conn)

	existing, err := s.read(conn)
	if err != nil {
		keypair.Close()
		return nil, err
	}
	if existing != nil {
		same := existing.Keypair.Public.Equal(keypair.Public)
		existing.Keypair.Close()
		if same {
			keypair.Close()
			if s.cached == nil {
				if s.cached, err = s.read(conn); err != nil {
					return nil, err
				}
			}
			return s.cached, nil
		}
		if !replace {
			keypair.Close()
			return nil, failure.New(failure.Conflict,
				"identity %q already exists on this device with a different key; import with --replace to overwrite it", s.name)
		}
	}

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		keypair.Close()
		return nil, failure.Wrap(failure.Internal, err, "beginning identity import")
	}
	err = sqlitex.Execute(conn, `
		INSERT INTO identities (name, public_key, secret_key, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			public_key = excluded.public_key,
			secret_key = excluded.secret_key,
			created_at = excluded.created_at`, &sqlitex.ExecOptions{
		Args: []any{s.name, keypair.Public[:], keypair.Secret.Bytes(), createdAt.UnixMilli()},
	})
	endFn(&err)
	if err != nil {
		keypair.Close()
		return nil, failure.Wrap(failure.Internal, err, "storing imported identity")
	}

	if s.cached != nil {
		s.cached.Keypair.Close()
	}
	s.cached = &Identity{Name: s.name, Keypair: keypair, CreatedAt: createdAt}
	s.logger.Info("identity imported",
		"identity", s.name,
		"public_key", keypair.Public.String(),
		"replaced", existing != nil,
	)
	return s.cached, nil
}
