// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hubstore

import (
	"context"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
)

// Directory implements envelope.Directory.
type Directory struct {
	store *Store
}

// Publish records identity's current public key, replacing any
// earlier one.
func (d *Directory) Publish(ctx context.Context, identity string, key keywrap.PublicKey) error {
	if identity == "" {
		return failure.New(failure.Invalid, "identity is empty")
	}
	if key.IsZero() {
		return failure.New(failure.Invalid, "public key for %s is all zeros", identity)
	}
	err := d.store.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO directory (identity, public_key, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (identity) DO UPDATE SET
				public_key = excluded.public_key,
				updated_at = excluded.updated_at`, &sqlitex.ExecOptions{
			Args: []any{identity, key[:], d.store.clock.Now().UnixMilli()},
		})
	})
	if err != nil {
		return failure.Wrap(failure.Internal, err, "publishing public key")
	}
	d.store.logger.Info("public key published", "identity", identity, "public_key", key.String())
	return nil
}

// Lookup returns identity's public key or failure.NotFound.
func (d *Directory) Lookup(ctx context.Context, identity string) (keywrap.PublicKey, error) {
	var key keywrap.PublicKey
	found := false
	err := d.store.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT public_key FROM directory WHERE identity = ?`, &sqlitex.ExecOptions{
			Args: []any{identity},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				if stmt.ColumnLen(0) != keywrap.KeySize {
					return failure.New(failure.Internal, "stored key for %s has %d bytes", identity, stmt.ColumnLen(0))
				}
				stmt.ColumnBytes(0, key[:])
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return keywrap.PublicKey{}, failure.Wrap(failure.Internal, err, "looking up public key")
	}
	if !found {
		return keywrap.PublicKey{}, failure.New(failure.NotFound, "identity %q has not published a public key", identity)
	}
	return key, nil
}
