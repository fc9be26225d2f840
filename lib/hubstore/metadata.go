// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hubstore

import (
	"bytes"
	"context"
	"errors"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/codec"
	"github.com/bureau-foundation/lockbox/lib/envelope"
	"github.com/bureau-foundation/lockbox/lib/failure"
)

// Metadata implements envelope.Metadata.
type Metadata struct {
	store *Store
}

// Publish stores env and its participant list.
func (m *Metadata) Publish(ctx context.Context, env *envelope.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}
	body, err := codec.Marshal(env)
	if err != nil {
		return failure.Wrap(failure.Internal, err, "encoding envelope")
	}
	address := env.Address.String()

	inserted := false
	err = m.store.pool.With(ctx, func(conn *sqlite.Conn) (err error) {
		endFn, err := sqlitex.ImmediateTransaction(conn)
		if err != nil {
			return err
		}
		defer endFn(&err)

		var existing []byte
		err = sqlitex.Execute(conn, `SELECT body FROM envelopes WHERE address = ?`, &sqlitex.ExecOptions{
			Args: []any{address},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				existing = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, existing)
				return nil
			},
		})
		if err != nil {
			return err
		}
		if existing != nil {
			if bytes.Equal(existing, body) {
				return nil
			}
			return failure.New(failure.Conflict, "a different envelope is already published at %s", env.Address.Short())
		}

		err = sqlitex.Execute(conn, `
			INSERT INTO envelopes (address, sender, body, created_at) VALUES (?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{address, env.Sender, body, env.CreatedAt},
		})
		if err != nil {
			return err
		}
		participants := append([]string{env.Sender}, env.Recipients...)
		for _, identity := range participants {
			err = sqlitex.Execute(conn, `
				INSERT INTO participants (address, identity) VALUES (?, ?)
				ON CONFLICT DO NOTHING`, &sqlitex.ExecOptions{
				Args: []any{address, identity},
			})
			if err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		var kinded *failure.Error
		if errors.As(err, &kinded) {
			return err
		}
		return failure.Wrap(failure.Internal, err, "publishing envelope")
	}
	if inserted {
		m.store.logger.Info("envelope published",
			"address", env.Address.String(),
			"sender", env.Sender,
			"recipients", len(env.Recipients),
		)
	}
	return nil
}

// Fetch returns the envelope at address if requester participates in
// it. Non-participants get failure.AccessDenied; an unknown address is
// failure.NotFound.
func (m *Metadata) Fetch(ctx context.Context, address cas.Address, requester string) (*envelope.Envelope, error) {
	var body []byte
	exists, allowed := false, false
	err := m.store.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT EXISTS (SELECT 1 FROM participants p WHERE p.address = e.address AND p.identity = ?), body
			FROM envelopes e WHERE e.address = ?`, &sqlitex.ExecOptions{
			Args: []any{requester, address.String()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				exists = true
				allowed = stmt.ColumnInt(0) != 0
				if allowed {
					body = make([]byte, stmt.ColumnLen(1))
					stmt.ColumnBytes(1, body)
				}
				return nil
			},
		})
	})
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "fetching envelope")
	}
	if !exists {
		return nil, failure.New(failure.NotFound, "no envelope at %s", address.Short())
	}
	if !allowed {
		m.store.logger.Warn("envelope access denied", "address", address.String(), "requester", requester)
		return nil, failure.New(failure.AccessDenied, "%s is not a participant in %s", requester, address.Short())
	}

	var env envelope.Envelope
	if err := codec.Unmarshal(body, &env); err != nil {
		return nil, failure.Wrap(failure.Internal, err, "decoding stored envelope")
	}
	return &env, nil
}
