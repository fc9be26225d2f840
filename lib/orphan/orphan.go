// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package orphan records ciphertext uploads whose envelope was never
// published. Such blobs are unreachable to recipients and are kept in
// a durable ledger so a later cleanup (or a person running
// 'lockbox orphans list') can find them.
package orphan

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/clock"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/sqlitepool"
)

// Schema creates the orphans table.
const Schema = `
CREATE TABLE IF NOT EXISTS orphans (
	operation_id TEXT PRIMARY KEY,
	address      TEXT NOT NULL,
	name         TEXT NOT NULL,
	recipients   INTEGER NOT NULL,
	reason       TEXT NOT NULL,
	recorded_at  INTEGER NOT NULL
) STRICT;
CREATE INDEX IF NOT EXISTS orphans_address ON orphans (address);
`

// Entry is one orphaned upload.
type Entry struct {
	OperationID string
	Address     cas.Address
	Name        string
	Recipients  int
	Reason      string
	RecordedAt  time.Time
}

// Ledger is the sqlite-backed orphan ledger.
type Ledger struct {
	pool  *sqlitepool.Pool
	clock clock.Clock
}

// NewLedger returns a ledger over pool, whose schema must include
// Schema.
func NewLedger(pool *sqlitepool.Pool, c clock.Clock) *Ledger {
	return &Ledger{pool: pool, clock: clock.OrReal(c)}
}

// Record adds an entry. RecordedAt is set from the ledger's clock
// when zero.
func (l *Ledger) Record(ctx context.Context, entry Entry) error {
	if entry.OperationID == "" {
		return failure.New(failure.Invalid, "orphan entry has no operation id")
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = l.clock.Now()
	}
	return l.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO orphans (operation_id, address, name, recipients, reason, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (operation_id) DO NOTHING`, &sqlitex.ExecOptions{
			Args: []any{
				entry.OperationID,
				entry.Address.String(),
				entry.Name,
				entry.Recipients,
				entry.Reason,
				entry.RecordedAt.UnixMilli(),
			},
		})
		if err != nil {
			return fmt.Errorf("recording orphan %s: %w", entry.Address, err)
		}
		return nil
	})
}

// List returns every entry, oldest first.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := l.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT operation_id, address, name, recipients, reason, recorded_at
			FROM orphans ORDER BY recorded_at, operation_id`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				address, err := cas.ParseAddress(stmt.ColumnText(1))
				if err != nil {
					return fmt.Errorf("orphan %s: %w", stmt.ColumnText(0), err)
				}
				entries = append(entries, Entry{
					OperationID: stmt.ColumnText(0),
					Address:     address,
					Name:        stmt.ColumnText(2),
					Recipients:  stmt.ColumnInt(3),
					Reason:      stmt.ColumnText(4),
					RecordedAt:  time.UnixMilli(stmt.ColumnInt64(5)),
				})
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing orphans: %w", err)
	}
	return entries, nil
}

// Forget removes the entry with operationID. Forgetting an unknown ID
// is failure.NotFound.
func (l *Ledger) Forget(ctx context.Context, operationID string) error {
	return l.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `DELETE FROM orphans WHERE operation_id = ?`, &sqlitex.ExecOptions{
			Args: []any{operationID},
		})
		if err != nil {
			return fmt.Errorf("forgetting orphan %s: %w", operationID, err)
		}
		if conn.Changes() == 0 {
			return failure.New(failure.NotFound, "no orphan with operation id %q", operationID)
		}
		return nil
	})
}
