// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hubstore

import (
	"log/slog"

	"github.com/bureau-foundation/lockbox/lib/clock"
	"github.com/bureau-foundation/lockbox/lib/sqlitepool"
)

// Schema creates the hub tables.
const Schema = `
CREATE TABLE IF NOT EXISTS directory (
	identity    TEXT PRIMARY KEY,
	public_key  BLOB NOT NULL,
	updated_at  INTEGER NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS envelopes (
	address     TEXT PRIMARY KEY,
	sender      TEXT NOT NULL,
	body        BLOB NOT NULL,
	created_at  INTEGER NOT NULL
) STRICT;

CREATE TABLE IF NOT EXISTS participants (
	address     TEXT NOT NULL REFERENCES envelopes (address),
	identity    TEXT NOT NULL,
	PRIMARY KEY (address, identity)
) STRICT, WITHOUT ROWID;

CREATE INDEX IF NOT EXISTS participants_identity ON participants (identity);

CREATE TABLE IF NOT EXISTS index_entries (
	address          TEXT PRIMARY KEY,
	owner            TEXT NOT NULL,
	name             TEXT NOT NULL,
	media_type       TEXT NOT NULL,
	size             INTEGER NOT NULL,
	recipient_count  INTEGER NOT NULL,
	has_preview      INTEGER NOT NULL,
	created_at       INTEGER NOT NULL
) STRICT;

CREATE INDEX IF NOT EXISTS index_entries_owner ON index_entries (owner, created_at);
`

// Store is the hub database. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// New returns a Store over pool, whose schema must include Schema.
func New(pool *sqlitepool.Pool, c clock.Clock, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{pool: pool, clock: clock.OrReal(c), logger: logger}
}

// Directory returns the public-key directory view.
func (s *Store) Directory() *Directory { return &Directory{store: s} }

// Metadata returns the envelope metadata view.
func (s *Store) Metadata() *Metadata { return &Metadata{store: s} }

// Index returns the search index view.
func (s *Store) Index() *Index { return &Index{store: s} }
