// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hubstore

import (
	"context"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/envelope"
	"github.com/bureau-foundation/lockbox/lib/failure"
)

// DefaultSearchLimit and MaxSearchLimit bound Search results.
const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 500
)

// Index implements envelope.Index and answers searches.
type Index struct {
	store *Store
}

// Index records entry, replacing an earlier entry for the same
// address. An address indexed by a different owner is a
// failure.Conflict.
func (x *Index) Index(ctx context.Context, entry envelope.IndexEntry) error {
	if entry.Address.IsZero() || entry.Owner == "" {
		return failure.New(failure.Invalid, "index entry needs an address and an owner")
	}
	return x.store.pool.With(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, `
			INSERT INTO index_entries
				(address, owner, name, media_type, size, recipient_count, has_preview, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (address) DO UPDATE SET
				owner = excluded.owner,
				name = excluded.name,
				media_type = excluded.media_type,
				size = excluded.size,
				recipient_count = excluded.recipient_count,
				has_preview = excluded.has_preview,
				created_at = excluded.created_at
			WHERE index_entries.owner = excluded.owner`, &sqlitex.ExecOptions{
			Args: []any{
				entry.Address.String(),
				entry.Owner,
				entry.Name,
				entry.MediaType,
				entry.Size,
				entry.RecipientCount,
				entry.HasPreview,
				entry.CreatedAt,
			},
		})
		if err != nil {
			return failure.Wrap(failure.Internal, err, "indexing entry")
		}
		if conn.Changes() == 0 {
			return failure.New(failure.Conflict, "%s is already indexed by another owner", entry.Address.Short())
		}
		return nil
	})
}

// Search returns entries visible to requester (its own shares and
// shares it received) whose name contains query, newest first. An
// empty query matches everything.
func (x *Index) Search(ctx context.Context, requester, query string, limit int) ([]envelope.IndexEntry, error) {
	if requester == "" {
		return nil, failure.New(failure.Invalid, "search requires a requester")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)
	pattern := "%" + escapeLike(query) + "%"

	var entries []envelope.IndexEntry
	err := x.store.pool.With(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT address, owner, name, media_type, size, recipient_count, has_preview, created_at
			FROM index_entries i
			WHERE (i.owner = ?1
				OR EXISTS (SELECT 1 FROM participants p WHERE p.address = i.address AND p.identity = ?1))
			  AND i.name LIKE ?2 ESCAPE '\'
			ORDER BY i.created_at DESC, i.address
			LIMIT ?3`, &sqlitex.ExecOptions{
			Args: []any{requester, pattern, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				address, err := cas.ParseAddress(stmt.ColumnText(0))
				if err != nil {
					return err
				}
				entries = append(entries, envelope.IndexEntry{
					Address:        address,
					Owner:          stmt.ColumnText(1),
					Name:           stmt.ColumnText(2),
					MediaType:      stmt.ColumnText(3),
					Size:           stmt.ColumnInt64(4),
					RecipientCount: stmt.ColumnInt(5),
					HasPreview:     stmt.ColumnInt(6) != 0,
					CreatedAt:      stmt.ColumnInt64(7),
				})
				return nil
			},
		})
	})
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "searching index")
	}
	return entries, nil
}

func escapeLike(query string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(query)
}
