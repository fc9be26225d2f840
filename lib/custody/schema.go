// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

// Schema creates the identities table. Callers include it in the
// sqlitepool.Config.Schema of the client state database.
const Schema = `
CREATE TABLE IF NOT EXISTS identities (
	name        TEXT PRIMARY KEY,
	public_key  BLOB NOT NULL,
	secret_key  BLOB NOT NULL,
	created_at  INTEGER NOT NULL
) STRICT;
`
