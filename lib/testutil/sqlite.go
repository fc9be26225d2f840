// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bureau-foundation/lockbox/lib/sqlitepool"
)

// StateDB opens a pool on a fresh database file under t.TempDir with
// schema applied. The pool is closed when the test completes.
func StateDB(t *testing.T, schema string) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(context.Background(), sqlitepool.Config{
		Path:   filepath.Join(t.TempDir(), "state.db"),
		Schema: schema,
	})
	if err != nil {
		t.Fatalf("opening state database: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("closing state database: %v", err)
		}
	})
	return pool
}
