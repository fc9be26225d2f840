// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hubstore

import (
	"context"
	"testing"
	"time"

	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/clock"
	"github.com/bureau-foundation/lockbox/lib/envelope"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
	"github.com/bureau-foundation/lockbox/lib/testutil"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(testutil.StateDB(t, Schema), clock.Fake(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)), nil)
}

func testEnvelope(sender string, recipients ...string) *envelope.Envelope {
	env := &envelope.Envelope{
		Version:     envelope.Version,
		Address:     cas.Compute([]byte(testutil.UniqueID("ciphertext"))),
		Cipher:      "chacha20-poly1305",
		KeyWrap:     "nacl-box",
		Nonce:       make([]byte, 12),
		Compression: "none",
		Sender:      sender,
		Recipients:  recipients,
		Descriptor:  envelope.Descriptor{Name: "notes.txt", MediaType: "text/plain", Size: 11},
		CreatedAt:   1_750_000_000_000,
	}
	for _, recipient := range recipients {
		env.WrappedKeys = append(env.WrappedKeys, envelope.WrappedKey{
			Recipient: recipient,
			Record:    keywrap.Record{Ciphertext: []byte{1}, Nonce: []byte{2}},
		})
	}
	return env
}

func TestDirectory(t *testing.T) {
	directory := newStore(t).Directory()
	ctx := context.Background()

	_, err := directory.Lookup(ctx, "alice")
	testutil.RequireKind(t, err, failure.NotFound)

	keypair, err := keywrap.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer keypair.Close()
	if err := directory.Publish(ctx, "alice", keypair.Public); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	got, err := directory.Lookup(ctx, "alice")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !got.Equal(keypair.Public) {
		t.Errorf("Lookup = %s, want %s", got, keypair.Public)
	}

	// Republishing replaces the key.
	rotated, err := keywrap.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	defer rotated.Close()
	if err := directory.Publish(ctx, "alice", rotated.Public); err != nil {
		t.Fatalf("Publish rotated: %v", err)
	}
	if got, _ := directory.Lookup(ctx, "alice"); !got.Equal(rotated.Public) {
		t.Error("rotated key not returned")
	}

	testutil.RequireKind(t, directory.Publish(ctx, "", rotated.Public), failure.Invalid)
	testutil.RequireKind(t, directory.Publish(ctx, "bob", keywrap.PublicKey{}), failure.Invalid)
}

func TestMetadataAccessCheck(t *testing.T) {
	metadata := newStore(t).Metadata()
	ctx := context.Background()
	env := testEnvelope("alice", "bob", "carol")

	if err := metadata.Publish(ctx, env); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, identity := range []string{"alice", "bob", "carol"} {
		got, err := metadata.Fetch(ctx, env.Address, identity)
		if err != nil {
			t.Fatalf("Fetch as %s: %v", identity, err)
		}
		if got.Address != env.Address || len(got.WrappedKeys) != 2 {
			t.Errorf("Fetch as %s returned %s", identity, got)
		}
	}

	_, err := metadata.Fetch(ctx, env.Address, "mallory")
	testutil.RequireKind(t, err, failure.AccessDenied)

	_, err = metadata.Fetch(ctx, cas.Compute([]byte("never published")), "alice")
	testutil.RequireKind(t, err, failure.NotFound)
}

func TestMetadataImmutable(t *testing.T) {
	metadata := newStore(t).Metadata()
	ctx := context.Background()
	env := testEnvelope("alice", "bob")

	if err := metadata.Publish(ctx, env); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := metadata.Publish(ctx, env); err != nil {
		t.Fatalf("identical re-publish: %v", err)
	}

	changed := *env
	changed.Recipients = []string{"mallory"}
	changed.WrappedKeys = []envelope.WrappedKey{{Recipient: "mallory"}}
	testutil.RequireKind(t, metadata.Publish(ctx, &changed), failure.Conflict)

	// The rejected publish did not grant mallory access.
	_, err := metadata.Fetch(ctx, env.Address, "mallory")
	testutil.RequireKind(t, err, failure.AccessDenied)
}

func TestMetadataRejectsInvalid(t *testing.T) {
	env := testEnvelope("alice", "bob")
	env.WrappedKeys = nil
	testutil.RequireKind(t, newStore(t).Metadata().Publish(context.Background(), env), failure.Invalid)
}

func TestIndexSearch(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	shared := testEnvelope("alice", "bob")
	shared.Descriptor.Name = "quarterly_report.pdf"
	private := testEnvelope("carol", "dave")
	private.Descriptor.Name = "report-draft.txt"
	for _, env := range []*envelope.Envelope{shared, private} {
		if err := store.Metadata().Publish(ctx, env); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if err := store.Index().Index(ctx, env.IndexEntry()); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}

	tests := []struct {
		requester string
		query     string
		want      int
	}{
		{"alice", "report", 1},
		{"bob", "report", 1},
		{"carol", "report", 1},
		{"mallory", "report", 0},
		{"alice", "", 1},
		// Underscore is literal, not a LIKE wildcard.
		{"alice", "y_r", 1},
		{"carol", "t_d", 0},
	}
	for _, test := range tests {
		entries, err := store.Index().Search(ctx, test.requester, test.query, 0)
		if err != nil {
			t.Fatalf("Search(%s, %q): %v", test.requester, test.query, err)
		}
		if len(entries) != test.want {
			t.Errorf("Search(%s, %q) returned %d entries, want %d", test.requester, test.query, len(entries), test.want)
		}
	}

	entries, _ := store.Index().Search(ctx, "bob", "quarterly", 10)
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	entry := entries[0]
	if entry.Owner != "alice" || entry.RecipientCount != 1 || entry.Size != 11 || entry.HasPreview {
		t.Errorf("entry = %+v", entry)
	}

	testutil.RequireKind(t, store.Index().Index(ctx, envelope.IndexEntry{}), failure.Invalid)

	hijack := entry
	hijack.Owner = "mallory"
	hijack.Name = "renamed"
	testutil.RequireKind(t, store.Index().Index(ctx, hijack), failure.Conflict)
	renamed := entry
	renamed.Name = "quarterly-final.pdf"
	if err := store.Index().Index(ctx, renamed); err != nil {
		t.Fatalf("owner re-index: %v", err)
	}
}
