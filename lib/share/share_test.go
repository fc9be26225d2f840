// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package share

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/lockbox/lib/aead"
	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/compression"
	"github.com/bureau-foundation/lockbox/lib/custody"
	"github.com/bureau-foundation/lockbox/lib/envelope"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
	"github.com/bureau-foundation/lockbox/lib/orphan"
	"github.com/bureau-foundation/lockbox/lib/preview"
	"github.com/bureau-foundation/lockbox/lib/testutil"
)

type fakeDirectory struct {
	keys map[string]keywrap.PublicKey
}

func (d *fakeDirectory) Publish(_ context.Context, identity string, key keywrap.PublicKey) error {
	d.keys[identity] = key
	return nil
}

func (d *fakeDirectory) Lookup(_ context.Context, identity string) (keywrap.PublicKey, error) {
	key, ok := d.keys[identity]
	if !ok {
		return keywrap.PublicKey{}, failure.New(failure.NotFound, "no key for %s", identity)
	}
	return key, nil
}

type fakeStorage struct {
	mu    sync.Mutex
	blobs map[cas.Address][]byte
	err   error
	block bool

	// failOn fails the Put with this 1-based call number.
	failOn int
	puts   int
}

func (s *fakeStorage) Put(ctx context.Context, ciphertext []byte) (cas.Address, error) {
	if s.block {
		<-ctx.Done()
		return cas.Address{}, ctx.Err()
	}
	if s.err != nil {
		return cas.Address{}, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.puts == s.failOn {
		return cas.Address{}, errors.New("connection reset during upload")
	}
	address := cas.Compute(ciphertext)
	s.blobs[address] = bytes.Clone(ciphertext)
	return address, nil
}

func (s *fakeStorage) Get(_ context.Context, address cas.Address, _ string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[address]
	if !ok {
		return nil, failure.New(failure.NotFound, "no blob %s", address.Short())
	}
	return data, nil
}

type fakeMetadata struct {
	mu        sync.Mutex
	envelopes []*envelope.Envelope
	err       error

	// failOn fails the Publish with this 1-based call number.
	failOn    int
	publishes int
}

func (m *fakeMetadata) Publish(_ context.Context, env *envelope.Envelope) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishes++
	if m.publishes == m.failOn {
		return errors.New("metadata service down")
	}
	m.envelopes = append(m.envelopes, env)
	return nil
}

func (m *fakeMetadata) Fetch(context.Context, cas.Address, string) (*envelope.Envelope, error) {
	return nil, errors.New("not used")
}

type fakeIndex struct {
	entries []envelope.IndexEntry
	err     error
}

func (x *fakeIndex) Index(_ context.Context, entry envelope.IndexEntry) error {
	if x.err != nil {
		return x.err
	}
	x.entries = append(x.entries, entry)
	return nil
}

type fakeOrphans struct {
	entries []orphan.Entry
}

func (o *fakeOrphans) Record(_ context.Context, entry orphan.Entry) error {
	o.entries = append(o.entries, entry)
	return nil
}

type harness struct {
	orchestrator *Orchestrator
	keypairs     map[string]*keywrap.Keypair
	directory    *fakeDirectory
	storage      *fakeStorage
	metadata     *fakeMetadata
	index        *fakeIndex
	orphans      *fakeOrphans
}

func newHarness(t *testing.T, identities ...string) *harness {
	t.Helper()
	h := &harness{
		keypairs:  map[string]*keywrap.Keypair{},
		directory: &fakeDirectory{keys: map[string]keywrap.PublicKey{}},
		storage:   &fakeStorage{blobs: map[cas.Address][]byte{}},
		metadata:  &fakeMetadata{},
		index:     &fakeIndex{},
		orphans:   &fakeOrphans{},
	}
	for _, identity := range append([]string{"alice"}, identities...) {
		keypair, err := keywrap.GenerateKeypair()
		if err != nil {
			t.Fatalf("GenerateKeypair: %v", err)
		}
		t.Cleanup(func() { keypair.Close() })
		h.keypairs[identity] = keypair
		h.directory.keys[identity] = keypair.Public
	}

	orchestrator, err := New(Config{
		Sender:      &custody.Identity{Name: "alice", Keypair: h.keypairs["alice"]},
		Directory:   h.directory,
		Storage:     h.storage,
		Metadata:    h.metadata,
		Index:       h.index,
		Orphans:     h.orphans,
		Previews:    preview.Generator{MaxTextBytes: 16},
		CallTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orchestrator = orchestrator
	return h
}

// open decrypts env's ciphertext as identity.
func (h *harness) open(t *testing.T, env *envelope.Envelope, identity string) ([]byte, error) {
	t.Helper()
	wrapped, ok := env.KeyFor(identity)
	if !ok {
		return nil, failure.New(failure.AccessDenied, "no key for %s", identity)
	}
	wrapper, err := keywrap.Lookup(env.KeyWrap)
	if err != nil {
		t.Fatalf("keywrap.Lookup: %v", err)
	}
	contentKey, err := wrapper.Unwrap(wrapped.Record, h.keypairs[identity])
	if err != nil {
		return nil, err
	}
	defer contentKey.Close()

	cipher, err := aead.Lookup(env.Cipher)
	if err != nil {
		t.Fatalf("aead.Lookup: %v", err)
	}
	additionalData, err := env.AdditionalData()
	if err != nil {
		t.Fatalf("AdditionalData: %v", err)
	}
	ciphertext := h.storage.blobs[env.Address]
	compressed, err := cipher.Decrypt(ciphertext, contentKey, env.Nonce, additionalData)
	if err != nil {
		return nil, err
	}
	algorithm, err := compression.Parse(env.Compression)
	if err != nil {
		t.Fatalf("compression.Parse: %v", err)
	}
	return compression.Decompress(compressed, algorithm, env.Descriptor.Size)
}

func TestShareTwoRecipients(t *testing.T) {
	h := newHarness(t, "bob", "carol", "mallory")
	plaintext := []byte("hello world")

	env, err := h.orchestrator.Share(context.Background(),
		Blob{Name: "greeting.txt", MediaType: "text/plain", Data: plaintext},
		[]string{"bob", "carol"}, Options{})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}

	if len(env.Recipients) != 2 || len(env.WrappedKeys) != 2 {
		t.Fatalf("envelope has %d recipients and %d wrapped keys, want 2 and 2", len(env.Recipients), len(env.WrappedKeys))
	}
	if env.Sender != "alice" || !env.SenderKey.Equal(h.keypairs["alice"].Public) {
		t.Errorf("sender = %s / %s", env.Sender, env.SenderKey)
	}
	if env.Descriptor.Size != 11 || env.Descriptor.Name != "greeting.txt" {
		t.Errorf("descriptor = %+v", env.Descriptor)
	}
	if _, ok := env.KeyFor("alice"); ok {
		t.Error("sender received a wrapped key without being a recipient")
	}

	for _, identity := range []string{"bob", "carol"} {
		got, err := h.open(t, env, identity)
		if err != nil {
			t.Fatalf("open as %s: %v", identity, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("%s recovered %q", identity, got)
		}
	}

	// Each record opens only for its addressee.
	bobRecord, _ := env.KeyFor("bob")
	wrapper, _ := keywrap.Lookup(env.KeyWrap)
	_, err = wrapper.Unwrap(bobRecord.Record, h.keypairs["carol"])
	testutil.RequireKind(t, err, failure.AuthFailure)
	_, err = wrapper.Unwrap(bobRecord.Record, h.keypairs["mallory"])
	testutil.RequireKind(t, err, failure.AuthFailure)

	if len(h.metadata.envelopes) != 1 {
		t.Errorf("published %d envelopes, want 1", len(h.metadata.envelopes))
	}
	if len(h.index.entries) != 1 {
		t.Fatalf("indexed %d entries, want 1", len(h.index.entries))
	}
	entry := h.index.entries[0]
	if entry.Address != env.Address || entry.RecipientCount != 2 || entry.Size != 11 || entry.HasPreview {
		t.Errorf("index entry = %+v", entry)
	}
}

func TestShareFreshKeysEveryTime(t *testing.T) {
	h := newHarness(t, "bob")
	blob := Blob{Name: "same.bin", Data: []byte("identical content")}

	first, err := h.orchestrator.Share(context.Background(), blob, []string{"bob"}, Options{})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	second, err := h.orchestrator.Share(context.Background(), blob, []string{"bob"}, Options{})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}

	if first.Address == second.Address {
		t.Error("same content produced the same address twice")
	}
	if bytes.Equal(first.Nonce, second.Nonce) {
		t.Error("content nonce reused")
	}
	a, b := first.WrappedKeys[0].Record, second.WrappedKeys[0].Record
	if a.EphemeralKey.Equal(b.EphemeralKey) {
		t.Error("ephemeral key reused across envelopes")
	}
	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Error("wrap nonce reused across envelopes")
	}
}

func TestShareRecipientKeyMissing(t *testing.T) {
	h := newHarness(t, "bob")
	_, err := h.orchestrator.Share(context.Background(),
		Blob{Name: "x", Data: []byte("x")}, []string{"bob", "dave"}, Options{})
	testutil.RequireKind(t, err, failure.RecipientKeyMissing)
	if !strings.Contains(err.Error(), "dave") {
		t.Errorf("error %q does not name the recipient", err)
	}
	if len(h.storage.blobs) != 0 || len(h.metadata.envelopes) != 0 {
		t.Error("side effects happened before recipient resolution completed")
	}
}

func TestShareUploadFailure(t *testing.T) {
	h := newHarness(t, "bob")
	h.storage.err = errors.New("connection reset")
	_, err := h.orchestrator.Share(context.Background(),
		Blob{Name: "x", Data: []byte("x")}, []string{"bob"}, Options{})
	testutil.RequireKind(t, err, failure.UploadFailure)
	if len(h.metadata.envelopes) != 0 || len(h.index.entries) != 0 {
		t.Error("metadata or index written after a failed upload")
	}
}

func TestShareUploadTimeout(t *testing.T) {
	h := newHarness(t, "bob")
	h.orchestrator.callTimeout = 10 * time.Millisecond
	h.storage.block = true
	_, err := h.orchestrator.Share(context.Background(),
		Blob{Name: "x", Data: []byte("x")}, []string{"bob"}, Options{})
	testutil.RequireKind(t, err, failure.UploadFailure)
	if len(h.metadata.envelopes) != 0 {
		t.Error("envelope published after an upload timeout")
	}
}

func TestShareMetadataFailureRecordsOrphan(t *testing.T) {
	h := newHarness(t, "bob")
	h.metadata.err = errors.New("metadata service down")
	_, err := h.orchestrator.Share(context.Background(),
		Blob{Name: "report.pdf", Data: []byte("content")}, []string{"bob"}, Options{})
	testutil.RequireKind(t, err, failure.MetadataPublishFailure)

	if len(h.storage.blobs) != 1 {
		t.Fatalf("storage holds %d blobs, want the orphaned one", len(h.storage.blobs))
	}
	if len(h.orphans.entries) != 1 {
		t.Fatalf("recorded %d orphans, want 1", len(h.orphans.entries))
	}
	entry := h.orphans.entries[0]
	if _, stored := h.storage.blobs[entry.Address]; !stored {
		t.Error("orphan entry does not name the uploaded blob")
	}
	if entry.Name != "report.pdf" || entry.Recipients != 1 || !strings.Contains(entry.Reason, "metadata service down") {
		t.Errorf("orphan entry = %+v", entry)
	}
	if len(h.index.entries) != 0 {
		t.Error("index written after a failed metadata publish")
	}
}

func TestShareIndexFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, "bob")
	h.index.err = errors.New("index unavailable")
	env, err := h.orchestrator.Share(context.Background(),
		Blob{Name: "x", Data: []byte("x")}, []string{"bob"}, Options{})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if len(h.metadata.envelopes) != 1 || h.metadata.envelopes[0] != env {
		t.Error("envelope not published")
	}
}

func TestShareRecipientValidation(t *testing.T) {
	h := newHarness(t, "bob")
	blob := Blob{Name: "x", Data: []byte("x")}

	_, err := h.orchestrator.Share(context.Background(), blob, nil, Options{})
	testutil.RequireKind(t, err, failure.Invalid)
	_, err = h.orchestrator.Share(context.Background(), blob, []string{"bob", ""}, Options{})
	testutil.RequireKind(t, err, failure.Invalid)
	_, err = h.orchestrator.Share(context.Background(), Blob{Data: []byte("x")}, []string{"bob"}, Options{})
	testutil.RequireKind(t, err, failure.Invalid)

	env, err := h.orchestrator.Share(context.Background(), blob, []string{"bob", "bob"}, Options{})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if len(env.Recipients) != 1 {
		t.Errorf("duplicate recipients not collapsed: %v", env.Recipients)
	}
}

func TestSharePreview(t *testing.T) {
	h := newHarness(t, "bob")
	text := []byte(strings.Repeat("a long line of text\n", 20))

	env, err := h.orchestrator.Share(context.Background(),
		Blob{Name: "notes.txt", MediaType: "text/plain", Data: text},
		[]string{"bob"}, Options{GeneratePreview: true, Compression: "zstd"})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if env.Descriptor.Preview == nil {
		t.Fatal("main envelope has no preview address")
	}
	if env.Compression != "zstd" {
		t.Errorf("Compression = %q, want zstd", env.Compression)
	}
	if len(h.metadata.envelopes) != 2 {
		t.Fatalf("published %d envelopes, want preview + main", len(h.metadata.envelopes))
	}

	previewEnvelope := h.metadata.envelopes[0]
	if previewEnvelope.Address != *env.Descriptor.Preview {
		t.Error("preview address does not match the published preview envelope")
	}
	if previewEnvelope.Descriptor.Preview != nil {
		t.Error("preview envelope has its own preview")
	}
	if strings.Join(previewEnvelope.Recipients, ",") != "bob" {
		t.Errorf("preview recipients = %v", previewEnvelope.Recipients)
	}
	excerpt, err := h.open(t, previewEnvelope, "bob")
	if err != nil {
		t.Fatalf("opening preview: %v", err)
	}
	if len(excerpt) != 16 || !bytes.HasPrefix(text, excerpt) {
		t.Errorf("preview = %q", excerpt)
	}

	if len(h.index.entries) != 1 || !h.index.entries[0].HasPreview {
		t.Errorf("index entries = %+v", h.index.entries)
	}

	// Small text already fits; no preview is produced.
	small, err := h.orchestrator.Share(context.Background(),
		Blob{Name: "short.txt", MediaType: "text/plain", Data: []byte("short")},
		[]string{"bob"}, Options{GeneratePreview: true})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if small.Descriptor.Preview != nil {
		t.Error("short text got a preview")
	}
}

// shareWithPreview shares a text long enough to get a preview.
func shareWithPreview(h *harness) (*envelope.Envelope, error) {
	return h.orchestrator.Share(context.Background(),
		Blob{Name: "notes.txt", MediaType: "text/plain", Data: []byte(strings.Repeat("a long line of text\n", 20))},
		[]string{"bob"}, Options{GeneratePreview: true})
}

func TestShareUploadFailureAfterPreviewPublishesNothing(t *testing.T) {
	h := newHarness(t, "bob")
	h.storage.failOn = 2

	_, err := shareWithPreview(h)
	testutil.RequireKind(t, err, failure.UploadFailure)
	if len(h.metadata.envelopes) != 0 {
		t.Fatalf("published %d envelope(s) after the main upload failed", len(h.metadata.envelopes))
	}
	if len(h.index.entries) != 0 {
		t.Error("index written after a failed upload")
	}

	// The preview ciphertext was uploaded; it is recorded for cleanup.
	if len(h.orphans.entries) != 1 {
		t.Fatalf("recorded %d orphans, want the preview upload", len(h.orphans.entries))
	}
	entry := h.orphans.entries[0]
	if entry.Name != "notes.txt.preview" {
		t.Errorf("orphan name = %q, want notes.txt.preview", entry.Name)
	}
	if _, stored := h.storage.blobs[entry.Address]; !stored {
		t.Error("orphan entry does not name the uploaded preview")
	}
}

func TestSharePublishFailureOrphansEveryUpload(t *testing.T) {
	tests := []struct {
		name      string
		failOn    int
		published int
	}{
		{"preview publish fails", 1, 0},
		{"main publish fails", 2, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t, "bob")
			h.metadata.failOn = test.failOn

			_, err := shareWithPreview(h)
			testutil.RequireKind(t, err, failure.MetadataPublishFailure)
			if len(h.metadata.envelopes) != test.published {
				t.Errorf("published %d envelope(s), want %d", len(h.metadata.envelopes), test.published)
			}
			if len(h.storage.blobs) != 2 {
				t.Fatalf("storage holds %d blobs, want preview + main", len(h.storage.blobs))
			}
			if len(h.orphans.entries) != 2 {
				t.Fatalf("recorded %d orphans, want preview + main", len(h.orphans.entries))
			}
			names := map[string]bool{}
			for _, entry := range h.orphans.entries {
				if _, stored := h.storage.blobs[entry.Address]; !stored {
					t.Errorf("orphan %s does not name an uploaded blob", entry.Name)
				}
				names[entry.Name] = true
			}
			if !names["notes.txt"] || !names["notes.txt.preview"] {
				t.Errorf("orphan names = %v", names)
			}
			if len(h.index.entries) != 0 {
				t.Error("index written after a failed publish")
			}
		})
	}
}

func TestShareBindsHeaderToCiphertext(t *testing.T) {
	h := newHarness(t, "bob")
	env, err := h.orchestrator.Share(context.Background(),
		Blob{Name: "notes.txt", MediaType: "text/plain", Data: []byte(strings.Repeat("header ", 50))},
		[]string{"bob"}, Options{Compression: "lz4"})
	if err != nil {
		t.Fatalf("Share: %v", err)
	}
	if _, err := h.open(t, env, "bob"); err != nil {
		t.Fatalf("open: %v", err)
	}

	tampered := *env
	tampered.Descriptor.Name = "invoice.pdf"
	_, err = h.open(t, &tampered, "bob")
	testutil.RequireKind(t, err, failure.AuthFailure)
}
