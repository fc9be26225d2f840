// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/hub"
	"github.com/bureau-foundation/lockbox/lib/hubstore"
	"github.com/bureau-foundation/lockbox/lib/secret"
	"github.com/bureau-foundation/lockbox/lib/testutil"
)

type fixture struct {
	hubURL      string
	tokenSecret *secret.Buffer
	dir         string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokenSecret, err := secret.NewRandom(32)
	if err != nil {
		t.Fatalf("secret.NewRandom: %v", err)
	}
	t.Cleanup(func() { tokenSecret.Close() })
	blobs, err := cas.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	server, err := hub.NewServer(hub.ServerConfig{
		Store:       hubstore.New(testutil.StateDB(t, hubstore.Schema), nil, nil),
		Blobs:       blobs,
		TokenSecret: tokenSecret,
	})
	if err != nil {
		t.Fatalf("hub.NewServer: %v", err)
	}
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)
	return &fixture{hubURL: httpServer.URL, tokenSecret: tokenSecret, dir: t.TempDir()}
}

// user writes a config and token file for identity with its own state
// directory, and returns the config path.
func (f *fixture) user(t *testing.T, identity, stateName string) string {
	t.Helper()
	tokenPath := filepath.Join(f.dir, stateName+".token")
	if err := os.WriteFile(tokenPath, []byte(hub.MintToken(f.tokenSecret.Bytes(), identity, time.Now().Add(time.Hour))+"\n"), 0o600); err != nil {
		t.Fatalf("writing token: %v", err)
	}
	configPath := filepath.Join(f.dir, stateName+".yaml")
	content := fmt.Sprintf(`
identity: %s
paths:
  state: %s
hub:
  url: %s
  token_file: %s
network:
  call_timeout: 10s
backup:
  iterations: 100000
`, identity, filepath.Join(f.dir, stateName), f.hubURL, tokenPath)
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return configPath
}

func (f *fixture) search(t *testing.T, identity, query string) []cas.Address {
	t.Helper()
	client, err := hub.NewClient(hub.ClientConfig{URL: f.hubURL, Token: hub.MintToken(f.tokenSecret.Bytes(), identity, time.Now().Add(time.Hour))})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	entries, err := client.Search(context.Background(), query, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	var addresses []cas.Address
	for _, entry := range entries {
		addresses = append(addresses, entry.Address)
	}
	return addresses
}

func mustRun(t *testing.T, args ...string) {
	t.Helper()
	if err := run(args); err != nil {
		t.Fatalf("lockbox %v: %v", args, err)
	}
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}

func TestShareReceiveRoundTrip(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "alice")
	bob := f.user(t, "bob", "bob")
	mallory := f.user(t, "mallory", "mallory")
	for _, config := range []string{alice, bob, mallory} {
		mustRun(t, "init", "--config", config)
	}
	// init is idempotent.
	mustRun(t, "init", "--config", bob)

	plaintext := []byte("the quarterly numbers are in\n")
	input := writeFile(t, filepath.Join(f.dir, "q3-notes.txt"), plaintext)
	mustRun(t, "share", input, "--to", "bob", "--config", alice)

	addresses := f.search(t, "bob", "q3-notes")
	if len(addresses) != 1 {
		t.Fatalf("bob sees %d shares, want 1", len(addresses))
	}
	address := addresses[0].String()

	output := filepath.Join(f.dir, "received.txt")
	mustRun(t, "receive", address, "-o", output, "--config", bob)
	if got := readFile(t, output); !bytes.Equal(got, plaintext) {
		t.Errorf("bob received %q, want %q", got, plaintext)
	}
	info, err := os.Stat(output)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("output mode = %o, want 600", info.Mode().Perm())
	}

	err = run([]string{"receive", address, "-o", filepath.Join(f.dir, "stolen"), "--config", mallory})
	testutil.RequireKind(t, err, failure.AccessDenied)
	if _, statErr := os.Stat(filepath.Join(f.dir, "stolen")); statErr == nil {
		t.Error("a denied receive wrote an output file")
	}

	// The raw ciphertext is fetchable by anyone and hashes to the address.
	ciphertextPath := filepath.Join(f.dir, "ciphertext")
	mustRun(t, "open", address, "-o", ciphertextPath, "--config", mallory)
	if cas.Compute(readFile(t, ciphertextPath)).String() != address {
		t.Error("open returned bytes that do not hash to the address")
	}
}

func TestShareToUnknownRecipient(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "alice")
	mustRun(t, "init", "--config", alice)

	input := writeFile(t, filepath.Join(f.dir, "memo.txt"), []byte("memo"))
	err := run([]string{"share", input, "--to", "nobody", "--config", alice})
	testutil.RequireKind(t, err, failure.RecipientKeyMissing)

	if addresses := f.search(t, "alice", ""); len(addresses) != 0 {
		t.Errorf("a failed share left %d index entries", len(addresses))
	}
}

func TestExportImportRestoresAccess(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "alice")
	bob := f.user(t, "bob", "bob")
	mustRun(t, "init", "--config", alice)
	mustRun(t, "init", "--config", bob)

	passwordFile := writeFile(t, filepath.Join(f.dir, "password"), []byte("correct horse battery staple\n"))
	backup := filepath.Join(f.dir, "bob.backup")
	mustRun(t, "export", "-o", backup, "--password-file", passwordFile, "--config", bob)

	input := writeFile(t, filepath.Join(f.dir, "for-bob.bin"), testutil.RandomBytes(t, 2048))
	mustRun(t, "share", input, "--to", "bob", "--config", alice)
	address := f.search(t, "alice", "for-bob")[0].String()

	// A second machine for bob with empty state.
	laptop := f.user(t, "bob", "bob-laptop")
	wrongPassword := writeFile(t, filepath.Join(f.dir, "wrong"), []byte("incorrect"))
	err := run([]string{"import", backup, "--password-file", wrongPassword, "--config", laptop})
	testutil.RequireKind(t, err, failure.AuthFailure)

	mustRun(t, "import", backup, "--password-file", passwordFile, "--config", laptop)
	output := filepath.Join(f.dir, "laptop-copy.bin")
	mustRun(t, "receive", address, "-o", output, "--config", laptop)
	if !bytes.Equal(readFile(t, output), readFile(t, input)) {
		t.Error("restored identity received different bytes")
	}

	// Alice's backup cannot be imported as bob.
	aliceBackup := filepath.Join(f.dir, "alice.backup")
	mustRun(t, "export", "-o", aliceBackup, "--password-file", passwordFile, "--config", alice)
	err = run([]string{"import", aliceBackup, "--password-file", passwordFile, "--config", laptop})
	testutil.RequireKind(t, err, failure.Invalid)
}

func TestCommandsRequireIdentity(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", "alice")

	err := run([]string{"whoami", "--config", alice})
	testutil.RequireKind(t, err, failure.NotFound)

	err = run([]string{"receive", "not-an-address", "--config", alice})
	testutil.RequireKind(t, err, failure.Invalid)
}

func TestInvalidConfiguration(t *testing.T) {
	f := newFixture(t)
	broken := writeFile(t, filepath.Join(f.dir, "broken.yaml"), []byte("identity: alice\n"))
	err := run([]string{"whoami", "--config", broken})
	testutil.RequireKind(t, err, failure.Invalid)
}
