// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cas

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/lockbox/lib/failure"
)

func TestComputeIsContentDerived(t *testing.T) {
	first := Compute([]byte("ciphertext"))
	if first != Compute([]byte("ciphertext")) {
		t.Fatal("same bytes produced different addresses")
	}
	if first == Compute([]byte("ciphertexT")) {
		t.Fatal("different bytes produced the same address")
	}
	if first.IsZero() {
		t.Fatal("address is zero")
	}
}

func TestComputeUsesDomainKey(t *testing.T) {
	// An unkeyed BLAKE3 of the empty input starts af1349b9; the keyed
	// address must not.
	if strings.HasPrefix(Compute(nil).String(), "af1349b9") {
		t.Fatal("address matches unkeyed BLAKE3")
	}
}

func TestAddressText(t *testing.T) {
	address := Compute([]byte("x"))
	text, err := address.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if len(text) != 64 {
		t.Fatalf("text form is %d characters, want 64", len(text))
	}
	var parsed Address
	if err := parsed.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if parsed != address {
		t.Fatal("address did not round trip")
	}
	if !strings.HasPrefix(address.Short(), "cas-") || len(address.Short()) != 16 {
		t.Errorf("Short = %q", address.Short())
	}

	for _, bad := range []string{"", "zz", strings.Repeat("ab", 31)} {
		if _, err := ParseAddress(bad); err == nil {
			t.Errorf("ParseAddress(%q) succeeded", bad)
		}
	}
}

func TestDirStore(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}

	data := []byte("opaque ciphertext")
	address, err := store.Put(data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if address != Compute(data) {
		t.Fatal("Put returned an address that is not Compute(data)")
	}
	if !store.Has(address) {
		t.Fatal("Has = false after Put")
	}

	got, err := store.Get(address)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get = %q, want %q", got, data)
	}

	again, err := store.Put(data)
	if err != nil || again != address {
		t.Fatalf("second Put = %v, %v", again, err)
	}

	if err := store.Delete(address); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(address); !failure.Is(err, failure.NotFound) {
		t.Fatalf("Get after Delete error = %v, want NotFound", err)
	}
	if err := store.Delete(address); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestDirStoreConcurrentPut(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	data := bytes.Repeat([]byte("z"), 4096)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Put(data); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Put: %v", err)
	}

	got, err := store.Get(Compute(data))
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Get after concurrent Put: %v", err)
	}
}
