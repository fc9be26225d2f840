// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cas

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bureau-foundation/lockbox/lib/failure"
)

const (
	blobDir = "blobs"
	tmpDir  = "tmp"
)

// DirStore stores blobs as files under root/blobs/ab/cd/<address>.
// Writes go to root/tmp first and are renamed into place, so readers
// never see a partial blob. Safe for concurrent use: two writers of the
// same bytes race to an identical file.
type DirStore struct {
	root string
}

// NewDirStore creates the directory layout under root if needed.
func NewDirStore(root string) (*DirStore, error) {
	for _, dir := range []string{root, filepath.Join(root, blobDir), filepath.Join(root, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating blob store directory %s: %w", dir, err)
		}
	}
	return &DirStore{root: root}, nil
}

// Put stores data and returns its address. Storing bytes that are
// already present is a no-op.
func (s *DirStore) Put(data []byte) (Address, error) {
	address := Compute(data)
	finalPath := s.Path(address)
	if _, err := os.Stat(finalPath); err == nil {
		return address, nil
	}

	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "blob-*")
	if err != nil {
		return Address{}, fmt.Errorf("creating temp blob: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return Address{}, fmt.Errorf("writing temp blob: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return Address{}, fmt.Errorf("syncing temp blob: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return Address{}, fmt.Errorf("closing temp blob: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return Address{}, fmt.Errorf("creating blob shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Address{}, fmt.Errorf("renaming blob to %s: %w", finalPath, err)
	}
	success = true
	return address, nil
}

// Get returns the blob stored at address, or a failure.NotFound error.
func (s *DirStore) Get(address Address) ([]byte, error) {
	data, err := os.ReadFile(s.Path(address))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, failure.New(failure.NotFound, "blob %s not found", address.Short())
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", address.Short(), err)
	}
	return data, nil
}

// Has reports whether address is stored.
func (s *DirStore) Has(address Address) bool {
	_, err := os.Stat(s.Path(address))
	return err == nil
}

// Delete removes the blob at address. Deleting a missing blob is not
// an error.
func (s *DirStore) Delete(address Address) error {
	err := os.Remove(s.Path(address))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing blob %s: %w", address.Short(), err)
	}
	return nil
}

// Path returns the sharded file path for address.
func (s *DirStore) Path(address Address) string {
	hex := address.String()
	return filepath.Join(s.root, blobDir, hex[:2], hex[2:4], hex)
}
