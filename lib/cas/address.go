// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cas

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Address is a 32-byte BLAKE3 content address.
type Address [32]byte

// blobDomainKey is the BLAKE3 key for blob addresses: the ASCII
// domain name, zero-padded to 32 bytes. Changing it changes every
// address.
var blobDomainKey = [32]byte{
	'l', 'o', 'c', 'k', 'b', 'o', 'x', '.', 'c', 'a', 's', '.',
	'b', 'l', 'o', 'b', '.', 'v', '1',
}

// Compute returns the address of data.
func Compute(data []byte) Address {
	hasher, err := blake3.NewKeyed(blobDomainKey[:])
	if err != nil {
		panic("cas: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var address Address
	copy(address[:], hasher.Sum(nil))
	return address
}

// String returns the 64-character lowercase hex form.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short returns a 12-character reference for logs and listings.
func (a Address) Short() string {
	return "cas-" + hex.EncodeToString(a[:6])
}

// IsZero reports whether a is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses the hex form of an address.
func ParseAddress(text string) (Address, error) {
	var address Address
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return address, fmt.Errorf("parsing content address: %w", err)
	}
	if len(decoded) != len(address) {
		return address, fmt.Errorf("content address is %d bytes, want %d", len(decoded), len(address))
	}
	copy(address[:], decoded)
	return address, nil
}
