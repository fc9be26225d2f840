// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hub

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/lockbox/lib/failure"
)

// DefaultTokenLifetime is how long a minted token stays valid when the
// operator names no lifetime.
const DefaultTokenLifetime = 90 * 24 * time.Hour

// MintToken returns a bearer token for identity that expires at
// expires (truncated to the second).
func MintToken(secret []byte, identity string, expires time.Time) string {
	expiry := strconv.FormatInt(expires.Unix(), 10)
	return identity + "." + expiry + "." + base64.RawURLEncoding.EncodeToString(tokenMAC(secret, identity, expiry))
}

// VerifyToken checks a bearer token at now and returns the identity it
// names. Every rejection is failure.Unauthenticated; the message never
// includes the expected MAC.
func VerifyToken(secret []byte, token string, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", failure.New(failure.Internal, "hub token secret is empty")
	}
	rest, encoded, ok := cutLast(token)
	if !ok {
		return "", failure.New(failure.Unauthenticated, "malformed bearer token")
	}
	identity, expiry, ok := cutLast(rest)
	if !ok {
		return "", failure.New(failure.Unauthenticated, "malformed bearer token")
	}
	expires, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return "", failure.New(failure.Unauthenticated, "malformed bearer token expiry")
	}

	presented, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", failure.New(failure.Unauthenticated, "malformed bearer token")
	}
	if subtle.ConstantTimeCompare(tokenMAC(secret, identity, expiry), presented) != 1 {
		return "", failure.New(failure.Unauthenticated, "bearer token signature mismatch")
	}
	if now.Unix() >= expires {
		return "", failure.New(failure.Unauthenticated, "bearer token for %s expired at %s",
			identity, time.Unix(expires, 0).UTC().Format(time.RFC3339))
	}
	return identity, nil
}

// cutLast splits s at its last '.', requiring both halves non-empty.
func cutLast(s string) (before, after string, ok bool) {
	separator := strings.LastIndexByte(s, '.')
	if separator <= 0 || separator == len(s)-1 {
		return "", "", false
	}
	return s[:separator], s[separator+1:], true
}

func tokenMAC(secret []byte, identity, expiry string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("lockbox.hub.token.v2\x00"))
	mac.Write([]byte(identity))
	mac.Write([]byte{0})
	mac.Write([]byte(expiry))
	return mac.Sum(nil)
}
