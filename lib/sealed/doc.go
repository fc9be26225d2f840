// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed escrows identity secrets with age.
//
// An operator who wants to be able to recover lost identities
// generates an age keypair ([GenerateKeypair]) and publishes the
// age1... recipient string. Users seal their identity secret to one or
// more of those recipients with [Encrypt], producing an ASCII-armored
// age file. [Decrypt] reverses it given an operator's private key.
//
// Private keys and recovered plaintext live in [secret.Buffer] values.
package sealed
