// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the lockbox client configuration.
//
// Configuration comes from a single YAML file named by either the
// LOCKBOX_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no ~/.config discovery and no file
// search, and environment variables never override values in the
// file.
//
// The file is merged over [Default]. After loading, ${HOME},
// ${LOCKBOX_STATE} and ${VAR:-default} patterns are expanded in
// paths.state and hub.token_file.
//
// [Config.Validate] reports every problem at once (errors.Join),
// including algorithm names unknown to lib/aead and lib/keywrap, KDF
// costs below lib/custody's floors, more than two fallback gateways,
// and escrow recipients that are not age public keys.
package config
