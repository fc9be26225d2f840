// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the lockbox CLI
// and the lockbox-hub server binary.
//
// The central type is [Command], which represents a named subcommand
// with optional nested [Command.Subcommands], a [pflag.FlagSet]
// factory, and a Run function. [Command.Execute] handles flag parsing,
// subcommand routing, and help output with examples. Unknown
// subcommands and flags get a "did you mean" suggestion computed by
// Levenshtein distance (at most 3).
//
// [NewCommandLogger] picks a text or JSON slog handler depending on
// whether stderr is a terminal. [ReadPassword] reads a password from
// the terminal without echo, or from a --password-file path.
package cli
