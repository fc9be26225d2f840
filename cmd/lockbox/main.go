// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command lockbox shares files end-to-end encrypted with named
// recipients through a lockbox hub.
package main

import (
	"os"

	"github.com/bureau-foundation/lockbox/cmd/lockbox/cli"
)

func main() {
	if code := cli.Report(os.Stderr, run(os.Args[1:])); code != 0 {
		os.Exit(code)
	}
}

func run(args []string) error {
	return root().Execute(args)
}

func root() *cli.Command {
	return &cli.Command{
		Name:    "lockbox",
		Summary: "End-to-end encrypted file sharing",
		Description: `lockbox encrypts a file once under a fresh content key, wraps that key
for each recipient's public key, uploads the ciphertext and publishes an
envelope naming who may open it. The hub never sees plaintext or keys.

Configuration is read from --config or $LOCKBOX_CONFIG.`,
		Subcommands: []*cli.Command{
			initCommand(),
			whoamiCommand(),
			shareCommand(),
			receiveCommand(),
			openCommand(),
			searchCommand(),
			exportCommand(),
			importCommand(),
			escrowCommand(),
			recoverCommand(),
			orphansCommand(),
			versionCommand(),
		},
	}
}
