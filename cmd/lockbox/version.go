// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/bureau-foundation/lockbox/cmd/lockbox/cli"
	"github.com/bureau-foundation/lockbox/lib/version"
)

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(args []string) error {
			fmt.Println("lockbox " + version.Full())
			return nil
		},
	}
}
