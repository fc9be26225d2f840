// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lockbox/cmd/lockbox/cli"
)

func orphansCommand() *cli.Command {
	return &cli.Command{
		Name:    "orphans",
		Summary: "Inspect uploads whose envelope was never published",
		Description: `When a share uploads its ciphertext but the envelope cannot be
published, the upload is recorded locally as an orphan. Recipients
cannot open it. Orphans are candidates for cleanup on the storage side.`,
		Subcommands: []*cli.Command{
			orphansListCommand(),
			orphansForgetCommand(),
		},
	}
}

func orphansListCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "list",
		Summary: "List recorded orphans, oldest first",
		Flags:   func() *pflag.FlagSet { return newFlagSet("list", &options) },
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "lockbox orphans list"); err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "orphans/list")
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := s.orphans.List(ctx)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(os.Stderr, "no orphans")
				return nil
			}
			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "OPERATION\tADDRESS\tNAME\tRECIPIENTS\tRECORDED\tREASON")
			for _, entry := range entries {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\t%s\n",
					entry.OperationID, entry.Address, entry.Name, entry.Recipients,
					entry.RecordedAt.UTC().Format(time.RFC3339), entry.Reason)
			}
			return writer.Flush()
		},
	}
}

func orphansForgetCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "forget",
		Summary: "Remove an orphan record after cleanup",
		Usage:   "lockbox orphans forget OPERATION [flags]",
		Flags:   func() *pflag.FlagSet { return newFlagSet("forget", &options) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "lockbox orphans forget OPERATION"); err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "orphans/forget")
			if err != nil {
				return err
			}
			defer s.Close()
			return s.orphans.Forget(ctx, args[0])
		},
	}
}
