// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lockbox/cmd/lockbox/cli"
	"github.com/bureau-foundation/lockbox/lib/custody"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/secret"
)

func initCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "init",
		Summary: "Create the local identity and publish its public key",
		Description: `Create the local identity keypair if it does not exist yet, then publish
its public key to the hub directory so others can share with you.

Running init again is safe: the existing keypair is kept and its public
key is republished.`,
		Usage: "lockbox init [flags]",
		Flags: func() *pflag.FlagSet { return newFlagSet("init", &options) },
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "lockbox init"); err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "init")
			if err != nil {
				return err
			}
			defer s.Close()

			identity, err := s.identities.LoadOrCreate(ctx)
			if err != nil {
				return err
			}
			if err := publishKey(ctx, s); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", identity.Name, identity.Keypair.Public)
			return nil
		},
	}
}

// publishKey announces the local public key to the hub directory.
func publishKey(ctx context.Context, s *session) error {
	client, err := s.hubClient()
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout())
	defer cancel()
	return s.identities.PublishPublicKey(callCtx, client.Directory())
}

func whoamiCommand() *cli.Command {
	var options globalOptions
	return &cli.Command{
		Name:    "whoami",
		Summary: "Show the local identity",
		Flags:   func() *pflag.FlagSet { return newFlagSet("whoami", &options) },
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "lockbox whoami"); err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "whoami")
			if err != nil {
				return err
			}
			defer s.Close()

			identity, err := s.identity(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("identity:   %s\n", identity.Name)
			fmt.Printf("public key: %s\n", identity.Keypair.Public)
			fmt.Printf("created:    %s\n", identity.CreatedAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	var (
		options      globalOptions
		output       string
		passwordFile string
		kdf          string
		iterations   uint32
	)
	return &cli.Command{
		Name:    "export",
		Summary: "Write a password-protected backup of the identity",
		Description: `Write the identity keypair encrypted under a key derived from a
password. The KDF and its cost come from the backup section of the
configuration unless overridden here.`,
		Usage: "lockbox export [-o FILE] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("export", &options)
			flagSet.StringVarP(&output, "output", "o", "", "backup file (default stdout)")
			flagSet.StringVar(&passwordFile, "password-file", "", "read the password from this file (- for stdin)")
			flagSet.StringVar(&kdf, "kdf", "", "password KDF: pbkdf2-sha256 or argon2id")
			flagSet.Uint32Var(&iterations, "iterations", 0, "KDF iterations (PBKDF2) or time cost (Argon2id)")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Back up with Argon2id", Command: "lockbox export --kdf argon2id -o alice.lockbox-backup"},
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "lockbox export [-o FILE]"); err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "export")
			if err != nil {
				return err
			}
			defer s.Close()

			params := s.config.KDFParams()
			if kdf != "" {
				params = custody.KDFParams{Name: kdf}
			}
			if iterations != 0 {
				params.Iterations = iterations
			}
			if err := params.Validate(); err != nil {
				return err
			}

			password, err := cli.ReadPassword("Backup password", passwordFile, true)
			if err != nil {
				return err
			}
			defer password.Close()

			blob, err := s.identities.Export(ctx, password.Bytes(), params, s.config.Crypto.Cipher)
			if err != nil {
				return err
			}
			return writeOutput(output, blob)
		},
	}
}

func importCommand() *cli.Command {
	var (
		options      globalOptions
		passwordFile string
		replace      bool
	)
	return &cli.Command{
		Name:    "import",
		Summary: "Restore the identity from a password-protected backup",
		Description: `Restore the identity keypair from a backup written by "lockbox export".
The backup must belong to the configured identity. An existing, different
keypair is only overwritten with --replace. The restored public key is
republished to the hub.`,
		Usage: "lockbox import FILE [--replace] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("import", &options)
			flagSet.StringVar(&passwordFile, "password-file", "", "read the password from this file (- for stdin)")
			flagSet.BoolVar(&replace, "replace", false, "overwrite an existing, different keypair")
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "lockbox import FILE"); err != nil {
				return err
			}
			blob, err := readInput(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "import")
			if err != nil {
				return err
			}
			defer s.Close()

			password, err := cli.ReadPassword("Backup password", passwordFile, false)
			if err != nil {
				return err
			}
			defer password.Close()

			identity, err := s.identities.Import(ctx, blob, password.Bytes(), replace)
			if err != nil {
				return err
			}
			return announceRestored(ctx, s, identity)
		},
	}
}

// announceRestored republishes a restored key. A hub failure leaves
// the local restore in place and tells the user how to retry.
func announceRestored(ctx context.Context, s *session, identity *custody.Identity) error {
	fmt.Printf("%s %s\n", identity.Name, identity.Keypair.Public)
	if err := publishKey(ctx, s); err != nil {
		s.logger.Warn("restored identity but could not publish its public key; run 'lockbox init' to retry",
			"error", err)
	}
	return nil
}

func escrowCommand() *cli.Command {
	var (
		options    globalOptions
		output     string
		recipients []string
	)
	return &cli.Command{
		Name:    "escrow",
		Summary: "Encrypt the identity to age recipients for recovery",
		Description: `Encrypt the identity keypair to one or more age public keys (an
organisation's recovery officers, an offline key). The output is
ASCII-armored and can only be opened with a matching age identity.

Recipients default to escrow.recipients in the configuration.`,
		Usage: "lockbox escrow [-o FILE] [--recipient AGE-KEY]... [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("escrow", &options)
			flagSet.StringVarP(&output, "output", "o", "", "escrow file (default stdout)")
			flagSet.StringArrayVar(&recipients, "recipient", nil, "age public key (repeatable)")
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "lockbox escrow [-o FILE]"); err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "escrow")
			if err != nil {
				return err
			}
			defer s.Close()

			if len(recipients) == 0 {
				recipients = s.config.Escrow.Recipients
			}
			armored, err := s.identities.Escrow(ctx, recipients)
			if err != nil {
				return err
			}
			return writeOutput(output, []byte(armored))
		},
	}
}

func recoverCommand() *cli.Command {
	var (
		options     globalOptions
		ageIdentity string
		replace     bool
	)
	return &cli.Command{
		Name:    "recover",
		Summary: "Restore the identity from an escrow file",
		Usage:   "lockbox recover FILE --age-identity FILE [--replace] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("recover", &options)
			flagSet.StringVar(&ageIdentity, "age-identity", "", "file holding the AGE-SECRET-KEY-1... identity (- for stdin)")
			flagSet.BoolVar(&replace, "replace", false, "overwrite an existing, different keypair")
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "lockbox recover FILE --age-identity FILE"); err != nil {
				return err
			}
			if ageIdentity == "" {
				return failure.New(failure.Invalid, "--age-identity is required")
			}
			armored, err := readInput(args[0])
			if err != nil {
				return err
			}
			ageKey, err := secret.ReadFromPath(ageIdentity)
			if err != nil {
				return failure.Wrap(failure.Invalid, err, "reading age identity")
			}
			defer ageKey.Close()

			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "recover")
			if err != nil {
				return err
			}
			defer s.Close()

			identity, err := s.identities.RecoverEscrow(ctx, string(armored), ageKey, replace)
			if err != nil {
				return err
			}
			return announceRestored(ctx, s, identity)
		},
	}
}
