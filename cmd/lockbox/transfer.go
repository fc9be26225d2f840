// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lockbox/cmd/lockbox/cli"
	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/compression"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/share"
)

func shareCommand() *cli.Command {
	var (
		options     globalOptions
		recipients  []string
		name        string
		mediaType   string
		compress    string
		withPreview bool
		noPreview   bool
	)
	return &cli.Command{
		Name:    "share",
		Summary: "Encrypt a file and share it with named recipients",
		Description: `Encrypt FILE under a fresh content key, wrap the key for each recipient,
upload the ciphertext and publish its envelope. Prints the address
recipients pass to "lockbox receive".

Every recipient must have run "lockbox init" first; if any has not, nothing
is uploaded. The sender is not a recipient unless listed with --to.`,
		Usage: "lockbox share FILE --to ID[,ID...] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("share", &options)
			flagSet.StringSliceVar(&recipients, "to", nil, "recipient identities (repeatable or comma-separated)")
			flagSet.StringVar(&name, "name", "", "name recorded in the envelope (default the file's base name)")
			flagSet.StringVar(&mediaType, "type", "", "media type (default guessed from the name and content)")
			flagSet.StringVar(&compress, "compression", "", "auto, none, lz4 or zstd (default share.compression)")
			flagSet.BoolVar(&withPreview, "preview", false, "attach an encrypted preview")
			flagSet.BoolVar(&noPreview, "no-preview", false, "do not attach a preview even if share.previews is set")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Share a report with two colleagues", Command: "lockbox share q3.pdf --to bob,carol"},
			{Description: "Share stdin as a named text file", Command: "lockbox share - --name notes.txt --to bob"},
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "lockbox share FILE --to ID"); err != nil {
				return err
			}
			if len(recipients) == 0 {
				return failure.New(failure.Invalid, "--to is required")
			}
			if withPreview && noPreview {
				return failure.New(failure.Invalid, "--preview and --no-preview are mutually exclusive")
			}
			path := args[0]
			data, err := readInput(path)
			if err != nil {
				return err
			}
			if name == "" {
				if path == "-" {
					return failure.New(failure.Invalid, "--name is required when sharing stdin")
				}
				name = filepath.Base(path)
			}
			if mediaType == "" {
				mediaType = guessMediaType(name, data)
			}

			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "share")
			if err != nil {
				return err
			}
			defer s.Close()

			if compress == "" {
				compress = s.config.Share.Compression
			}
			previews := (s.config.Share.Previews || withPreview) && !noPreview

			identity, err := s.identity(ctx)
			if err != nil {
				return err
			}
			client, err := s.hubClient()
			if err != nil {
				return err
			}
			orchestrator, err := s.orchestrator(identity, client)
			if err != nil {
				return err
			}
			env, err := orchestrator.Share(ctx,
				share.Blob{Name: name, MediaType: mediaType, Data: data},
				recipients,
				share.Options{GeneratePreview: previews, Compression: compression.Mode(compress)})
			if err != nil {
				return err
			}

			fmt.Println(env.Address)
			if env.Descriptor.Preview != nil {
				fmt.Fprintf(os.Stderr, "preview: %s\n", env.Descriptor.Preview)
			}
			return nil
		},
	}
}

// guessMediaType prefers the extension and falls back to sniffing.
func guessMediaType(name string, data []byte) string {
	if byExtension := mime.TypeByExtension(filepath.Ext(name)); byExtension != "" {
		return byExtension
	}
	return http.DetectContentType(data)
}

// gatewayFlags override the configured gateways for one command.
type gatewayFlags struct {
	primary   string
	fallbacks []string
}

func (g *gatewayFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&g.primary, "gateway", "", "primary gateway URL (default gateways.primary, then hub.url)")
	flagSet.StringArrayVar(&g.fallbacks, "fallback", nil, "fallback gateway URL (repeatable, at most 2)")
}

func receiveCommand() *cli.Command {
	var (
		options  globalOptions
		gateways gatewayFlags
		output   string
	)
	return &cli.Command{
		Name:    "receive",
		Summary: "Fetch, verify and decrypt a shared file",
		Description: `Fetch the envelope at ADDRESS (you must be its sender or a recipient),
download the ciphertext from the primary gateway or a fallback, unwrap
your copy of the content key and decrypt. Any tampering with the
ciphertext or envelope makes decryption fail.`,
		Usage: "lockbox receive ADDRESS [-o FILE] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("receive", &options)
			flagSet.StringVarP(&output, "output", "o", "", "write the plaintext here (default stdout)")
			gateways.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "lockbox receive ADDRESS"); err != nil {
				return err
			}
			address, err := cas.ParseAddress(args[0])
			if err != nil {
				return failure.Wrap(failure.Invalid, err, "address")
			}

			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "receive")
			if err != nil {
				return err
			}
			defer s.Close()

			identity, err := s.identity(ctx)
			if err != nil {
				return err
			}
			client, err := s.hubClient()
			if err != nil {
				return err
			}
			resolver, err := s.resolver(client, gateways)
			if err != nil {
				return err
			}
			plaintext, env, err := resolver.Receive(ctx, address, identity)
			if err != nil {
				return err
			}
			if err := writeOutput(output, plaintext); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "received %q (%s, %d bytes) from %s\n",
				env.Descriptor.Name, env.Descriptor.MediaType, len(plaintext), env.Sender)
			return nil
		},
	}
}

func openCommand() *cli.Command {
	var (
		options  globalOptions
		gateways gatewayFlags
		output   string
	)
	return &cli.Command{
		Name:    "open",
		Summary: "Fetch raw ciphertext by address with gateway failover",
		Description: `Download the ciphertext stored at ADDRESS without decrypting it, trying
the primary gateway and then each fallback. The bytes are verified
against the address. Useful for mirroring and for checking gateways.`,
		Usage: "lockbox open ADDRESS [-o FILE] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("open", &options)
			flagSet.StringVarP(&output, "output", "o", "", "write the ciphertext here (default stdout)")
			gateways.register(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "lockbox open ADDRESS"); err != nil {
				return err
			}
			address, err := cas.ParseAddress(args[0])
			if err != nil {
				return failure.Wrap(failure.Invalid, err, "address")
			}

			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "open")
			if err != nil {
				return err
			}
			defer s.Close()

			client, err := s.hubClient()
			if err != nil {
				return err
			}
			resolver, err := s.resolver(client, gateways)
			if err != nil {
				return err
			}
			primary, fallbacks := s.gateways(gateways)
			ciphertext, err := resolver.Open(ctx, address, primary, fallbacks)
			if err != nil {
				return err
			}
			return writeOutput(output, ciphertext)
		},
	}
}

func searchCommand() *cli.Command {
	var (
		options globalOptions
		limit   int
	)
	return &cli.Command{
		Name:    "search",
		Summary: "Search the shares you sent or received by name",
		Usage:   "lockbox search [QUERY] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("search", &options)
			flagSet.IntVar(&limit, "limit", 50, "maximum number of results")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 1 {
				return failure.New(failure.Invalid, "usage: lockbox search [QUERY]")
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}

			ctx, cancel := commandContext()
			defer cancel()
			s, err := openSession(ctx, &options, "search")
			if err != nil {
				return err
			}
			defer s.Close()

			client, err := s.hubClient()
			if err != nil {
				return err
			}
			callCtx, callCancel := context.WithTimeout(ctx, s.config.CallTimeout())
			defer callCancel()
			entries, err := client.Search(callCtx, query, limit)
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "ADDRESS\tNAME\tTYPE\tSIZE\tOWNER\tRECIPIENTS\tCREATED")
			for _, entry := range entries {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
					entry.Address, entry.Name, entry.MediaType, entry.Size, entry.Owner,
					entry.RecipientCount, time.UnixMilli(entry.CreatedAt).UTC().Format(time.RFC3339))
			}
			return writer.Flush()
		},
	}
}
