// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lockbox/cmd/lockbox/cli"
	"github.com/bureau-foundation/lockbox/lib/aead"
	"github.com/bureau-foundation/lockbox/lib/config"
	"github.com/bureau-foundation/lockbox/lib/custody"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/hub"
	"github.com/bureau-foundation/lockbox/lib/keywrap"
	"github.com/bureau-foundation/lockbox/lib/orphan"
	"github.com/bureau-foundation/lockbox/lib/retrieve"
	"github.com/bureau-foundation/lockbox/lib/share"
	"github.com/bureau-foundation/lockbox/lib/sqlitepool"
)

// globalOptions are accepted by every command that touches state.
type globalOptions struct {
	configPath string
	verbose    bool
}

func newFlagSet(name string, options *globalOptions) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&options.configPath, "config", "", "path to lockbox.yaml (default $LOCKBOX_CONFIG)")
	flagSet.BoolVarP(&options.verbose, "verbose", "v", false, "log debug detail to stderr")
	return flagSet
}

// commandContext is cancelled on SIGINT or SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// session is the loaded configuration and local state for one command.
type session struct {
	config     *config.Config
	logger     *slog.Logger
	pool       *sqlitepool.Pool
	identities *custody.Store
	orphans    *orphan.Ledger
}

func openSession(ctx context.Context, options *globalOptions, command string) (*session, error) {
	var cfg *config.Config
	var err error
	if options.configPath != "" {
		cfg, err = config.LoadFile(options.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, failure.Wrap(failure.Invalid, err, "loading configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, failure.Wrap(failure.Invalid, err, "invalid configuration")
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, failure.Wrap(failure.Internal, err, "preparing state directory")
	}

	logger := cli.NewCommandLogger(options.verbose).With("command", command)
	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:   cfg.DatabasePath(),
		Schema: custody.Schema + orphan.Schema,
		Logger: logger,
	})
	if err != nil {
		return nil, failure.Wrap(failure.Internal, err, "opening state database")
	}
	identities, err := custody.NewStore(custody.Config{
		Pool:   pool,
		Name:   cfg.Identity,
		Logger: logger,
	})
	if err != nil {
		pool.Close()
		return nil, failure.Wrap(failure.Internal, err, "opening identity store")
	}
	return &session{
		config:     cfg,
		logger:     logger,
		pool:       pool,
		identities: identities,
		orphans:    orphan.NewLedger(pool, nil),
	}, nil
}

func (s *session) Close() {
	if err := s.identities.Close(); err != nil {
		s.logger.Warn("closing identity store", "error", err)
	}
	if err := s.pool.Close(); err != nil {
		s.logger.Warn("closing state database", "error", err)
	}
}

// identity loads the local identity, which "lockbox init" creates.
func (s *session) identity(ctx context.Context) (*custody.Identity, error) {
	identity, err := s.identities.Load(ctx)
	if failure.Is(err, failure.NotFound) {
		return nil, failure.New(failure.NotFound, "no identity %q in %s; run 'lockbox init' first",
			s.config.Identity, s.config.DatabasePath())
	}
	return identity, err
}

func (s *session) hubClient() (*hub.Client, error) {
	if s.config.Hub.TokenFile == "" {
		return nil, failure.New(failure.Invalid, "hub.token_file is not configured")
	}
	data, err := os.ReadFile(s.config.Hub.TokenFile)
	if err != nil {
		return nil, failure.Wrap(failure.Invalid, err, "reading hub token")
	}
	client, err := hub.NewClient(hub.ClientConfig{
		URL:    s.config.Hub.URL,
		Token:  strings.TrimSpace(string(data)),
		Logger: s.logger,
	})
	if err != nil {
		return nil, failure.Wrap(failure.Invalid, err, "hub client")
	}
	return client, nil
}

func (s *session) orchestrator(identity *custody.Identity, client *hub.Client) (*share.Orchestrator, error) {
	cipher, err := aead.Lookup(s.config.Crypto.Cipher)
	if err != nil {
		return nil, failure.Wrap(failure.Invalid, err, "crypto.cipher")
	}
	wrapper, err := keywrap.Lookup(s.config.Crypto.KeyWrap)
	if err != nil {
		return nil, failure.Wrap(failure.Invalid, err, "crypto.key_wrap")
	}
	return share.New(share.Config{
		Sender:      identity,
		Cipher:      cipher,
		Wrapper:     wrapper,
		Directory:   client.Directory(),
		Storage:     client,
		Metadata:    client.Metadata(),
		Index:       client.Index(),
		Orphans:     s.orphans,
		Previews:    s.config.PreviewGenerator(),
		CallTimeout: s.config.CallTimeout(),
		Logger:      s.logger,
	})
}

// gateways returns the flag overrides, or the configured gateways
// where a flag was not given.
func (s *session) gateways(flags gatewayFlags) (string, []string) {
	primary, fallbacks := flags.primary, flags.fallbacks
	if primary == "" {
		primary = s.config.PrimaryGateway()
	}
	if fallbacks == nil {
		fallbacks = s.config.Gateways.Fallbacks
	}
	return primary, fallbacks
}

func (s *session) resolver(client *hub.Client, gateways gatewayFlags) (*retrieve.Resolver, error) {
	primary, fallbacks := s.gateways(gateways)
	return retrieve.New(retrieve.Config{
		Storage:     client,
		Metadata:    client.Metadata(),
		Primary:     primary,
		Fallbacks:   fallbacks,
		CallTimeout: s.config.CallTimeout(),
		Logger:      s.logger,
	})
}

// readInput reads path, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, failure.Wrap(failure.NotFound, err, "reading input")
		}
		return nil, failure.Wrap(failure.Invalid, err, "reading input")
	}
	return data, nil
}

// writeOutput writes data to path with owner-only permissions, or to
// stdout when path is "" or "-".
func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return failure.Wrap(failure.Invalid, err, fmt.Sprintf("writing %s", path))
	}
	return nil
}

func requireArgs(args []string, count int, usage string) error {
	if len(args) != count {
		return failure.New(failure.Invalid, "usage: %s", usage)
	}
	return nil
}
