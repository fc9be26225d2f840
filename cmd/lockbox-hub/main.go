// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command lockbox-hub runs the reference lockbox hub: the public-key
// directory, envelope metadata store, search index and ciphertext
// gateway behind one HTTP API.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lockbox/cmd/lockbox/cli"
	"github.com/bureau-foundation/lockbox/lib/cas"
	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/hub"
	"github.com/bureau-foundation/lockbox/lib/hubstore"
	"github.com/bureau-foundation/lockbox/lib/secret"
	"github.com/bureau-foundation/lockbox/lib/sqlitepool"
	"github.com/bureau-foundation/lockbox/lib/version"
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
		Name:    "lockbox-hub",
		Summary: "Reference hub for lockbox",
		Subcommands: []*cli.Command{
			serveCommand(),
			tokenCommand(),
			initSecretCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Println("lockbox-hub " + version.Full())
					return nil
				},
			},
		},
	}
}

func serveCommand() *cli.Command {
	var (
		listen          string
		databasePath    string
		blobsDir        string
		tokenSecretFile string
		maxBlobSize     int64
		shutdownTimeout time.Duration
		verbose         bool
	)
	return &cli.Command{
		Name:    "serve",
		Summary: "Serve the hub API until SIGINT or SIGTERM",
		Usage:   "lockbox-hub serve --database FILE --blobs DIR --token-secret-file FILE [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			flagSet.StringVar(&listen, "listen", "127.0.0.1:8450", "TCP listen address")
			flagSet.StringVar(&databasePath, "database", "", "hub sqlite database (created if missing)")
			flagSet.StringVar(&blobsDir, "blobs", "", "directory for ciphertext blobs")
			flagSet.StringVar(&tokenSecretFile, "token-secret-file", "", "file holding the bearer token secret")
			flagSet.Int64Var(&maxBlobSize, "max-blob-size", hub.DefaultMaxBlobSize, "largest accepted upload in bytes")
			flagSet.DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")
			flagSet.BoolVarP(&verbose, "verbose", "v", false, "log every request")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return failure.New(failure.Invalid, "serve takes no arguments")
			}
			var missing []error
			if databasePath == "" {
				missing = append(missing, errors.New("--database is required"))
			}
			if blobsDir == "" {
				missing = append(missing, errors.New("--blobs is required"))
			}
			if tokenSecretFile == "" {
				missing = append(missing, errors.New("--token-secret-file is required"))
			}
			if err := errors.Join(missing...); err != nil {
				return failure.Wrap(failure.Invalid, err, "serve")
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			tokenSecret, err := secret.ReadFromPath(tokenSecretFile)
			if err != nil {
				return failure.Wrap(failure.Invalid, err, "reading token secret")
			}
			defer tokenSecret.Close()

			pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
				Path:   databasePath,
				Schema: hubstore.Schema,
				Logger: logger,
			})
			if err != nil {
				return failure.Wrap(failure.Internal, err, "opening hub database")
			}
			defer pool.Close()

			blobs, err := cas.NewDirStore(blobsDir)
			if err != nil {
				return failure.Wrap(failure.Internal, err, "opening blob store")
			}

			server, err := hub.NewServer(hub.ServerConfig{
				Address:         listen,
				Store:           hubstore.New(pool, nil, logger),
				Blobs:           blobs,
				TokenSecret:     tokenSecret,
				MaxBlobSize:     maxBlobSize,
				ShutdownTimeout: shutdownTimeout,
				Logger:          logger,
			})
			if err != nil {
				return failure.Wrap(failure.Invalid, err, "configuring hub")
			}
			logger.Info("lockbox-hub starting", "version", version.Info(), "database", databasePath, "blobs", blobsDir)
			return server.Serve(ctx)
		},
	}
}

func tokenCommand() *cli.Command {
	var (
		tokenSecretFile string
		lifetime        time.Duration
	)
	return &cli.Command{
		Name:    "token",
		Summary: "Mint a bearer token for an identity",
		Description: `Print the bearer token IDENTITY presents to the hub. Hand it to the
user out of band; they point hub.token_file at it.

Tokens expire after --ttl. Rotating the token secret (init-secret on a
new file, then restarting serve with it) revokes every issued token.`,
		Usage: "lockbox-hub token IDENTITY --token-secret-file FILE [--ttl DURATION]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("token", pflag.ContinueOnError)
			flagSet.StringVar(&tokenSecretFile, "token-secret-file", "", "file holding the bearer token secret")
			flagSet.DurationVar(&lifetime, "ttl", hub.DefaultTokenLifetime, "how long the token stays valid")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 || args[0] == "" {
				return failure.New(failure.Invalid, "usage: lockbox-hub token IDENTITY --token-secret-file FILE")
			}
			if tokenSecretFile == "" {
				return failure.New(failure.Invalid, "--token-secret-file is required")
			}
			if lifetime <= 0 {
				return failure.New(failure.Invalid, "--ttl must be positive, got %s", lifetime)
			}
			tokenSecret, err := secret.ReadFromPath(tokenSecretFile)
			if err != nil {
				return failure.Wrap(failure.Invalid, err, "reading token secret")
			}
			defer tokenSecret.Close()
			fmt.Println(hub.MintToken(tokenSecret.Bytes(), args[0], time.Now().Add(lifetime)))
			return nil
		},
	}
}

func initSecretCommand() *cli.Command {
	return &cli.Command{
		Name:    "init-secret",
		Summary: "Write a new random token secret",
		Usage:   "lockbox-hub init-secret FILE",
		Run: func(args []string) error {
			if len(args) != 1 {
				return failure.New(failure.Invalid, "usage: lockbox-hub init-secret FILE")
			}
			return writeTokenSecret(args[0])
		},
	}
}

// writeTokenSecret writes 32 random bytes, hex-encoded, to a new file.
// Rotating the secret invalidates every issued token.
func writeTokenSecret(path string) error {
	random, err := secret.NewRandom(32)
	if err != nil {
		return failure.Wrap(failure.Internal, err, "generating token secret")
	}
	defer random.Close()

	encoded := make([]byte, hex.EncodedLen(random.Len())+1)
	hex.Encode(encoded, random.Bytes())
	encoded[len(encoded)-1] = '\n'
	defer secret.Zero(encoded)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return failure.Wrap(failure.Invalid, err, "creating secret directory")
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return failure.New(failure.Conflict, "%s already exists; remove it to rotate the secret", path)
		}
		return failure.Wrap(failure.Invalid, err, "creating token secret")
	}
	if _, err := file.Write(encoded); err != nil {
		file.Close()
		return failure.Wrap(failure.Internal, err, "writing token secret")
	}
	return file.Close()
}
