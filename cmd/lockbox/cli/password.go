// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/lockbox/lib/failure"
	"github.com/bureau-foundation/lockbox/lib/secret"
)

// ReadPassword returns a password from path when set ("-" is stdin),
// otherwise from the terminal without echo. With confirm, the terminal
// prompt is repeated and both entries must match.
func ReadPassword(prompt, path string, confirm bool) (*secret.Buffer, error) {
	if path != "" {
		password, err := secret.ReadFromPath(path)
		if err != nil {
			return nil, failure.Wrap(failure.Invalid, err, "reading password file")
		}
		return password, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, failure.New(failure.Invalid, "stdin is not a terminal; pass --password-file")
	}
	password, err := promptPassword(fd, prompt)
	if err != nil {
		return nil, err
	}
	if !confirm {
		return password, nil
	}
	again, err := promptPassword(fd, "Repeat "+prompt)
	if err != nil {
		password.Close()
		return nil, err
	}
	defer again.Close()
	if !password.Equal(again) {
		password.Close()
		return nil, failure.New(failure.Invalid, "passwords do not match")
	}
	return password, nil
}

func promptPassword(fd int, prompt string) (*secret.Buffer, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, failure.Wrap(failure.Invalid, err, "reading password")
	}
	if len(data) == 0 {
		return nil, failure.New(failure.Invalid, "password is empty")
	}
	return secret.NewFromBytes(data)
}
