// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lockbox/lib/failure"
)

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "lockbox",
		Subcommands: []*Command{
			{Name: "share", Run: func(args []string) error { called = "share"; return nil }},
			{
				Name: "orphans",
				Subcommands: []*Command{
					{
						Name: "forget",
						Run: func(args []string) error {
							called = "orphans forget"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"orphans", "forget", "op-1"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "orphans forget" {
		t.Errorf("dispatched to %q, want %q", called, "orphans forget")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "op-1" {
		t.Errorf("args = %v, want [op-1]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var recipients []string
	var file string

	command := &Command{
		Name: "share",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("share", pflag.ContinueOnError)
			flagSet.StringSliceVar(&recipients, "to", nil, "recipients")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				file = args[0]
			}
			return nil
		},
	}

	if err := command.Execute([]string{"report.pdf", "--to", "bob,carol", "--to", "dave"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if strings.Join(recipients, " ") != "bob carol dave" {
		t.Errorf("recipients = %v", recipients)
	}
	if file != "report.pdf" {
		t.Errorf("file = %q", file)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "receive",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("receive", pflag.ContinueOnError)
			flagSet.String("gateway", "", "gateway")
			flagSet.StringP("output", "o", "", "output file")
			return flagSet
		},
		Run: func(args []string) error { return nil },
	}

	err := command.Execute([]string{"--gatewya", "x"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --gateway") {
		t.Errorf("error = %q, want suggestion for --gateway", err)
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err)
	}
}

func TestCommand_Execute_UnknownCommandSuggestion(t *testing.T) {
	root := &Command{
		Name: "lockbox",
		Subcommands: []*Command{
			{Name: "receive", Run: func(args []string) error { return nil }},
			{Name: "search", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"recieve"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "receive"`) {
		t.Errorf("error = %v, want suggestion for receive", err)
	}

	err = root.Execute([]string{"zzzzzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion", err)
	}
}

func TestCommand_Help(t *testing.T) {
	var output bytes.Buffer
	root := &Command{
		Name:   "lockbox",
		Output: &output,
		Subcommands: []*Command{
			{
				Name:    "share",
				Summary: "Encrypt and share a file",
				Usage:   "lockbox share FILE --to ID",
				Flags: func() *pflag.FlagSet {
					flagSet := pflag.NewFlagSet("share", pflag.ContinueOnError)
					flagSet.StringSlice("to", nil, "recipient identities")
					return flagSet
				},
				Examples: []Example{{Description: "Share with bob", Command: "lockbox share notes.txt --to bob"}},
				Run:      func(args []string) error { return nil },
			},
		},
	}

	if err := root.Execute([]string{"--help"}); err != nil {
		t.Fatalf("Execute(--help): %v", err)
	}
	if !strings.Contains(output.String(), "Encrypt and share a file") {
		t.Errorf("root help does not list share:\n%s", output.String())
	}

	output.Reset()
	if err := root.Execute([]string{"share", "--help"}); err != nil {
		t.Fatalf("Execute(share --help): %v", err)
	}
	for _, want := range []string{"lockbox share FILE --to ID", "--to", "# Share with bob"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("share help missing %q:\n%s", want, output.String())
		}
	}

	output.Reset()
	if err := root.Execute(nil); err == nil {
		t.Error("Execute with no subcommand succeeded")
	}
}

func TestReport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantText string
	}{
		{"nil", nil, 0, ""},
		{"exit", &ExitError{Code: 3}, 3, ""},
		{"usage", errors.New("unknown command"), 1, "error: unknown command"},
		{
			"access denied",
			fmt.Errorf("receiving: %w", failure.New(failure.AccessDenied, "mallory is not a participant")),
			failure.ExitCode(failure.New(failure.AccessDenied, "")),
			"Access denied",
		},
		{
			"auth failure",
			failure.New(failure.AuthFailure, "message authentication failed"),
			failure.ExitCode(failure.New(failure.AuthFailure, "")),
			"Decryption failed",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var output bytes.Buffer
			if code := Report(&output, test.err); code != test.wantCode {
				t.Errorf("code = %d, want %d", code, test.wantCode)
			}
			if test.wantText == "" && output.Len() != 0 {
				t.Errorf("unexpected output %q", output.String())
			}
			if !strings.Contains(output.String(), test.wantText) {
				t.Errorf("output = %q, want it to contain %q", output.String(), test.wantText)
			}
		})
	}
}
