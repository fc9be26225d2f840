// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"abc", "ab", 1},
		{"abc", "bac", 2},
		{"kitten", "sitting", 3},
		{"receive", "recieve", 2},
		{"orphans", "orphan", 1},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	flagSet := pflag.NewFlagSet("share", pflag.ContinueOnError)
	flagSet.StringSlice("to", nil, "")
	flagSet.String("compression", "", "")
	flagSet.Bool("no-preview", false, "")

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--compresion", "zstd"}, "--compression"},
		{[]string{"--to", "bob", "--no-preveiw"}, "--no-preview"},
		{[]string{"--entirely-unrelated"}, ""},
		{[]string{"file.txt"}, ""},
	}
	for _, test := range tests {
		if got := suggestFlag(test.args, flagSet); got != test.want {
			t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
		}
	}
}
