// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	originalCommit, originalDirty := GitCommit, GitDirty
	defer func() { GitCommit, GitDirty = originalCommit, originalDirty }()

	GitCommit = "abc1234"
	GitDirty = "true"
	if got := Info(); !strings.Contains(got, "abc1234-dirty") {
		t.Errorf("Info() = %q, want dirty marker", got)
	}
	GitDirty = "false"
	if got := Info(); strings.Contains(got, "dirty") {
		t.Errorf("Info() = %q, want no dirty marker", got)
	}
	if got := Full(); !strings.Contains(got, runtime.Version()) {
		t.Errorf("Full() = %q, want Go version", got)
	}
	if got := UserAgent(); got != "lockbox/"+Version {
		t.Errorf("UserAgent() = %q", got)
	}
}
