// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/lockbox/lib/failure"
)

// ExitError signals a non-zero exit code without printing an extra
// error message. The command is expected to have written its own
// output already.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Report writes err for a person to w and returns the process exit
// code. Kinded errors use failure.UserMessage and failure.ExitCode;
// usage errors from the command tree print verbatim with code 1.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	var kinded *failure.Error
	if !errors.As(err, &kinded) {
		fmt.Fprintf(w, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(w, "error: %s\n", failure.UserMessage(err))
	return failure.ExitCode(err)
}
