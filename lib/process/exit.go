// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// Fatal writes "error: err" to stderr and exits with code 1. A
// pflag.ErrHelp exits 0 without output, since the flag set already
// printed usage.
func Fatal(err error) {
	os.Exit(report(os.Stderr, err))
}

// report writes err to w and returns the exit code Fatal uses.
func report(w io.Writer, err error) int {
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
