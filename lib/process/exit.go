// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// ExitCoder is implemented by errors that carry their own exit status.
// Their message has already been reported, so Fatal prints nothing.
type ExitCoder interface {
	ExitCode() int
}

// Fatal reports err on stderr and exits. Every main() ends with
//
//	if err := run(); err != nil {
//	    process.Fatal(err)
//	}
func Fatal(err error) {
	if coder, ok := err.(ExitCoder); ok {
		os.Exit(coder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
