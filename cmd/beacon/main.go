// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/beacon-app/beacon/cmd/beacon/commands"
	"github.com/beacon-app/beacon/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	env := &commands.Env{Stdout: os.Stdout, Stderr: os.Stderr}
	return commands.Root(env).Execute(os.Args[1:])
}
