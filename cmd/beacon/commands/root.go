// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"github.com/beacon-app/beacon/cmd/beacon/cli"
	"github.com/beacon-app/beacon/lib/version"
)

// Root returns the beacon command tree writing to env.
func Root(env *Env) *cli.Command {
	return &cli.Command{
		Name:    "beacon",
		Summary: "Location sharing and chat over a shared record store",
		Description: `beacon operates the synchronization engine against a local record store.

Users sign up with a handle, connect through requests, publish their
location to their connections, and chat in two-party threads. Commands
act as the user named by --as (an id, or @handle).`,
		Output: env.Stderr,
		Subcommands: []*cli.Command{
			signupCommand(env),
			findCommand(env),
			requestCommand(env),
			acceptCommand(env),
			declineCommand(env),
			cancelCommand(env),
			disconnectCommand(env),
			statusCommand(env),
			locateCommand(env),
			sendCommand(env),
			historyCommand(env),
			watchCommand(env),
			repairCommand(env),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					version.Fprint(env.Stdout, "beacon")
					return nil
				},
			},
		},
	}
}
