// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/beacon-app/beacon/cmd/beacon/cli"
	"github.com/beacon-app/beacon/graph"
)

type repairOutput struct {
	Users          int `json:"users"`
	Edges          int `json:"edges"`
	Completed      int `json:"completed"`
	Removed        int `json:"removed"`
	RequestCleared int `json:"request_cleared"`
	SelfEntries    int `json:"self_entries"`
}

func repairCommand(env *Env) *cli.Command {
	flags := common{env: env}
	return &cli.Command{
		Name:    "repair",
		Summary: "Make every connection in the store symmetric",
		Description: `Scan every user record and fix connections that only one side lists.

A one-sided edge is completed when the side missing it holds the other
user's request, and removed otherwise. Requests between users who are
already connected are cleared. Users listing themselves are fixed too.`,
		Usage: "beacon repair [--json]",
		Flags: func() *pflag.FlagSet {
			flagSet := flags.flagSet("repair", false)
			flags.jsonFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "beacon repair"); err != nil {
				return err
			}
			app, err := flags.open("repair", 0)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := graph.Repair(context.Background(), graph.RepairConfig{
				Store:       app.store,
				Concurrency: app.config.Sync.RepairConcurrency,
				Logger:      app.logger,
			})
			output := repairOutput(report)
			if flags.json {
				if writeErr := cli.WriteJSON(env.Stdout, output); writeErr != nil {
					return writeErr
				}
			} else {
				fmt.Fprintf(env.Stdout, "scanned %d users, %d edges\n", output.Users, output.Edges)
				fmt.Fprintf(env.Stdout, "completed %d, removed %d, requests cleared %d, self entries %d\n",
					output.Completed, output.Removed, output.RequestCleared, output.SelfEntries)
			}
			return err
		},
	}
}
