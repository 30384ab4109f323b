// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/beacon-app/beacon/cmd/beacon/cli"
	"github.com/beacon-app/beacon/profile"
)

func findCommand(env *Env) *cli.Command {
	flags := common{env: env}
	return &cli.Command{
		Name:    "find",
		Summary: "Search users by exact handle",
		Usage:   "beacon find <handle> --as USER [--json]",
		Examples: []cli.Example{
			{Description: "Look up bob and see whether you are connected", Command: "beacon find bob --as @alice"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := flags.flagSet("find", true)
			flags.jsonFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "beacon find <handle>"); err != nil {
				return err
			}
			app, err := flags.open("find", 0)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := context.Background()
			self, err := flags.user(ctx, app.store)
			if err != nil {
				return err
			}
			directory, err := profile.New(profile.Config{Store: app.store, Logger: app.logger})
			if err != nil {
				return err
			}
			matches, err := directory.FindByHandle(ctx, self, args[0])
			if err != nil {
				return err
			}

			output := make([]profileOutput, len(matches))
			for i, match := range matches {
				output[i] = profileOutput{
					ID:       match.Profile.ID.String(),
					Name:     match.Profile.DisplayName(),
					Username: match.Profile.Username,
					Relation: match.Relation.String(),
				}
			}
			if flags.json {
				return cli.WriteJSON(env.Stdout, output)
			}
			if len(output) == 0 {
				fmt.Fprintf(env.Stderr, "no users with handle %q\n", args[0])
				return nil
			}
			tw := tabwriter.NewWriter(env.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tHANDLE\tRELATION")
			for _, p := range output {
				fmt.Fprintf(tw, "%s\t%s\t@%s\t%s\n", p.ID, p.Name, p.Username, p.Relation)
			}
			return tw.Flush()
		},
	}
}
