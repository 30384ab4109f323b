// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/beacon-app/beacon/cmd/beacon/cli"
	"github.com/beacon-app/beacon/geo"
	"github.com/beacon-app/beacon/presence"
)

func locateCommand(env *Env) *cli.Command {
	flags := common{env: env}
	return &cli.Command{
		Name:    "locate",
		Summary: "Publish your position to your connections",
		Usage:   "beacon locate <latitude,longitude> --as USER",
		Examples: []cli.Example{
			{Description: "Publish a fix in Oxford", Command: "beacon locate 51.752,-1.2577 --as @alice"},
		},
		Flags: func() *pflag.FlagSet { return flags.flagSet("locate", true) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "beacon locate <latitude,longitude>"); err != nil {
				return err
			}
			at, err := geo.ParseCoordinates(args[0])
			if err != nil {
				return err
			}
			app, err := flags.open("locate", 0)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := context.Background()
			self, err := flags.user(ctx, app.store)
			if err != nil {
				return err
			}
			// Running the command is the user's consent to share.
			publisher, err := presence.New(presence.Config{
				Store:       app.store,
				User:        self,
				Permissions: geo.StaticPermission(geo.Granted),
				Logger:      app.logger,
			})
			if err != nil {
				return err
			}
			if err := publisher.Publish(ctx, at); err != nil {
				return err
			}
			fmt.Fprintf(env.Stdout, "published %s\n", at)
			return nil
		},
	}
}
