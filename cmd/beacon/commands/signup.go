// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/beacon-app/beacon/cmd/beacon/cli"
	"github.com/beacon-app/beacon/identity"
	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/profile"
)

func signupCommand(env *Env) *cli.Command {
	flags := common{env: env}
	var name, email, id string
	return &cli.Command{
		Name:    "signup",
		Summary: "Register a new user",
		Usage:   "beacon signup <handle> [--name NAME] [--email EMAIL]",
		Examples: []cli.Example{
			{Description: "Register alice and print her user id", Command: `beacon signup alice --name "Alice Liddell"`},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := flags.flagSet("signup", false)
			flagSet.StringVar(&name, "name", "", "display name")
			flagSet.StringVar(&email, "email", "", "contact address")
			flagSet.StringVar(&id, "id", "", "user id to register (default: a new random id)")
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "beacon signup <handle>"); err != nil {
				return err
			}
			user := identity.NewUserID()
			if id != "" {
				parsed, err := ref.ParseUserID(id)
				if err != nil {
					return err
				}
				user = parsed
			}

			app, err := flags.open("signup", 0)
			if err != nil {
				return err
			}
			defer app.Close()

			directory, err := profile.New(profile.Config{Store: app.store, Logger: app.logger})
			if err != nil {
				return err
			}
			registered, err := directory.Register(context.Background(), user, profile.Registration{
				Name:     name,
				Username: args[0],
				Email:    email,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(env.Stdout, registered.ID)
			return nil
		},
	}
}
