// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/beacon-app/beacon/cmd/beacon/cli"
	"github.com/beacon-app/beacon/graph"
	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/syncerr"
	"github.com/beacon-app/beacon/profile"
)

// edgeCommand builds the commands that apply one graph operation to
// one peer.
func edgeCommand(env *Env, name, summary, done string, apply func(*graph.Service, context.Context, ref.UserID) error) *cli.Command {
	flags := common{env: env}
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   fmt.Sprintf("beacon %s <user id | @handle> --as USER", name),
		Flags:   func() *pflag.FlagSet { return flags.flagSet(name, true) },
		Run: func(args []string) error {
			if err := requireArgs(args, 1, fmt.Sprintf("beacon %s <user id | @handle>", name)); err != nil {
				return err
			}
			app, err := flags.open(name, 0)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := context.Background()
			self, err := flags.user(ctx, app.store)
			if err != nil {
				return err
			}
			peer, err := resolveUser(ctx, app.store, args[0])
			if err != nil {
				return err
			}
			service, err := graph.New(graph.Config{Store: app.store, User: self, Logger: app.logger})
			if err != nil {
				return err
			}

			err = apply(service, ctx, peer)
			var partial *syncerr.PartialWriteError
			if errors.As(err, &partial) {
				app.logger.Warn("operation half applied, repairing edge", "peer", peer.String(), "error", err)
				fix, repairErr := service.RepairEdge(ctx, peer)
				if repairErr != nil {
					return fmt.Errorf("%w (repair failed: %v; run 'beacon repair')", err, repairErr)
				}
				fmt.Fprintf(env.Stdout, "%s %s (repair: %s)\n", done, peer, fix)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Stdout, "%s %s\n", done, peer)
			return nil
		},
	}
}

func requestCommand(env *Env) *cli.Command {
	return edgeCommand(env, "request", "Ask a user to connect", "requested", (*graph.Service).Request)
}

func acceptCommand(env *Env) *cli.Command {
	return edgeCommand(env, "accept", "Accept a pending connection request", "connected to", (*graph.Service).Accept)
}

func declineCommand(env *Env) *cli.Command {
	return edgeCommand(env, "decline", "Decline a pending connection request", "declined", (*graph.Service).Decline)
}

func cancelCommand(env *Env) *cli.Command {
	return edgeCommand(env, "cancel", "Withdraw a connection request you sent", "cancelled request to", (*graph.Service).Cancel)
}

func disconnectCommand(env *Env) *cli.Command {
	return edgeCommand(env, "disconnect", "Remove a connection", "disconnected from", (*graph.Service).Disconnect)
}

type statusOutput struct {
	User        string          `json:"user"`
	Connections []profileOutput `json:"connections"`
	Requests    []profileOutput `json:"requests"`
}

type profileOutput struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Relation string `json:"relation,omitempty"`
}

func statusCommand(env *Env) *cli.Command {
	flags := common{env: env}
	return &cli.Command{
		Name:    "status",
		Summary: "Show your connections and pending requests",
		Usage:   "beacon status --as USER [--json]",
		Flags: func() *pflag.FlagSet {
			flagSet := flags.flagSet("status", true)
			flags.jsonFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "beacon status"); err != nil {
				return err
			}
			app, err := flags.open("status", 0)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := context.Background()
			self, err := flags.user(ctx, app.store)
			if err != nil {
				return err
			}
			service, err := graph.New(graph.Config{Store: app.store, User: self, Logger: app.logger})
			if err != nil {
				return err
			}
			directory, err := profile.New(profile.Config{Store: app.store, Logger: app.logger})
			if err != nil {
				return err
			}
			state, err := service.State(ctx)
			if err != nil {
				return err
			}
			if !state.Exists {
				return fmt.Errorf("%s: %w", self, syncerr.ErrNoSuchUser)
			}
			connections, err := directory.Resolve(ctx, state.Connections)
			if err != nil {
				return err
			}
			requests, err := directory.Resolve(ctx, state.PendingRequests)
			if err != nil {
				return err
			}

			output := statusOutput{
				User:        self.String(),
				Connections: profilesOutput(connections, ""),
				Requests:    profilesOutput(requests, graph.Incoming.String()),
			}
			if flags.json {
				return cli.WriteJSON(env.Stdout, output)
			}

			tw := tabwriter.NewWriter(env.Stdout, 2, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "CONNECTIONS\t%d\n", len(output.Connections))
			for _, p := range output.Connections {
				fmt.Fprintf(tw, "  %s\t%s\t@%s\n", p.ID, p.Name, p.Username)
			}
			fmt.Fprintf(tw, "REQUESTS\t%d\n", len(output.Requests))
			for _, p := range output.Requests {
				fmt.Fprintf(tw, "  %s\t%s\t@%s\n", p.ID, p.Name, p.Username)
			}
			return tw.Flush()
		},
	}
}

func profilesOutput(profiles []profile.Profile, relation string) []profileOutput {
	output := make([]profileOutput, len(profiles))
	for i, p := range profiles {
		output[i] = profileOutput{
			ID:       p.ID.String(),
			Name:     p.DisplayName(),
			Username: p.Username,
			Relation: relation,
		}
	}
	return output
}
