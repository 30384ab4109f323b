// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/beacon-app/beacon/cmd/beacon/cli"
	"github.com/beacon-app/beacon/geo"
	"github.com/beacon-app/beacon/identity"
	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/syncengine"
)

// watchPollInterval is how often watch looks for commits made by other
// processes sharing the database.
const watchPollInterval = 250 * time.Millisecond

func watchCommand(env *Env) *cli.Command {
	flags := common{env: env}
	var threads []string
	return &cli.Command{
		Name:    "watch",
		Summary: "Follow your roster, requests, and threads live",
		Description: `Open a sync session and print every change until interrupted.

Changes made by other beacon processes sharing the database appear as
they are committed. Use --thread to also follow a conversation.`,
		Usage: "beacon watch --as USER [--thread PEER]...",
		Examples: []cli.Example{
			{Description: "Follow alice's session and her thread with bob", Command: "beacon watch --as @alice --thread @bob"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := flags.flagSet("watch", true)
			flagSet.StringArrayVar(&threads, "thread", nil, "also follow the thread with this user (repeatable)")
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "beacon watch"); err != nil {
				return err
			}
			app, err := flags.open("watch", watchPollInterval)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			self, err := flags.user(ctx, app.store)
			if err != nil {
				return err
			}
			peers := make([]ref.UserID, 0, len(threads))
			for _, raw := range threads {
				peer, err := resolveUser(ctx, app.store, raw)
				if err != nil {
					return err
				}
				peers = append(peers, peer)
			}
			repairDelay, err := app.config.RepairDelayDuration()
			if err != nil {
				return err
			}

			var (
				outputMu sync.Mutex
				printers sync.WaitGroup
			)
			printEvents := func(events []syncengine.Event) {
				outputMu.Lock()
				defer outputMu.Unlock()
				for _, event := range events {
					fmt.Fprint(env.Stdout, formatEvent(event))
				}
			}

			coordinator, err := syncengine.NewCoordinator(syncengine.CoordinatorConfig{
				Session: syncengine.Config{
					Store:            app.store,
					Permissions:      geo.StaticPermission(geo.Granted),
					RepairDelay:      repairDelay,
					MaxMessageLength: app.config.Chat.MaxMessageLength,
					Logger:           app.logger,
				},
				OnSession: func(session *syncengine.Session) {
					for _, peer := range peers {
						if _, err := session.OpenThread(ctx, peer); err != nil {
							app.logger.Warn("opening thread failed", "peer", peer.String(), "error", err)
						}
					}
					printers.Add(1)
					go func() {
						defer printers.Done()
						for events := range session.Events() {
							printEvents(events)
						}
					}()
				},
				Logger: app.logger,
			})
			if err != nil {
				return err
			}

			local := identity.NewLocal()
			local.SignIn(self)
			transitions := local.Watch()
			defer transitions.Cancel()

			app.logger.Info("watching", "user_id", self.String())
			err = coordinator.Run(ctx, transitions.Updates())
			printers.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// formatEvent renders one session event as lines of text.
func formatEvent(event syncengine.Event) string {
	var b strings.Builder
	switch event.Kind {
	case syncengine.RosterUpdated:
		fmt.Fprintf(&b, "roster: %d peers\n", len(event.Roster))
		for _, entry := range event.Roster {
			fmt.Fprintf(&b, "  %s (%s) at %.5f,%.5f, %s\n",
				entry.DisplayName, entry.UserID,
				entry.Latitude, entry.Longitude,
				entry.UpdatedAt.UTC().Format(time.RFC3339))
		}
	case syncengine.RequestsUpdated:
		names := make([]string, len(event.Requests))
		for i, p := range event.Requests {
			names[i] = fmt.Sprintf("%s (%s)", p.DisplayName(), p.ID)
		}
		fmt.Fprintf(&b, "requests: %s\n", listOrNone(names))
	case syncengine.ConnectionsUpdated:
		fmt.Fprintf(&b, "connections: %s\n", listOrNone(ref.UserIDStrings(event.Connections)))
	case syncengine.MessagesReceived:
		for _, m := range event.Messages {
			fmt.Fprintf(&b, "[%s] %s\n", event.Thread, formatMessage(m))
		}
	case syncengine.RepairCompleted:
		fmt.Fprintf(&b, "repair: %s %s\n", event.Peer, event.Fix)
	default:
		fmt.Fprintf(&b, "%s\n", event.Kind)
	}
	return b.String()
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
