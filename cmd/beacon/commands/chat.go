// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/beacon-app/beacon/chat"
	"github.com/beacon-app/beacon/cmd/beacon/cli"
)

type messageOutput struct {
	ID     string    `json:"id"`
	Thread string    `json:"thread"`
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

func messagesOutput(messages []chat.Message) []messageOutput {
	output := make([]messageOutput, len(messages))
	for i, m := range messages {
		output[i] = messageOutput{
			ID:     m.ID,
			Thread: m.Thread.String(),
			Sender: m.SenderID.String(),
			Text:   m.Text,
			SentAt: m.SentAt.UTC(),
		}
	}
	return output
}

func formatMessage(m chat.Message) string {
	return fmt.Sprintf("%s  %s: %s", m.SentAt.UTC().Format(time.RFC3339), m.SenderID, m.Text)
}

// chatSession opens the store and a chat service acting as --as.
func (c *common) chatSession(command string) (*app, *chat.Service, error) {
	app, err := c.open(command, 0)
	if err != nil {
		return nil, nil, err
	}
	self, err := c.user(context.Background(), app.store)
	if err != nil {
		app.Close()
		return nil, nil, err
	}
	service, err := chat.New(chat.Config{
		Store:            app.store,
		User:             self,
		MaxMessageLength: app.config.Chat.MaxMessageLength,
		Logger:           app.logger,
	})
	if err != nil {
		app.Close()
		return nil, nil, err
	}
	return app, service, nil
}

func sendCommand(env *Env) *cli.Command {
	flags := common{env: env}
	return &cli.Command{
		Name:    "send",
		Summary: "Send a message to another user",
		Usage:   "beacon send <user id | @handle> <text...> --as USER",
		Examples: []cli.Example{
			{Description: "Say hello to bob", Command: "beacon send @bob hello there --as @alice"},
		},
		Flags: func() *pflag.FlagSet { return flags.flagSet("send", true) },
		Run: func(args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("usage: beacon send <user id | @handle> <text...>")
			}
			app, service, err := flags.chatSession("send")
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := context.Background()
			peer, err := resolveUser(ctx, app.store, args[0])
			if err != nil {
				return err
			}
			key, err := service.Thread(peer)
			if err != nil {
				return err
			}
			message, err := service.Send(ctx, key, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(env.Stdout, message.ID)
			return nil
		},
	}
}

func historyCommand(env *Env) *cli.Command {
	flags := common{env: env}
	return &cli.Command{
		Name:    "history",
		Summary: "Print the messages exchanged with another user",
		Usage:   "beacon history <user id | @handle> --as USER [--json]",
		Flags: func() *pflag.FlagSet {
			flagSet := flags.flagSet("history", true)
			flags.jsonFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := requireArgs(args, 1, "beacon history <user id | @handle>"); err != nil {
				return err
			}
			app, service, err := flags.chatSession("history")
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := context.Background()
			peer, err := resolveUser(ctx, app.store, args[0])
			if err != nil {
				return err
			}
			key, err := service.Thread(peer)
			if err != nil {
				return err
			}
			messages, err := service.History(ctx, key)
			if err != nil {
				return err
			}
			if flags.json {
				return cli.WriteJSON(env.Stdout, messagesOutput(messages))
			}
			for _, m := range messages {
				fmt.Fprintln(env.Stdout, formatMessage(m))
			}
			return nil
		},
	}
}
