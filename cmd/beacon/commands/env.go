// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/beacon-app/beacon/cmd/beacon/cli"
	"github.com/beacon-app/beacon/lib/config"
	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/schema"
	"github.com/beacon-app/beacon/store"
)

// Env is where commands write.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
}

// common holds the flags shared by every command that touches the
// store.
type common struct {
	env *Env

	configPath string
	dbPath     string
	as         string
	json       bool
}

func (c *common) flagSet(name string, withUser bool) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&c.configPath, "config", "", "config file (default: $BEACON_CONFIG, else built-in defaults)")
	flagSet.StringVar(&c.dbPath, "db", "", "SQLite database file, overriding store.path")
	if withUser {
		flagSet.StringVar(&c.as, "as", os.Getenv("BEACON_USER"), "act as this user id, or @handle (default: $BEACON_USER)")
	}
	return flagSet
}

func (c *common) jsonFlag(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&c.json, "json", false, "output as JSON")
}

// app is what a command works with once flags are parsed.
type app struct {
	config *config.Config
	logger *slog.Logger
	store  store.Store
}

func (r *app) Close() {
	if err := r.store.Close(); err != nil {
		r.logger.Warn("closing store", "error", err)
	}
}

// open loads configuration and opens the store. pollInterval is passed
// to the SQLite store; zero disables watching for other processes.
func (c *common) open(command string, pollInterval time.Duration) (*app, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cli.NewLogger(cfg.Log, c.env.Stderr)
	if err != nil {
		return nil, err
	}
	logger = logger.With("command", command)

	var st store.Store
	switch cfg.Store.Backend {
	case config.BackendMemory:
		st = store.NewMemory(store.Config{Logger: logger})
	default:
		if err := cfg.EnsurePaths(); err != nil {
			return nil, err
		}
		st, err = store.OpenSQLite(store.SQLiteConfig{
			Config:       store.Config{Logger: logger},
			Path:         cfg.Store.Path,
			PoolSize:     cfg.Store.PoolSize,
			PollInterval: pollInterval,
		})
		if err != nil {
			return nil, err
		}
	}
	return &app{config: cfg, logger: logger, store: st}, nil
}

func (c *common) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case c.configPath != "":
		cfg, err = config.LoadFile(c.configPath)
	case os.Getenv("BEACON_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
		cfg.Expand()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if c.dbPath != "" {
		cfg.Store.Backend = config.BackendSQLite
		cfg.Store.Path = c.dbPath
		cfg.Paths.Root = filepath.Dir(c.dbPath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// user resolves --as.
func (c *common) user(ctx context.Context, st store.Store) (ref.UserID, error) {
	if c.as == "" {
		return ref.UserID{}, errors.New("--as is required (or set BEACON_USER)")
	}
	return resolveUser(ctx, st, c.as)
}

// resolveUser accepts a user id or @handle.
func resolveUser(ctx context.Context, st store.Store, raw string) (ref.UserID, error) {
	handle, isHandle := strings.CutPrefix(raw, "@")
	if !isHandle {
		return ref.ParseUserID(raw)
	}
	documents, err := st.Query(ctx, schema.UsersCollection, schema.FieldUsername, handle)
	if err != nil {
		return ref.UserID{}, err
	}
	switch len(documents) {
	case 0:
		return ref.UserID{}, fmt.Errorf("no user with handle %q", handle)
	case 1:
		return ref.ParseUserID(documents[0].ID())
	}
	return ref.UserID{}, fmt.Errorf("handle %q is held by %d users; use an id", handle, len(documents))
}

// requireArgs checks the positional argument count.
func requireArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}
