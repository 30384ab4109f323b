// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/beacon-app/beacon/identity"
)

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Session is the template for every session. Its User is replaced
	// by the identity signing in.
	Session Config

	// OnSession is called with each newly opened session, from the
	// Run goroutine. The session is valid until the next transition.
	OnSession func(*Session)

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger
}

// Coordinator keeps a Session open for whoever is signed in.
type Coordinator struct {
	config    Config
	onSession func(*Session)
	logger    *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Session.Store == nil {
		return nil, errors.New("syncengine: Session.Store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Session.Logger == nil {
		cfg.Session.Logger = logger
	}
	return &Coordinator{
		config:    cfg.Session,
		onSession: cfg.OnSession,
		logger:    logger,
	}, nil
}

// Current returns the open session, or nil.
func (c *Coordinator) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Run follows transitions until the channel closes or ctx is done,
// then closes the open session. A sign-in always closes the previous
// session before opening the next, even for the same user. A session
// that fails to open is logged and the coordinator waits for the next
// transition.
func (c *Coordinator) Run(ctx context.Context, transitions <-chan identity.Transition) error {
	defer c.teardown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case transition, ok := <-transitions:
			if !ok {
				return nil
			}
			c.teardown()
			if !transition.SignedIn {
				c.logger.Info("signed out")
				continue
			}

			cfg := c.config
			cfg.User = transition.UserID
			session, err := Open(ctx, cfg)
			if err != nil {
				c.logger.Error("opening session failed", "user_id", transition.UserID.String(), "error", err)
				continue
			}
			c.mu.Lock()
			c.current = session
			c.mu.Unlock()
			if c.onSession != nil {
				c.onSession(session)
			}
		}
	}
}

func (c *Coordinator) teardown() {
	c.mu.Lock()
	session := c.current
	c.current = nil
	c.mu.Unlock()
	if session != nil {
		session.Close()
	}
}
