// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/beacon-app/beacon/geo"
	"github.com/beacon-app/beacon/lib/clock"
	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/schema"
	"github.com/beacon-app/beacon/lib/syncerr"
	"github.com/beacon-app/beacon/store"
)

// Config holds the collaborators of a Publisher.
type Config struct {
	Store store.Store

	// User is the signed-in identity whose record is written.
	User ref.UserID

	// Permissions is consulted before every write. Nil means granted.
	Permissions geo.Permissions

	// Clock stamps updatedAt. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives failures from Run. Nil discards them.
	Logger *slog.Logger
}

// Publisher writes position fixes to one user's record.
type Publisher struct {
	store       store.Store
	user        ref.UserID
	permissions geo.Permissions
	clock       clock.Clock
	logger      *slog.Logger
}

// New creates a Publisher.
func New(cfg Config) (*Publisher, error) {
	if cfg.Store == nil {
		return nil, errors.New("presence: Store is required")
	}
	if cfg.User.IsZero() {
		return nil, errors.New("presence: User is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{
		store:       cfg.Store,
		user:        cfg.User,
		permissions: cfg.Permissions,
		clock:       clk,
		logger:      logger.With("user_id", cfg.User.String()),
	}, nil
}

// Publish writes one fix as the user's location. It makes a single
// attempt. Errors classify as PermissionDenied, Validation, or
// StoreUnavailable.
func (p *Publisher) Publish(ctx context.Context, at geo.Coordinates) error {
	if p.permissions != nil {
		if permission := p.permissions.LocationPermission(); permission != geo.Granted {
			return syncerr.Op("publish location", fmt.Errorf("location permission %s: %w", permission, syncerr.ErrPermissionDenied))
		}
	}
	if err := at.Validate(); err != nil {
		return syncerr.Op("publish location", err)
	}

	location := map[string]any{
		schema.FieldLatitude:  at.Latitude,
		schema.FieldLongitude: at.Longitude,
		schema.FieldUpdatedAt: clock.UnixMilli(p.clock),
	}
	_, err := p.store.Put(ctx, schema.UserPath(p.user), map[string]any{schema.FieldLocation: location}, true)
	if err != nil {
		return syncerr.Unavailable("publish location", err)
	}
	return nil
}

// Run publishes every fix from source until the feed closes or ctx is
// done. A fix equal to the last one published is skipped. Failures are
// logged and the loop continues with the next fix.
func (p *Publisher) Run(ctx context.Context, source geo.Source) error {
	var (
		last      geo.Coordinates
		published bool
	)
	fixes := source.Fixes()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fix, ok := <-fixes:
			if !ok {
				return nil
			}
			if published && fix == last {
				continue
			}
			if err := p.Publish(ctx, fix); err != nil {
				p.logger.Warn("publishing location failed",
					"error", err,
					"kind", syncerr.KindOf(err).String(),
				)
				continue
			}
			last, published = fix, true
		}
	}
}
