// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/beacon-app/beacon/graph"
	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/schema"
	"github.com/beacon-app/beacon/lib/syncerr"
	"github.com/beacon-app/beacon/store"
)

// Profile is the public view of a user record.
type Profile struct {
	ID       ref.UserID
	Name     string
	Username string
	Email    string
	// Location is nil until the user publishes a position.
	Location *schema.Location
}

// DisplayName returns Name, falling back to the handle and then the id.
func (p Profile) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Username != "":
		return p.Username
	}
	return p.ID.String()
}

// Registration is the data a new user signs up with.
type Registration struct {
	Name     string
	Username string
	Email    string
}

// Match is a search result with its relation to the searcher.
type Match struct {
	Profile  Profile
	Relation graph.Relation
}

// Config holds the collaborators of a Directory.
type Config struct {
	Store store.Store

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger
}

// Directory reads and registers profiles.
type Directory struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a Directory.
func New(cfg Config) (*Directory, error) {
	if cfg.Store == nil {
		return nil, errors.New("profile: Store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Directory{store: cfg.Store, logger: logger}, nil
}

// ValidateHandle checks that a handle is non-empty and has no spaces or
// control characters. Handles are case-sensitive.
func ValidateHandle(handle string) error {
	if handle == "" {
		return fmt.Errorf("empty handle: %w", syncerr.ErrInvalidHandle)
	}
	for _, r := range handle {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("handle %q: %w", handle, syncerr.ErrInvalidHandle)
		}
	}
	return nil
}

// Register creates the record of user with empty connection sets. It
// fails if the user already has a record or the handle is in use.
//
// The handle check and the write are separate operations; two users
// registering the same handle at the same moment can both succeed.
func (d *Directory) Register(ctx context.Context, user ref.UserID, registration Registration) (Profile, error) {
	const op = "register"
	registration.Name = strings.TrimSpace(registration.Name)
	registration.Email = strings.TrimSpace(registration.Email)
	if err := ValidateHandle(registration.Username); err != nil {
		return Profile{}, syncerr.Op(op, err)
	}

	existing, err := d.store.Get(ctx, schema.UserPath(user))
	if err != nil {
		return Profile{}, syncerr.Unavailable(op, err)
	}
	if existing.Exists {
		return Profile{}, syncerr.Op(op, syncerr.ErrAlreadyExists)
	}
	holders, err := d.store.Query(ctx, schema.UsersCollection, schema.FieldUsername, registration.Username)
	if err != nil {
		return Profile{}, syncerr.Unavailable(op, err)
	}
	if len(holders) > 0 {
		return Profile{}, syncerr.Op(op, fmt.Errorf("%q: %w", registration.Username, syncerr.ErrHandleTaken))
	}

	doc, err := d.store.Put(ctx, schema.UserPath(user), map[string]any{
		schema.FieldName:            registration.Name,
		schema.FieldUsername:        registration.Username,
		schema.FieldEmail:           registration.Email,
		schema.FieldConnections:     []string{},
		schema.FieldPendingRequests: []string{},
	}, false)
	if err != nil {
		return Profile{}, syncerr.Unavailable(op, err)
	}
	d.logger.Info("user registered", "user_id", user.String(), "username", registration.Username)
	return decode(user, doc)
}

// Get reads one profile. A missing record is ErrNoSuchUser.
func (d *Directory) Get(ctx context.Context, user ref.UserID) (Profile, error) {
	doc, err := d.store.Get(ctx, schema.UserPath(user))
	if err != nil {
		return Profile{}, syncerr.Unavailable("get profile", err)
	}
	if !doc.Exists {
		return Profile{}, syncerr.Op("get profile", fmt.Errorf("%s: %w", user, syncerr.ErrNoSuchUser))
	}
	return decode(user, doc)
}

// Resolve reads the profiles of users, in the given order. Users
// without a record are skipped.
func (d *Directory) Resolve(ctx context.Context, users []ref.UserID) ([]Profile, error) {
	profiles := make([]Profile, 0, len(users))
	for _, user := range users {
		doc, err := d.store.Get(ctx, schema.UserPath(user))
		if err != nil {
			return nil, syncerr.Unavailable("resolve profiles", err)
		}
		if !doc.Exists {
			continue
		}
		profile, err := decode(user, doc)
		if err != nil {
			d.logger.Warn("skipping unreadable user record", "user_id", user.String(), "error", err)
			continue
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// FindByHandle returns the users whose handle is exactly handle, other
// than searcher, each with its relation to searcher.
func (d *Directory) FindByHandle(ctx context.Context, searcher ref.UserID, handle string) ([]Match, error) {
	const op = "find by handle"
	if err := ValidateHandle(handle); err != nil {
		return nil, syncerr.Op(op, err)
	}
	documents, err := d.store.Query(ctx, schema.UsersCollection, schema.FieldUsername, handle)
	if err != nil {
		return nil, syncerr.Unavailable(op, err)
	}
	self, err := d.store.Get(ctx, schema.UserPath(searcher))
	if err != nil {
		return nil, syncerr.Unavailable(op, err)
	}

	var matches []Match
	for _, doc := range documents {
		id, err := ref.ParseUserID(doc.ID())
		if err != nil || id == searcher {
			continue
		}
		profile, err := decode(id, doc)
		if err != nil {
			d.logger.Warn("skipping unreadable user record", "user_id", id.String(), "error", err)
			continue
		}
		matches = append(matches, Match{
			Profile:  profile,
			Relation: graph.Classify(searcher, self, id, doc),
		})
	}
	return matches, nil
}

func decode(user ref.UserID, doc store.Document) (Profile, error) {
	var record schema.User
	if err := doc.Decode(&record); err != nil {
		return Profile{}, fmt.Errorf("decoding %s: %w", doc.Path, err)
	}
	return Profile{
		ID:       user,
		Name:     record.Name,
		Username: record.Username,
		Email:    record.Email,
		Location: record.Location,
	}, nil
}
