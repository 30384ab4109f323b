// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/beacon-app/beacon/graph"
	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/schema"
	"github.com/beacon-app/beacon/lib/syncerr"
	"github.com/beacon-app/beacon/store"
)

var (
	alice = ref.MustUserID("alice")
	bob   = ref.MustUserID("bob")
	carol = ref.MustUserID("carol")
)

func newDirectory(t *testing.T) (*Directory, store.Store) {
	t.Helper()
	st := store.NewMemory(store.Config{})
	t.Cleanup(func() { st.Close() })
	directory, err := New(Config{Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return directory, st
}

func register(t *testing.T, d *Directory, user ref.UserID, name, handle string) Profile {
	t.Helper()
	profile, err := d.Register(context.Background(), user, Registration{
		Name:     name,
		Username: handle,
		Email:    handle + "@example.com",
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", user, err)
	}
	return profile
}

func TestRegisterCreatesEmptyRecord(t *testing.T) {
	ctx := context.Background()
	directory, st := newDirectory(t)

	profile := register(t, directory, alice, "  Alice  ", "alice")
	if profile.Name != "Alice" || profile.Username != "alice" || profile.Location != nil {
		t.Fatalf("profile = %+v", profile)
	}

	doc, err := st.Get(ctx, "users/alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var record schema.User
	if err := doc.Decode(&record); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(record.Connections) != 0 || len(record.PendingRequests) != 0 {
		t.Fatalf("record sets = %+v, want empty", record)
	}
	for _, field := range []string{schema.FieldConnections, schema.FieldPendingRequests} {
		if _, ok := doc.Fields[field]; !ok {
			t.Errorf("field %s missing from new record", field)
		}
	}
}

func TestRegisterErrors(t *testing.T) {
	ctx := context.Background()
	directory, _ := newDirectory(t)
	register(t, directory, alice, "Alice", "alice")

	tests := []struct {
		name string
		user ref.UserID
		reg  Registration
		want error
	}{
		{"existing user", alice, Registration{Username: "other"}, syncerr.ErrAlreadyExists},
		{"handle taken", bob, Registration{Username: "alice"}, syncerr.ErrHandleTaken},
		{"empty handle", bob, Registration{Username: ""}, syncerr.ErrInvalidHandle},
		{"handle with space", bob, Registration{Username: "bo b"}, syncerr.ErrInvalidHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := directory.Register(ctx, tt.user, tt.reg)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Register = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHandlesAreCaseSensitive(t *testing.T) {
	directory, _ := newDirectory(t)
	register(t, directory, alice, "Alice", "alice")
	register(t, directory, bob, "Bob", "Alice")

	matches, err := directory.FindByHandle(context.Background(), carol, "alice")
	if err != nil {
		t.Fatalf("FindByHandle: %v", err)
	}
	if len(matches) != 1 || matches[0].Profile.ID != alice {
		t.Fatalf("matches = %+v, want only alice", matches)
	}
}

func TestFindByHandleReportsRelation(t *testing.T) {
	ctx := context.Background()
	directory, st := newDirectory(t)
	register(t, directory, alice, "Alice", "alice")
	register(t, directory, bob, "Bob", "bob")

	matches, err := directory.FindByHandle(ctx, alice, "alice")
	if err != nil {
		t.Fatalf("FindByHandle(own handle): %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("searcher found themselves: %+v", matches)
	}

	service, err := graph.New(graph.Config{Store: st, User: alice})
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	if err := service.Request(ctx, bob); err != nil {
		t.Fatalf("Request: %v", err)
	}

	matches, err = directory.FindByHandle(ctx, alice, "bob")
	if err != nil {
		t.Fatalf("FindByHandle: %v", err)
	}
	if len(matches) != 1 || matches[0].Relation != graph.Outgoing {
		t.Fatalf("matches = %+v, want bob with an outgoing request", matches)
	}
}

func TestResolveSkipsMissing(t *testing.T) {
	directory, _ := newDirectory(t)
	register(t, directory, alice, "Alice", "alice")
	register(t, directory, carol, "", "carol")

	profiles, err := directory.Resolve(context.Background(), []ref.UserID{carol, bob, alice})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(profiles) != 2 || profiles[0].ID != carol || profiles[1].ID != alice {
		t.Fatalf("profiles = %+v, want carol then alice", profiles)
	}
	if profiles[0].DisplayName() != "carol" {
		t.Errorf("DisplayName() = %q, want handle fallback", profiles[0].DisplayName())
	}

	if _, err := directory.Get(context.Background(), bob); !errors.Is(err, syncerr.ErrNoSuchUser) {
		t.Fatalf("Get(bob) = %v, want ErrNoSuchUser", err)
	}
}
