// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package roster

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/schema"
	"github.com/beacon-app/beacon/lib/testutil"
	"github.com/beacon-app/beacon/store"
	"github.com/beacon-app/beacon/store/storetest"
)

const timeout = 5 * time.Second

var (
	bob   = ref.MustUserID("bob")
	carol = ref.MustUserID("carol")
	dave  = ref.MustUserID("dave")
)

func newWatcher(t *testing.T, st store.Store) *Watcher {
	t.Helper()
	w, err := New(Config{Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func locate(t *testing.T, st store.Store, user ref.UserID, latitude, longitude float64) {
	t.Helper()
	_, err := st.Put(context.Background(), schema.UserPath(user), map[string]any{
		schema.FieldName: "User " + user.String(),
		schema.FieldLocation: map[string]any{
			schema.FieldLatitude:  latitude,
			schema.FieldLongitude: longitude,
			schema.FieldUpdatedAt: int64(1_700_000_000_000),
		},
	}, true)
	if err != nil {
		t.Fatalf("locate %s: %v", user, err)
	}
}

// waitForRoster reads updates until one satisfies want.
func waitForRoster(t *testing.T, w *Watcher, description string, want func([]Entry) bool) []Entry {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for roster: %s (last snapshot %+v)", description, w.Snapshot())
		}
		entries := testutil.RequireReceive(t, w.Updates(), remaining, description)
		if want(entries) {
			return entries
		}
	}
}

func ids(entries []Entry) []ref.UserID {
	out := make([]ref.UserID, len(entries))
	for i, entry := range entries {
		out[i] = entry.UserID
	}
	return out
}

func TestReconcileDiffsSubscriptions(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	for _, user := range []ref.UserID{bob, carol, dave} {
		locate(t, st, user, 1, 1)
	}
	w := newWatcher(t, st)

	if err := w.Reconcile(ctx, []ref.UserID{bob, carol}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	w.mu.Lock()
	carolWatch := w.watches[carol]
	w.mu.Unlock()

	if err := w.Reconcile(ctx, []ref.UserID{carol, dave}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	counts := map[ref.UserID]int{bob: 0, carol: 1, dave: 1}
	for user, want := range counts {
		if got := st.SubscriberCount(schema.UserPath(user)); got != want {
			t.Errorf("subscribers of %s = %d, want %d", user, got, want)
		}
	}
	w.mu.Lock()
	sameCarol := w.watches[carol] == carolWatch
	w.mu.Unlock()
	if !sameCarol {
		t.Error("carol's subscription was replaced, want it left untouched")
	}
	if got := w.Peers(); !slices.Equal(got, []ref.UserID{carol, dave}) {
		t.Errorf("Peers() = %v, want [carol dave]", got)
	}

	waitForRoster(t, w, "carol and dave", func(entries []Entry) bool {
		return slices.Equal(ids(entries), []ref.UserID{carol, dave})
	})
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	w := newWatcher(t, st)

	for range 3 {
		if err := w.Reconcile(ctx, []ref.UserID{bob, bob, carol}); err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
	}
	if got := st.SubscriberCount(schema.UserPath(bob)); got != 1 {
		t.Fatalf("subscribers of bob = %d, want 1", got)
	}
	if err := w.Reconcile(ctx, nil); err != nil {
		t.Fatalf("Reconcile(nil): %v", err)
	}
	if got := st.SubscriberCount(schema.UserPath(bob)) + st.SubscriberCount(schema.UserPath(carol)); got != 0 {
		t.Fatalf("%d subscriptions left after reconciling to nothing", got)
	}
}

func TestRosterFollowsPeerUpdates(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	locate(t, st, bob, 10, 20)
	w := newWatcher(t, st)

	if err := w.Reconcile(ctx, []ref.UserID{bob}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	entries := waitForRoster(t, w, "bob located", func(entries []Entry) bool { return len(entries) == 1 })
	if entries[0].DisplayName != "User bob" || entries[0].Latitude != 10 || entries[0].Longitude != 20 {
		t.Fatalf("entry = %+v", entries[0])
	}
	if entries[0].UpdatedAt != time.UnixMilli(1_700_000_000_000).UTC() {
		t.Fatalf("UpdatedAt = %v", entries[0].UpdatedAt)
	}

	locate(t, st, bob, 11, 21)
	waitForRoster(t, w, "bob moved", func(entries []Entry) bool {
		return len(entries) == 1 && entries[0].Latitude == 11
	})
}

func TestPeersWithoutLocationAreOmitted(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	if _, err := st.Put(ctx, schema.UserPath(bob), map[string]any{schema.FieldName: "Bob"}, false); err != nil {
		t.Fatalf("Put: %v", err)
	}
	locate(t, st, carol, 5, 5)
	w := newWatcher(t, st)

	// dave has no record at all.
	if err := w.Reconcile(ctx, []ref.UserID{bob, carol, dave}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	waitForRoster(t, w, "only carol", func(entries []Entry) bool {
		return slices.Equal(ids(entries), []ref.UserID{carol})
	})

	locate(t, st, bob, 6, 6)
	waitForRoster(t, w, "bob appears once located", func(entries []Entry) bool {
		return slices.Equal(ids(entries), []ref.UserID{bob, carol})
	})
}

func TestRemovedPeerLeavesRoster(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	locate(t, st, bob, 1, 1)
	w := newWatcher(t, st)

	if err := w.Reconcile(ctx, []ref.UserID{bob}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	waitForRoster(t, w, "bob present", func(entries []Entry) bool { return len(entries) == 1 })

	if err := w.Reconcile(ctx, nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(w.Snapshot()) != 0 {
		t.Fatalf("Snapshot() = %+v after removing bob", w.Snapshot())
	}

	// A later write to bob's record must not bring him back.
	locate(t, st, bob, 2, 2)
	if len(w.Snapshot()) != 0 {
		t.Fatalf("Snapshot() = %+v after bob moved", w.Snapshot())
	}
}

func TestReconcileReportsSubscribeFailure(t *testing.T) {
	ctx := context.Background()
	faulty := storetest.NewFaulty(store.NewMemory(store.Config{}))
	defer faulty.Close()
	w := newWatcher(t, faulty)

	faulty.FailNext(storetest.OpSubscribe, schema.UserPath(bob), 1, nil)
	err := w.Reconcile(ctx, []ref.UserID{bob, carol})
	if !errors.Is(err, storetest.ErrInjected) {
		t.Fatalf("Reconcile = %v, want injected failure", err)
	}
	if got := w.Peers(); !slices.Equal(got, []ref.UserID{carol}) {
		t.Fatalf("Peers() = %v, want [carol]", got)
	}

	if err := w.Reconcile(ctx, []ref.UserID{bob, carol}); err != nil {
		t.Fatalf("retry Reconcile: %v", err)
	}
	if got := w.Peers(); !slices.Equal(got, []ref.UserID{bob, carol}) {
		t.Fatalf("Peers() = %v, want [bob carol]", got)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	w, err := New(Config{Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Reconcile(ctx, []ref.UserID{bob, carol}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	w.Close()
	w.Close()
	if got := st.SubscriberCount(schema.UserPath(bob)) + st.SubscriberCount(schema.UserPath(carol)); got != 0 {
		t.Fatalf("%d subscriptions left after Close", got)
	}
	testutil.RequireClosed(t, w.Updates(), timeout, "updates closed")
	if err := w.Reconcile(ctx, []ref.UserID{bob}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Reconcile after Close = %v, want ErrClosed", err)
	}
}
