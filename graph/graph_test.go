// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/schema"
	"github.com/beacon-app/beacon/lib/syncerr"
	"github.com/beacon-app/beacon/lib/testutil"
	"github.com/beacon-app/beacon/store"
	"github.com/beacon-app/beacon/store/storetest"
)

const timeout = 5 * time.Second

var (
	alice = ref.MustUserID("alice")
	bob   = ref.MustUserID("bob")
	carol = ref.MustUserID("carol")
)

// seed writes a user record with the given sets.
func seed(t *testing.T, st store.Store, user ref.UserID, connections, pending []string) {
	t.Helper()
	if connections == nil {
		connections = []string{}
	}
	if pending == nil {
		pending = []string{}
	}
	_, err := st.Put(context.Background(), schema.UserPath(user), map[string]any{
		schema.FieldName:            user.String(),
		schema.FieldUsername:        user.String(),
		schema.FieldConnections:     connections,
		schema.FieldPendingRequests: pending,
	}, false)
	if err != nil {
		t.Fatalf("seed %s: %v", user, err)
	}
}

func newService(t *testing.T, st store.Store, user ref.UserID) *Service {
	t.Helper()
	service, err := New(Config{Store: st, User: user})
	if err != nil {
		t.Fatalf("New(%s): %v", user, err)
	}
	return service
}

func read(t *testing.T, st store.Store, user ref.UserID) store.Document {
	t.Helper()
	doc, err := st.Get(context.Background(), schema.UserPath(user))
	if err != nil {
		t.Fatalf("Get %s: %v", user, err)
	}
	return doc
}

func members(t *testing.T, st store.Store, user ref.UserID, field string) []string {
	t.Helper()
	got := slices.Clone(read(t, st, user).StringSet(field))
	slices.Sort(got)
	return got
}

func requireMembers(t *testing.T, st store.Store, user ref.UserID, field string, want ...string) {
	t.Helper()
	got := members(t, st, user, field)
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(got, want) {
		t.Fatalf("%s.%s = %v, want %v", user, field, got, want)
	}
}

func newFixture(t *testing.T) (store.Store, *Service, *Service) {
	t.Helper()
	st := store.NewMemory(store.Config{})
	t.Cleanup(func() { st.Close() })
	seed(t, st, alice, nil, nil)
	seed(t, st, bob, nil, nil)
	return st, newService(t, st, alice), newService(t, st, bob)
}

func TestRequestAcceptIsSymmetric(t *testing.T) {
	ctx := context.Background()
	st, aliceGraph, bobGraph := newFixture(t)

	if err := aliceGraph.Request(ctx, bob); err != nil {
		t.Fatalf("Request: %v", err)
	}
	requireMembers(t, st, bob, schema.FieldPendingRequests, "alice")
	if relation, _ := aliceGraph.Relation(ctx, bob); relation != Outgoing {
		t.Fatalf("alice sees %v, want outgoing", relation)
	}
	if relation, _ := bobGraph.Relation(ctx, alice); relation != Incoming {
		t.Fatalf("bob sees %v, want incoming", relation)
	}

	if err := bobGraph.Accept(ctx, alice); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	requireMembers(t, st, alice, schema.FieldConnections, "bob")
	requireMembers(t, st, bob, schema.FieldConnections, "alice")
	requireMembers(t, st, bob, schema.FieldPendingRequests)
	if relation, _ := aliceGraph.Relation(ctx, bob); relation != Connected {
		t.Fatalf("alice sees %v, want connected", relation)
	}
}

func TestRequestErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Self", func(t *testing.T) {
		_, aliceGraph, _ := newFixture(t)
		err := aliceGraph.Request(ctx, alice)
		if !errors.Is(err, syncerr.ErrSelfRequest) {
			t.Fatalf("Request(self) = %v, want ErrSelfRequest", err)
		}
		if syncerr.KindOf(err) != syncerr.Validation {
			t.Fatalf("KindOf = %v, want validation", syncerr.KindOf(err))
		}
	})

	t.Run("NoSuchUser", func(t *testing.T) {
		_, aliceGraph, _ := newFixture(t)
		err := aliceGraph.Request(ctx, carol)
		if !errors.Is(err, syncerr.ErrNoSuchUser) {
			t.Fatalf("Request(carol) = %v, want ErrNoSuchUser", err)
		}
	})

	t.Run("ReverseRequestPending", func(t *testing.T) {
		st, aliceGraph, bobGraph := newFixture(t)
		if err := bobGraph.Request(ctx, alice); err != nil {
			t.Fatalf("bob Request: %v", err)
		}
		before := read(t, st, bob).Sequence
		err := aliceGraph.Request(ctx, bob)
		if !errors.Is(err, syncerr.ErrAlreadyPending) {
			t.Fatalf("Request = %v, want ErrAlreadyPending", err)
		}
		if after := read(t, st, bob).Sequence; after != before {
			t.Fatal("bob's record written on a rejected request")
		}
	})

	t.Run("AlreadyConnected", func(t *testing.T) {
		st, aliceGraph, _ := newFixture(t)
		seed(t, st, alice, []string{"bob"}, nil)
		seed(t, st, bob, []string{"alice"}, nil)
		if err := aliceGraph.Request(ctx, bob); !errors.Is(err, syncerr.ErrAlreadyConnected) {
			t.Fatalf("Request = %v, want ErrAlreadyConnected", err)
		}
	})

	t.Run("StoreUnavailable", func(t *testing.T) {
		st, _, _ := newFixture(t)
		faulty := storetest.NewFaulty(st)
		faulty.FailNext(storetest.OpUpdate, "", 1, nil)
		err := newService(t, faulty, alice).Request(ctx, bob)
		if syncerr.KindOf(err) != syncerr.StoreUnavailable {
			t.Fatalf("Request = %v, want store unavailable", err)
		}
	})
}

func TestRepeatedRequestIsNoOp(t *testing.T) {
	ctx := context.Background()
	st, aliceGraph, _ := newFixture(t)

	if err := aliceGraph.Request(ctx, bob); err != nil {
		t.Fatalf("Request: %v", err)
	}
	before := read(t, st, bob).Sequence
	if err := aliceGraph.Request(ctx, bob); err != nil {
		t.Fatalf("repeated Request: %v", err)
	}
	if after := read(t, st, bob).Sequence; after != before {
		t.Fatalf("repeated request wrote bob's record (sequence %d -> %d)", before, after)
	}
}

func TestDeclineThenRequestAgain(t *testing.T) {
	ctx := context.Background()
	st, aliceGraph, bobGraph := newFixture(t)

	if err := aliceGraph.Request(ctx, bob); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := bobGraph.Decline(ctx, alice); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	requireMembers(t, st, bob, schema.FieldPendingRequests)
	if relation, _ := aliceGraph.Relation(ctx, bob); relation != None {
		t.Fatalf("after decline alice sees %v, want none", relation)
	}

	if err := aliceGraph.Request(ctx, bob); err != nil {
		t.Fatalf("second Request: %v", err)
	}
	requireMembers(t, st, bob, schema.FieldPendingRequests, "alice")
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	st, aliceGraph, bobGraph := newFixture(t)

	if err := aliceGraph.Cancel(ctx, bob); !errors.Is(err, syncerr.ErrNoSuchRequest) {
		t.Fatalf("Cancel with nothing pending = %v, want ErrNoSuchRequest", err)
	}
	if err := aliceGraph.Request(ctx, bob); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := aliceGraph.Cancel(ctx, bob); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	requireMembers(t, st, bob, schema.FieldPendingRequests)
	if err := bobGraph.Accept(ctx, alice); !errors.Is(err, syncerr.ErrNoSuchRequest) {
		t.Fatalf("Accept after cancel = %v, want ErrNoSuchRequest", err)
	}
}

func TestDeclineWithoutRequest(t *testing.T) {
	_, _, bobGraph := newFixture(t)
	err := bobGraph.Decline(context.Background(), alice)
	if !errors.Is(err, syncerr.ErrNoSuchRequest) {
		t.Fatalf("Decline = %v, want ErrNoSuchRequest", err)
	}
	if syncerr.KindOf(err) != syncerr.StateConflict {
		t.Fatalf("KindOf = %v, want state conflict", syncerr.KindOf(err))
	}
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	st, aliceGraph, bobGraph := newFixture(t)
	seed(t, st, alice, []string{"bob"}, nil)
	seed(t, st, bob, []string{"alice"}, nil)

	if err := aliceGraph.Disconnect(ctx, bob); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	requireMembers(t, st, alice, schema.FieldConnections)
	requireMembers(t, st, bob, schema.FieldConnections)

	if relation, _ := bobGraph.Relation(ctx, alice); relation != None {
		t.Fatalf("bob sees %v, want none", relation)
	}
}

func TestDisconnectWithoutEdgeChangesNothing(t *testing.T) {
	ctx := context.Background()
	st, aliceGraph, _ := newFixture(t)

	aliceBefore := read(t, st, alice).Sequence
	bobBefore := read(t, st, bob).Sequence
	err := aliceGraph.Disconnect(ctx, bob)
	if !errors.Is(err, syncerr.ErrNotConnected) {
		t.Fatalf("Disconnect = %v, want ErrNotConnected", err)
	}
	if read(t, st, alice).Sequence != aliceBefore || read(t, st, bob).Sequence != bobBefore {
		t.Fatal("Disconnect without an edge wrote a record")
	}
}

func TestAcceptPartialWriteIsRepaired(t *testing.T) {
	ctx := context.Background()
	st, aliceGraph, _ := newFixture(t)
	if err := aliceGraph.Request(ctx, bob); err != nil {
		t.Fatalf("Request: %v", err)
	}

	faulty := storetest.NewFaulty(st)
	faulty.FailNext(storetest.OpUpdate, "users/bob", 1, nil)
	bobGraph := newService(t, faulty, bob)

	err := bobGraph.Accept(ctx, alice)
	var partial *syncerr.PartialWriteError
	if !errors.As(err, &partial) {
		t.Fatalf("Accept = %v, want *PartialWriteError", err)
	}
	if partial.Applied != "users/alice" || partial.Failed != "users/bob" {
		t.Fatalf("partial = %+v", partial)
	}
	if syncerr.KindOf(err) != syncerr.PartialWrite {
		t.Fatalf("KindOf = %v, want partial write", syncerr.KindOf(err))
	}
	if relation, _ := bobGraph.Relation(ctx, alice); relation != Partial {
		t.Fatalf("relation after partial accept = %v, want partial", relation)
	}

	fix, err := bobGraph.RepairEdge(ctx, alice)
	if err != nil {
		t.Fatalf("RepairEdge: %v", err)
	}
	if fix != Completed {
		t.Fatalf("fix = %v, want completed", fix)
	}
	requireMembers(t, st, alice, schema.FieldConnections, "bob")
	requireMembers(t, st, bob, schema.FieldConnections, "alice")
	requireMembers(t, st, bob, schema.FieldPendingRequests)

	if fix, _ := bobGraph.RepairEdge(ctx, alice); fix != NoFix {
		t.Fatalf("second repair = %v, want none", fix)
	}
}

func TestAcceptFirstWriteFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	st, aliceGraph, _ := newFixture(t)
	if err := aliceGraph.Request(ctx, bob); err != nil {
		t.Fatalf("Request: %v", err)
	}
	faulty := storetest.NewFaulty(st)
	faulty.FailNext(storetest.OpUpdate, "users/alice", 1, nil)

	err := newService(t, faulty, bob).Accept(ctx, alice)
	if syncerr.KindOf(err) != syncerr.StoreUnavailable {
		t.Fatalf("Accept = %v, want store unavailable", err)
	}
	requireMembers(t, st, alice, schema.FieldConnections)
	requireMembers(t, st, bob, schema.FieldPendingRequests, "alice")
}

func TestDisconnectPartialWriteIsRepaired(t *testing.T) {
	ctx := context.Background()
	st, _, _ := newFixture(t)
	seed(t, st, alice, []string{"bob"}, nil)
	seed(t, st, bob, []string{"alice"}, nil)

	faulty := storetest.NewFaulty(st)
	faulty.FailNext(storetest.OpUpdate, "users/bob", 1, nil)
	aliceGraph := newService(t, faulty, alice)

	err := aliceGraph.Disconnect(ctx, bob)
	var partial *syncerr.PartialWriteError
	if !errors.As(err, &partial) {
		t.Fatalf("Disconnect = %v, want *PartialWriteError", err)
	}
	requireMembers(t, st, bob, schema.FieldConnections, "alice")

	fix, err := aliceGraph.RepairEdge(ctx, bob)
	if err != nil {
		t.Fatalf("RepairEdge: %v", err)
	}
	if fix != Removed {
		t.Fatalf("fix = %v, want removed", fix)
	}
	requireMembers(t, st, bob, schema.FieldConnections)
}

func TestDisconnectPeerOnlyEdgeFailureIsNotPartial(t *testing.T) {
	ctx := context.Background()
	st, _, _ := newFixture(t)
	seed(t, st, bob, []string{"alice"}, nil)
	before := read(t, st, alice).Sequence

	faulty := storetest.NewFaulty(st)
	faulty.FailNext(storetest.OpUpdate, "users/bob", 1, nil)
	err := newService(t, faulty, alice).Disconnect(ctx, bob)

	var partial *syncerr.PartialWriteError
	if errors.As(err, &partial) {
		t.Fatalf("Disconnect = %v, want no partial write: alice's record was never written", err)
	}
	if syncerr.KindOf(err) != syncerr.StoreUnavailable {
		t.Fatalf("KindOf = %v, want store unavailable", syncerr.KindOf(err))
	}
	if after := read(t, st, alice).Sequence; after != before {
		t.Fatalf("alice's record changed: sequence %d -> %d", before, after)
	}
	requireMembers(t, st, bob, schema.FieldConnections, "alice")

	// Once the store recovers the same call clears the dangling side.
	if err := newService(t, st, alice).Disconnect(ctx, bob); err != nil {
		t.Fatalf("Disconnect after recovery: %v", err)
	}
	requireMembers(t, st, bob, schema.FieldConnections)
}

func TestAcceptMissingCallerRecordIsNoSuchUser(t *testing.T) {
	ctx := context.Background()
	st, aliceGraph, _ := newFixture(t)
	if err := aliceGraph.Request(ctx, bob); err != nil {
		t.Fatalf("Request: %v", err)
	}

	faulty := storetest.NewFaulty(st)
	faulty.FailNext(storetest.OpUpdate, "users/bob", 1, store.ErrNotFound)
	err := newService(t, faulty, bob).Accept(ctx, alice)

	var partial *syncerr.PartialWriteError
	if !errors.As(err, &partial) {
		t.Fatalf("Accept = %v, want *PartialWriteError", err)
	}
	if !errors.Is(err, syncerr.ErrNoSuchUser) {
		t.Fatalf("Accept = %v, want cause ErrNoSuchUser", err)
	}
	if syncerr.KindOf(partial.Err) != syncerr.StateConflict {
		t.Fatalf("KindOf(cause) = %v, want state conflict", syncerr.KindOf(partial.Err))
	}
}

func TestRepairPass(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()

	// alice-bob: half-finished accept by bob.
	// alice-carol: half-finished disconnect, carol still lists alice.
	// bob-carol: consistent, but carol lists herself.
	seed(t, st, alice, []string{"bob"}, nil)
	seed(t, st, bob, []string{"carol"}, []string{"alice"})
	seed(t, st, carol, []string{"alice", "bob", "carol"}, nil)

	report, err := Repair(ctx, RepairConfig{Store: st, Concurrency: 2})
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if report.Users != 3 || report.Edges != 3 {
		t.Fatalf("report = %+v, want 3 users and 3 edges", report)
	}
	if report.Completed != 1 || report.Removed != 1 || report.SelfEntries != 1 {
		t.Fatalf("report = %+v", report)
	}

	requireMembers(t, st, alice, schema.FieldConnections, "bob")
	requireMembers(t, st, bob, schema.FieldConnections, "alice", "carol")
	requireMembers(t, st, bob, schema.FieldPendingRequests)
	requireMembers(t, st, carol, schema.FieldConnections, "bob")

	again, err := Repair(ctx, RepairConfig{Store: st})
	if err != nil {
		t.Fatalf("second Repair: %v", err)
	}
	if again.Completed+again.Removed+again.RequestCleared+again.SelfEntries != 0 {
		t.Fatalf("second pass changed something: %+v", again)
	}
}

func TestRepairReportsFailures(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	seed(t, st, alice, []string{"bob"}, nil)
	seed(t, st, bob, nil, nil)

	faulty := storetest.NewFaulty(st)
	faulty.FailAlways(storetest.OpUpdate, "", nil)
	_, err := Repair(ctx, RepairConfig{Store: faulty})
	if !errors.Is(err, storetest.ErrInjected) {
		t.Fatalf("Repair = %v, want injected failure", err)
	}
	requireMembers(t, st, alice, schema.FieldConnections, "bob")
}

func TestWatchFollowsState(t *testing.T) {
	ctx := context.Background()
	_, aliceGraph, bobGraph := newFixture(t)

	sub, err := bobGraph.Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer sub.Cancel()

	initial := testutil.RequireReceive(t, sub.Updates(), timeout, "initial state")
	if !initial.Exists || len(initial.PendingRequests) != 0 {
		t.Fatalf("initial = %+v", initial)
	}

	if err := aliceGraph.Request(ctx, bob); err != nil {
		t.Fatalf("Request: %v", err)
	}
	state := testutil.RequireReceive(t, sub.Updates(), timeout, "pending request")
	if !slices.Equal(state.PendingRequests, []ref.UserID{alice}) {
		t.Fatalf("pending = %v, want [alice]", state.PendingRequests)
	}

	if err := bobGraph.Accept(ctx, alice); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	state = testutil.RequireReceive(t, sub.Updates(), timeout, "connected")
	if len(state.PendingRequests) != 0 || !slices.Equal(state.Connections, []ref.UserID{alice}) {
		t.Fatalf("state = %+v, want connected to alice", state)
	}
}

func TestClassify(t *testing.T) {
	doc := func(connections, pending []string) store.Document {
		return store.Document{Exists: true, Fields: map[string]any{
			schema.FieldConnections:     connections,
			schema.FieldPendingRequests: pending,
		}}
	}
	tests := []struct {
		name      string
		self, bob store.Document
		want      Relation
	}{
		{"none", doc(nil, nil), doc(nil, nil), None},
		{"outgoing", doc(nil, nil), doc(nil, []string{"alice"}), Outgoing},
		{"incoming", doc(nil, []string{"bob"}), doc(nil, nil), Incoming},
		{"connected", doc([]string{"bob"}, nil), doc([]string{"alice"}, nil), Connected},
		{"partial", doc(nil, []string{"bob"}), doc([]string{"alice"}, nil), Partial},
		{"missing peer", doc([]string{"bob"}, nil), store.Document{}, Partial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(alice, tt.self, bob, tt.bob); got != tt.want {
				t.Fatalf("Classify = %v, want %v", got, tt.want)
			}
		})
	}
}
