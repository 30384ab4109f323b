// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/beacon-app/beacon/lib/clock"
	"github.com/beacon-app/beacon/lib/testutil"
	"github.com/beacon-app/beacon/store"
)

// Timeout bounds every wait on a subscription in the suite.
const Timeout = 5 * time.Second

// Opener creates an empty store for one subtest. The store must use clk
// for the ids it assigns. Run closes the store.
type Opener func(t *testing.T, clk clock.Clock) store.Store

// Run exercises the Store contract against stores made by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		run  func(t *testing.T, s store.Store, clk *clock.FakeClock)
	}{
		{"GetMissing", testGetMissing},
		{"PutReplaceAndMerge", testPutReplaceAndMerge},
		{"UpdateMissing", testUpdateMissing},
		{"SetOperations", testSetOperations},
		{"UnchangedWriteKeepsSequence", testUnchangedWriteKeepsSequence},
		{"SequenceIncreases", testSequenceIncreases},
		{"AppendOrdering", testAppendOrdering},
		{"QueryAndList", testQueryAndList},
		{"InvalidPaths", testInvalidPaths},
		{"SubscribeDocument", testSubscribeDocument},
		{"SubscribeMissingDocument", testSubscribeMissingDocument},
		{"SubscribeCollection", testSubscribeCollection},
		{"CloseEndsSubscriptions", testCloseEndsSubscriptions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
			s := open(t, clk)
			t.Cleanup(func() { s.Close() })
			tt.run(t, s, clk)
		})
	}
}

func mustPut(t *testing.T, s store.Store, path string, fields map[string]any, merge bool) store.Document {
	t.Helper()
	doc, err := s.Put(context.Background(), path, fields, merge)
	if err != nil {
		t.Fatalf("Put(%s): %v", path, err)
	}
	return doc
}

func mustGet(t *testing.T, s store.Store, path string) store.Document {
	t.Helper()
	doc, err := s.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("Get(%s): %v", path, err)
	}
	return doc
}

func testGetMissing(t *testing.T, s store.Store, _ *clock.FakeClock) {
	doc := mustGet(t, s, "users/nobody")
	if doc.Exists {
		t.Fatal("missing document reported Exists")
	}
	if doc.Path != "users/nobody" || doc.Sequence != 0 {
		t.Fatalf("missing document = %+v", doc)
	}
}

func testPutReplaceAndMerge(t *testing.T, s store.Store, _ *clock.FakeClock) {
	mustPut(t, s, "users/alice", map[string]any{"name": "Alice", "username": "alice"}, false)

	merged := mustPut(t, s, "users/alice", map[string]any{"location": map[string]any{"latitude": 1.5}}, true)
	if merged.Text("name") != "Alice" {
		t.Fatalf("merge dropped name: %+v", merged.Fields)
	}
	location, ok := merged.Map("location")
	if !ok {
		t.Fatalf("location = %#v, want a map", merged.Fields["location"])
	}
	if latitude, _ := store.Float64Value(location["latitude"]); latitude != 1.5 {
		t.Fatalf("latitude = %v, want 1.5", location["latitude"])
	}

	replaced := mustPut(t, s, "users/alice", map[string]any{"name": "Alicia"}, false)
	if _, ok := replaced.Fields["username"]; ok {
		t.Fatalf("replace kept username: %+v", replaced.Fields)
	}
	if got := mustGet(t, s, "users/alice").Text("name"); got != "Alicia" {
		t.Fatalf("name = %q, want Alicia", got)
	}

	created := mustPut(t, s, "users/bob", map[string]any{"name": "Bob"}, true)
	if !created.Exists || created.Text("name") != "Bob" {
		t.Fatalf("merge put on missing document = %+v", created)
	}
}

func testUpdateMissing(t *testing.T, s store.Store, _ *clock.FakeClock) {
	_, err := s.Update(context.Background(), "users/ghost", store.AddToSet("connections", "alice"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Update on missing document: err = %v, want ErrNotFound", err)
	}
	if mustGet(t, s, "users/ghost").Exists {
		t.Fatal("failed Update created the document")
	}
}

func testSetOperations(t *testing.T, s store.Store, _ *clock.FakeClock) {
	ctx := context.Background()
	mustPut(t, s, "users/alice", map[string]any{"name": "Alice"}, false)

	doc, err := s.Update(ctx, "users/alice",
		store.AddToSet("connections", "bob", "carol"),
		store.AddToSet("connections", "bob"),
	)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := doc.StringSet("connections"); !slices.Equal(got, []string{"bob", "carol"}) {
		t.Fatalf("connections = %v, want [bob carol]", got)
	}

	doc, err = s.Update(ctx, "users/alice",
		store.RemoveFromSet("connections", "bob", "dave"),
		store.RemoveFromSet("pendingRequests", "erin"),
		store.Set("name", "Alice A."),
	)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got := doc.StringSet("connections"); !slices.Equal(got, []string{"carol"}) {
		t.Fatalf("connections = %v, want [carol]", got)
	}
	if pending, ok := doc.Fields["pendingRequests"]; !ok || len(doc.StringSet("pendingRequests")) != 0 {
		t.Fatalf("pendingRequests = %#v, want an empty set", pending)
	}
	if !doc.HasMember("connections", "carol") || doc.HasMember("connections", "bob") {
		t.Fatal("HasMember disagrees with StringSet")
	}

	stored := mustGet(t, s, "users/alice")
	if stored.Text("name") != "Alice A." || !slices.Equal(stored.StringSet("connections"), []string{"carol"}) {
		t.Fatalf("stored = %+v", stored.Fields)
	}

	if _, err := s.Update(ctx, "users/alice", store.AddToSet("name", "x")); err == nil {
		t.Fatal("AddToSet on a string field succeeded")
	}

	doc, err = s.Update(ctx, "users/alice", store.Delete("name"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := doc.Fields["name"]; ok {
		t.Fatal("Delete left the field in place")
	}
}

func testUnchangedWriteKeepsSequence(t *testing.T, s store.Store, _ *clock.FakeClock) {
	ctx := context.Background()
	first := mustPut(t, s, "users/alice", map[string]any{"connections": []string{"bob"}}, false)

	again, err := s.Update(ctx, "users/alice", store.AddToSet("connections", "bob"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if again.Sequence != first.Sequence {
		t.Fatalf("no-op update moved sequence %d -> %d", first.Sequence, again.Sequence)
	}
}

func testSequenceIncreases(t *testing.T, s store.Store, _ *clock.FakeClock) {
	var last uint64
	for i, path := range []string{"users/a", "users/b", "users/a", "threads/a_b/messages/x"} {
		doc := mustPut(t, s, path, map[string]any{"i": i}, false)
		if doc.Sequence <= last {
			t.Fatalf("write %d to %s: sequence %d after %d", i, path, doc.Sequence, last)
		}
		last = doc.Sequence
	}
}

func testAppendOrdering(t *testing.T, s store.Store, clk *clock.FakeClock) {
	ctx := context.Background()
	const collection = "threads/alice_bob/messages"

	var ids []string
	for i := range 5 {
		if i == 3 {
			clk.Advance(time.Second)
		}
		doc, err := s.Append(ctx, collection, map[string]any{"n": i})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		collectionPath, id, err := store.SplitDocumentPath(doc.Path)
		if err != nil || collectionPath != collection {
			t.Fatalf("Append path = %q (%v)", doc.Path, err)
		}
		ids = append(ids, id)
	}
	if !slices.IsSorted(ids) {
		t.Fatalf("appended ids not increasing: %v", ids)
	}

	listed, err := s.List(ctx, collection)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 5 {
		t.Fatalf("List returned %d documents, want 5", len(listed))
	}
	for i, doc := range listed {
		if n, _ := doc.Int64("n"); n != int64(i) {
			t.Fatalf("listed[%d].n = %d, want %d", i, n, i)
		}
	}

	if _, err := s.Append(ctx, "users/alice", map[string]any{}); !errors.Is(err, store.ErrInvalidPath) {
		t.Fatalf("Append to a document path: err = %v, want ErrInvalidPath", err)
	}
}

func testQueryAndList(t *testing.T, s store.Store, _ *clock.FakeClock) {
	ctx := context.Background()
	mustPut(t, s, "users/alice", map[string]any{"username": "al", "age": 30}, false)
	mustPut(t, s, "users/bob", map[string]any{"username": "bobby", "age": 30}, false)
	mustPut(t, s, "users/carol", map[string]any{"username": "al"}, false)
	mustPut(t, s, "threads/alice_bob/messages/m1", map[string]any{"username": "al"}, false)

	matches, err := s.Query(ctx, "users", "username", "al")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := documentIDs(matches); !slices.Equal(got, []string{"alice", "carol"}) {
		t.Fatalf("Query(username=al) = %v, want [alice carol]", got)
	}

	matches, err = s.Query(ctx, "users", "age", 30)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := documentIDs(matches); !slices.Equal(got, []string{"alice", "bob"}) {
		t.Fatalf("Query(age=30) = %v, want [alice bob]", got)
	}

	matches, err = s.Query(ctx, "users", "username", "Al")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("Query is not case-sensitive: %v", documentIDs(matches))
	}

	all, err := s.List(ctx, "users")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := documentIDs(all); !slices.Equal(got, []string{"alice", "bob", "carol"}) {
		t.Fatalf("List(users) = %v", got)
	}
}

func testInvalidPaths(t *testing.T, s store.Store, _ *clock.FakeClock) {
	ctx := context.Background()
	for _, path := range []string{"", "users", "users/", "/users/alice", "users/../etc", "threads/a_b/messages"} {
		if _, err := s.Get(ctx, path); !errors.Is(err, store.ErrInvalidPath) {
			t.Errorf("Get(%q): err = %v, want ErrInvalidPath", path, err)
		}
		if _, err := s.Put(ctx, path, map[string]any{}, false); !errors.Is(err, store.ErrInvalidPath) {
			t.Errorf("Put(%q): err = %v, want ErrInvalidPath", path, err)
		}
	}
	if _, err := s.List(ctx, "users/alice"); !errors.Is(err, store.ErrInvalidPath) {
		t.Errorf("List(users/alice): err = %v, want ErrInvalidPath", err)
	}
}

func testSubscribeDocument(t *testing.T, s store.Store, _ *clock.FakeClock) {
	ctx := context.Background()
	mustPut(t, s, "users/alice", map[string]any{"name": "Alice"}, false)

	sub, err := s.Subscribe(ctx, "users/alice")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	initial := testutil.RequireReceive(t, sub.Updates(), Timeout, "initial snapshot")
	if !initial.Exists || initial.Text("name") != "Alice" {
		t.Fatalf("initial snapshot = %+v", initial)
	}

	mustPut(t, s, "users/bob", map[string]any{"name": "Bob"}, false)
	written := mustPut(t, s, "users/alice", map[string]any{"name": "Alicia"}, true)

	next := testutil.RequireReceive(t, sub.Updates(), Timeout, "snapshot after write")
	if next.Text("name") != "Alicia" || next.Sequence != written.Sequence {
		t.Fatalf("snapshot = %+v, want name Alicia at sequence %d", next, written.Sequence)
	}

	sub.Cancel()
	mustPut(t, s, "users/alice", map[string]any{"name": "After"}, true)
	if _, ok := <-sub.Updates(); ok {
		t.Fatal("received a snapshot after Cancel")
	}
}

func testSubscribeMissingDocument(t *testing.T, s store.Store, _ *clock.FakeClock) {
	sub, err := s.Subscribe(context.Background(), "users/late")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()

	if initial := testutil.RequireReceive(t, sub.Updates(), Timeout, "initial snapshot"); initial.Exists {
		t.Fatalf("initial snapshot of missing document = %+v", initial)
	}
	mustPut(t, s, "users/late", map[string]any{"name": "Late"}, false)
	if created := testutil.RequireReceive(t, sub.Updates(), Timeout, "creation"); !created.Exists {
		t.Fatalf("snapshot after creation = %+v", created)
	}
}

func testSubscribeCollection(t *testing.T, s store.Store, _ *clock.FakeClock) {
	ctx := context.Background()
	const collection = "threads/alice_bob/messages"
	mustPut(t, s, collection+"/b", map[string]any{"sentAt": 20}, false)
	mustPut(t, s, collection+"/a", map[string]any{"sentAt": 10}, false)

	sub, err := s.SubscribeCollection(ctx, collection, "sentAt")
	if err != nil {
		t.Fatalf("SubscribeCollection: %v", err)
	}
	defer sub.Cancel()

	initial := testutil.RequireReceive(t, sub.Updates(), Timeout, "initial snapshot")
	if !initial.Initial {
		t.Fatal("first delivery not marked Initial")
	}
	if got := documentIDs(initial.Documents); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("initial order = %v, want [a b]", got)
	}
	if len(initial.Changes) != 2 {
		t.Fatalf("initial Changes = %d documents, want 2", len(initial.Changes))
	}

	// Same order key as b: ties go to commit order.
	mustPut(t, s, collection+"/c", map[string]any{"sentAt": 20}, false)
	mustPut(t, s, "threads/alice_carol/messages/x", map[string]any{"sentAt": 1}, false)

	var changes []string
	var latest store.CollectionSnapshot
	for len(changes) < 1 {
		latest = testutil.RequireReceive(t, sub.Updates(), Timeout, "collection change")
		if latest.Initial {
			t.Fatal("later delivery marked Initial")
		}
		changes = append(changes, documentIDs(latest.Changes)...)
	}
	if !slices.Equal(changes, []string{"c"}) {
		t.Fatalf("changes = %v, want [c]", changes)
	}
	if got := documentIDs(latest.Documents); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("order = %v, want [a b c]", got)
	}
}

func testCloseEndsSubscriptions(t *testing.T, s store.Store, _ *clock.FakeClock) {
	ctx := context.Background()
	sub, err := s.Subscribe(ctx, "users/alice")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()
	testutil.RequireReceive(t, sub.Updates(), Timeout, "initial snapshot")

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	testutil.RequireClosed(t, sub.Updates(), Timeout, "subscription end")
	if !errors.Is(sub.Err(), store.ErrClosed) {
		t.Fatalf("sub.Err() = %v, want ErrClosed", sub.Err())
	}
	if _, err := s.Get(ctx, "users/alice"); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Get after Close: err = %v, want ErrClosed", err)
	}
	if _, err := s.Put(ctx, "users/alice", map[string]any{}, false); !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Put after Close: err = %v, want ErrClosed", err)
	}
}

func documentIDs(documents []store.Document) []string {
	ids := make([]string, len(documents))
	for i, doc := range documents {
		ids[i] = doc.ID()
	}
	return ids
}
