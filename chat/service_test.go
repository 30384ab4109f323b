// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/beacon-app/beacon/lib/clock"
	"github.com/beacon-app/beacon/lib/ref"
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
	epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newService(t *testing.T, st store.Store, user ref.UserID, clk clock.Clock) *Service {
	t.Helper()
	service, err := New(Config{Store: st, User: user, Clock: clk, MaxMessageLength: 64})
	if err != nil {
		t.Fatalf("New(%s): %v", user, err)
	}
	return service
}

// collect reads message batches until n messages have arrived.
func collect(t *testing.T, updates <-chan []Message, n int) []Message {
	t.Helper()
	var messages []Message
	for len(messages) < n {
		messages = append(messages, testutil.RequireReceive(t, updates, timeout, "messages %d/%d", len(messages), n)...)
	}
	if len(messages) != n {
		t.Fatalf("received %d messages, want %d", len(messages), n)
	}
	return messages
}

func TestThreadKeyIsSymmetric(t *testing.T) {
	ab, err := ThreadKeyFor(alice, bob)
	if err != nil {
		t.Fatalf("ThreadKeyFor: %v", err)
	}
	ba, err := ThreadKeyFor(bob, alice)
	if err != nil {
		t.Fatalf("ThreadKeyFor: %v", err)
	}
	if ab != ba || ab.String() != "alice_bob" {
		t.Fatalf("keys %q and %q, want both alice_bob", ab, ba)
	}
	self, err := ThreadKeyFor(alice, alice)
	if err != nil {
		t.Fatalf("ThreadKeyFor(alice, alice): %v", err)
	}
	if self.String() != "alice_alice" {
		t.Fatalf("self key %q, want alice_alice", self)
	}
}

func TestSendThenSubscribeReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	clk := clock.Fake(epoch)
	aliceChat := newService(t, st, alice, clk)
	bobChat := newService(t, st, bob, clk)

	key, err := aliceChat.Thread(bob)
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	const n = 12
	for i := range n {
		sender := aliceChat
		if i%2 == 1 {
			sender = bobChat
		}
		if _, err := sender.Send(ctx, key, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		if i%3 == 0 {
			clk.Advance(time.Second)
		}
	}

	// Every fresh subscriber sees the same n messages in send order.
	for _, service := range []*Service{aliceChat, bobChat} {
		sub, err := service.Subscribe(ctx, key)
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		messages := collect(t, sub.Updates(), n)
		sub.Cancel()
		for i, message := range messages {
			if message.Text != fmt.Sprintf("message %d", i) {
				t.Fatalf("messages[%d] = %q, want %q", i, message.Text, fmt.Sprintf("message %d", i))
			}
			if message.Thread != key {
				t.Fatalf("messages[%d].Thread = %v", i, message.Thread)
			}
		}
	}

	history, err := bobChat.History(ctx, key)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != n || history[0].SenderID != alice || history[1].SenderID != bob {
		t.Fatalf("history = %+v", history)
	}
}

func TestSubscribeDeliversOnlyNewMessages(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	clk := clock.Fake(epoch)
	aliceChat := newService(t, st, alice, clk)
	key, _ := aliceChat.Thread(bob)

	if _, err := aliceChat.Send(ctx, key, "before"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	sub, err := newService(t, st, bob, clk).Subscribe(ctx, key)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()
	initial := collect(t, sub.Updates(), 1)
	if initial[0].Text != "before" {
		t.Fatalf("initial = %+v", initial)
	}

	clk.Advance(time.Second)
	sent, err := aliceChat.Send(ctx, key, "  after  ")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent.Text != "after" || !sent.SentAt.Equal(epoch.Add(time.Second)) {
		t.Fatalf("sent = %+v", sent)
	}
	diff := collect(t, sub.Updates(), 1)
	if diff[0].ID != sent.ID {
		t.Fatalf("diff = %+v, want only the new message", diff)
	}
}

func TestSubscribeEmptyThreadDeliversEmptyHistory(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	aliceChat := newService(t, st, alice, clock.Fake(epoch))
	key, _ := aliceChat.Thread(bob)

	sub, err := aliceChat.Subscribe(ctx, key)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Cancel()
	if initial := testutil.RequireReceive(t, sub.Updates(), timeout, "empty history"); len(initial) != 0 {
		t.Fatalf("initial = %+v, want empty", initial)
	}
}

func TestEqualSentAtOrdersByCommit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	clk := clock.Fake(epoch)
	aliceChat := newService(t, st, alice, clk)
	key, _ := aliceChat.Thread(bob)

	// A sender whose clock runs behind commits after alice but stamps
	// an earlier time; it sorts first.
	skewed := newService(t, st, bob, clock.Fake(epoch.Add(-time.Minute)))
	for _, text := range []string{"one", "two"} {
		if _, err := aliceChat.Send(ctx, key, text); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if _, err := skewed.Send(ctx, key, "late"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	history, err := aliceChat.History(ctx, key)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	var texts []string
	for _, message := range history {
		texts = append(texts, message.Text)
	}
	if strings.Join(texts, ",") != "late,one,two" {
		t.Fatalf("order = %v, want [late one two]", texts)
	}
}

func TestSendValidation(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory(store.Config{})
	defer st.Close()
	aliceChat := newService(t, st, alice, clock.Fake(epoch))
	key, _ := aliceChat.Thread(bob)
	foreign, _ := ThreadKeyFor(bob, carol)
	selfKey, _ := ThreadKeyFor(alice, alice)

	tests := []struct {
		name string
		key  ref.ThreadKey
		text string
		want error
	}{
		{"empty", key, "", syncerr.ErrEmptyMessage},
		{"blank", key, " \n\t ", syncerr.ErrEmptyMessage},
		{"too long", key, strings.Repeat("x", 65), syncerr.ErrMessageTooLong},
		{"invalid utf8", key, "ok \xff", syncerr.ErrInvalidMessage},
		{"not a participant", foreign, "hi", syncerr.ErrInvalidThread},
		{"zero key", ref.ThreadKey{}, "hi", syncerr.ErrInvalidThread},
		{"self thread", selfKey, "hi", syncerr.ErrInvalidThread},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := aliceChat.Send(ctx, tt.key, tt.text)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Send = %v, want %v", err, tt.want)
			}
			if syncerr.KindOf(err) != syncerr.Validation {
				t.Fatalf("KindOf = %v, want validation", syncerr.KindOf(err))
			}
		})
	}

	if _, err := aliceChat.Send(ctx, key, strings.Repeat("x", 64)); err != nil {
		t.Fatalf("Send at the limit: %v", err)
	}
}

func TestThreadWithSelfIsInvalid(t *testing.T) {
	st := store.NewMemory(store.Config{})
	defer st.Close()
	aliceChat := newService(t, st, alice, clock.Fake(epoch))

	_, err := aliceChat.Thread(alice)
	if !errors.Is(err, syncerr.ErrInvalidThread) {
		t.Fatalf("Thread(alice) = %v, want ErrInvalidThread", err)
	}
	if syncerr.KindOf(err) != syncerr.Validation {
		t.Fatalf("KindOf = %v, want validation", syncerr.KindOf(err))
	}
}

func TestSendStoreUnavailable(t *testing.T) {
	faulty := storetest.NewFaulty(store.NewMemory(store.Config{}))
	defer faulty.Close()
	faulty.FailNext(storetest.OpAppend, "", 1, nil)
	aliceChat := newService(t, faulty, alice, clock.Fake(epoch))
	key, _ := aliceChat.Thread(bob)

	if _, err := aliceChat.Send(context.Background(), key, "hello"); syncerr.KindOf(err) != syncerr.StoreUnavailable {
		t.Fatalf("Send = %v, want store unavailable", err)
	}
}
