// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseUserID(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"alice", false},
		{"Alice-01", false},
		{"b.o.b", false},
		{"3f2b8c1e-9a7d-4c5e-8f10-1234567890ab", false},
		{"", true},
		{"with_underscore", true},
		{"users/alice", true},
		{"has space", true},
		{"ünicode", true},
		{".", true},
		{"..", true},
		{strings.Repeat("a", MaxUserIDLength), false},
		{strings.Repeat("a", MaxUserIDLength+1), true},
	}

	for _, test := range tests {
		_, err := ParseUserID(test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseUserID(%q): err=%v, wantErr=%v", test.input, err, test.wantErr)
		}
	}
}

func TestUserIDTextRoundTrip(t *testing.T) {
	type wrapper struct {
		User UserID `json:"user"`
	}
	data, err := json.Marshal(wrapper{User: MustUserID("alice")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := `{"user":"alice"}`; string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var decoded wrapper
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.User != MustUserID("alice") {
		t.Errorf("round trip = %v, want alice", decoded.User)
	}

	if err := json.Unmarshal([]byte(`{"user":"bad_id"}`), &decoded); err == nil {
		t.Error("Unmarshal accepted an invalid user ID")
	}
}

func TestSortUserIDs(t *testing.T) {
	ids := SortUserIDs([]UserID{MustUserID("carol"), MustUserID("alice"), MustUserID("bob")})
	got := strings.Join(UserIDStrings(ids), ",")
	if got != "alice,bob,carol" {
		t.Errorf("SortUserIDs = %s, want alice,bob,carol", got)
	}
}

func TestThreadKeyIsOrderIndependent(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"Zed", "adam"},
		{"user-10", "user-9"},
		{"a", "a.b"},
	}
	for _, pair := range pairs {
		a, b := MustUserID(pair[0]), MustUserID(pair[1])
		forward, err := NewThreadKey(a, b)
		if err != nil {
			t.Fatalf("NewThreadKey(%s, %s): %v", a, b, err)
		}
		backward, err := NewThreadKey(b, a)
		if err != nil {
			t.Fatalf("NewThreadKey(%s, %s): %v", b, a, err)
		}
		if forward != backward || forward.String() != backward.String() {
			t.Errorf("NewThreadKey(%s, %s) = %s, reversed = %s", a, b, forward, backward)
		}
	}
}

func TestThreadKeyFormatAndParse(t *testing.T) {
	key, err := NewThreadKey(MustUserID("bob"), MustUserID("alice"))
	if err != nil {
		t.Fatalf("NewThreadKey: %v", err)
	}
	if key.String() != "alice_bob" {
		t.Fatalf("String() = %q, want alice_bob", key.String())
	}

	parsed, err := ParseThreadKey("alice_bob")
	if err != nil {
		t.Fatalf("ParseThreadKey: %v", err)
	}
	if parsed != key {
		t.Errorf("ParseThreadKey = %v, want %v", parsed, key)
	}

	for _, bad := range []string{"", "alice", "bob_alice", "alice_", "_bob", "alice_bob_carol"} {
		if _, err := ParseThreadKey(bad); err == nil {
			t.Errorf("ParseThreadKey(%q) succeeded, want error", bad)
		}
	}
}

func TestThreadKeySelfPair(t *testing.T) {
	alice := MustUserID("alice")
	key, err := NewThreadKey(alice, alice)
	if err != nil {
		t.Fatalf("NewThreadKey(alice, alice): %v", err)
	}
	if key.String() != "alice_alice" {
		t.Fatalf("String() = %q, want alice_alice", key.String())
	}
	parsed, err := ParseThreadKey("alice_alice")
	if err != nil {
		t.Fatalf("ParseThreadKey(alice_alice): %v", err)
	}
	if parsed != key {
		t.Errorf("ParseThreadKey = %v, want %v", parsed, key)
	}
	if peer, ok := key.Peer(alice); !ok || peer != alice {
		t.Errorf("Peer(alice) = %v, %v; want alice, true", peer, ok)
	}
}

func TestThreadKeyRejectsZeroUser(t *testing.T) {
	if _, err := NewThreadKey(MustUserID("alice"), UserID{}); err == nil {
		t.Fatal("NewThreadKey with zero user succeeded")
	}
}

func TestThreadKeyParticipants(t *testing.T) {
	key := MustThreadKey("alice_bob")
	alice, bob := MustUserID("alice"), MustUserID("bob")

	if !key.Includes(alice) || !key.Includes(bob) || key.Includes(MustUserID("carol")) {
		t.Error("Includes reported wrong membership")
	}
	if peer, ok := key.Peer(alice); !ok || peer != bob {
		t.Errorf("Peer(alice) = %v, %v; want bob, true", peer, ok)
	}
	if _, ok := key.Peer(MustUserID("carol")); ok {
		t.Error("Peer(carol) reported a peer")
	}
}
