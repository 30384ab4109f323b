// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// threadSeparator joins the participants of a thread key. User ids
// cannot contain it.
const threadSeparator = "_"

// ThreadKey identifies the chat thread between two users.
type ThreadKey struct {
	low, high UserID
}

// NewThreadKey returns the key shared by a and b. The result does not
// depend on argument order. a and b may be the same user; whether such
// a thread is usable is up to the caller.
func NewThreadKey(a, b UserID) (ThreadKey, error) {
	if a.IsZero() || b.IsZero() {
		return ThreadKey{}, fmt.Errorf("thread key needs two user IDs")
	}
	if a.Compare(b) > 0 {
		a, b = b, a
	}
	return ThreadKey{low: a, high: b}, nil
}

// ParseThreadKey validates a serialized key: two valid user ids in
// non-descending order separated by '_'.
func ParseThreadKey(raw string) (ThreadKey, error) {
	first, second, found := strings.Cut(raw, threadSeparator)
	if !found {
		return ThreadKey{}, fmt.Errorf("thread key %q has no separator", raw)
	}
	low, err := ParseUserID(first)
	if err != nil {
		return ThreadKey{}, fmt.Errorf("thread key %q: %w", raw, err)
	}
	high, err := ParseUserID(second)
	if err != nil {
		return ThreadKey{}, fmt.Errorf("thread key %q: %w", raw, err)
	}
	if low.Compare(high) > 0 {
		return ThreadKey{}, fmt.Errorf("thread key %q is not in canonical order", raw)
	}
	return ThreadKey{low: low, high: high}, nil
}

// MustThreadKey is like ParseThreadKey but panics on error.
func MustThreadKey(raw string) ThreadKey {
	key, err := ParseThreadKey(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustThreadKey(%q): %v", raw, err))
	}
	return key
}

// String returns "low_high".
func (k ThreadKey) String() string {
	if k.IsZero() {
		return ""
	}
	return k.low.id + threadSeparator + k.high.id
}

// IsZero reports whether k is the zero value.
func (k ThreadKey) IsZero() bool { return k.low.IsZero() }

// Participants returns both users in canonical order.
func (k ThreadKey) Participants() (UserID, UserID) { return k.low, k.high }

// Includes reports whether user is one of the participants.
func (k ThreadKey) Includes(user UserID) bool {
	return !user.IsZero() && (k.low == user || k.high == user)
}

// Peer returns the other participant. For a self key it is user.
func (k ThreadKey) Peer(user UserID) (UserID, bool) {
	switch user {
	case k.low:
		return k.high, true
	case k.high:
		return k.low, true
	}
	return UserID{}, false
}

// MarshalText implements encoding.TextMarshaler.
func (k ThreadKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ThreadKey) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*k = ThreadKey{}
		return nil
	}
	parsed, err := ParseThreadKey(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
