// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"slices"
	"strings"
)

// MaxUserIDLength bounds user ids.
const MaxUserIDLength = 128

// UserID is a validated user identifier.
type UserID struct {
	id string
}

// ParseUserID validates raw as a user id.
func ParseUserID(raw string) (UserID, error) {
	if raw == "" {
		return UserID{}, fmt.Errorf("empty user ID")
	}
	if len(raw) > MaxUserIDLength {
		return UserID{}, fmt.Errorf("user ID longer than %d bytes: %q", MaxUserIDLength, raw)
	}
	for i := 0; i < len(raw); i++ {
		if !userIDChars[raw[i]] {
			return UserID{}, fmt.Errorf("user ID contains invalid character %q at offset %d: %q", raw[i], i, raw)
		}
	}
	if raw == "." || raw == ".." {
		return UserID{}, fmt.Errorf("user ID %q is reserved", raw)
	}
	return UserID{id: raw}, nil
}

// MustUserID is like ParseUserID but panics on error. Use in tests
// and static initialization where the input is known-valid.
func MustUserID(raw string) UserID {
	u, err := ParseUserID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustUserID(%q): %v", raw, err))
	}
	return u
}

var userIDChars [256]bool

func init() {
	for c := byte('a'); c <= 'z'; c++ {
		userIDChars[c] = true
	}
	for c := byte('A'); c <= 'Z'; c++ {
		userIDChars[c] = true
	}
	for c := byte('0'); c <= '9'; c++ {
		userIDChars[c] = true
	}
	userIDChars['.'] = true
	userIDChars['-'] = true
}

// String returns the raw id.
func (u UserID) String() string { return u.id }

// IsZero reports whether u is the zero value.
func (u UserID) IsZero() bool { return u.id == "" }

// Compare orders user ids by byte value.
func (u UserID) Compare(other UserID) int { return strings.Compare(u.id, other.id) }

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) {
	if u.id == "" {
		return nil, nil
	}
	return []byte(u.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input
// produces the zero value.
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseUserIDs parses each element of raw, failing on the first
// invalid entry.
func ParseUserIDs(raw []string) ([]UserID, error) {
	ids := make([]UserID, 0, len(raw))
	for _, r := range raw {
		id, err := ParseUserID(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SortUserIDs sorts ids in place and returns them.
func SortUserIDs(ids []UserID) []UserID {
	slices.SortFunc(ids, UserID.Compare)
	return ids
}

// UserIDStrings returns the raw form of each id.
func UserIDStrings(ids []UserID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.id
	}
	return out
}
