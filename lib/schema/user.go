// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"github.com/beacon-app/beacon/lib/ref"
)

// UsersCollection holds one record per user.
const UsersCollection = "users"

// User record field names.
const (
	FieldName            = "name"
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldLocation        = "location"
	FieldConnections     = "connections"
	FieldPendingRequests = "pendingRequests"
)

// Location field names.
const (
	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
	FieldUpdatedAt = "updatedAt"
)

// UserPath returns the record path of user.
func UserPath(user ref.UserID) string {
	return UsersCollection + "/" + user.String()
}

// User is the typed view of a user record.
type User struct {
	Name            string    `cbor:"name"`
	Username        string    `cbor:"username"`
	Email           string    `cbor:"email"`
	Location        *Location `cbor:"location"`
	Connections     []string  `cbor:"connections"`
	PendingRequests []string  `cbor:"pendingRequests"`
}

// Location is the last published position of a user.
type Location struct {
	Latitude  float64 `cbor:"latitude"`
	Longitude float64 `cbor:"longitude"`
	// UpdatedAt is Unix milliseconds.
	UpdatedAt int64 `cbor:"updatedAt"`
}

// ConnectionIDs returns the valid ids in Connections, sorted. Entries
// that are not valid user ids are skipped.
func (u User) ConnectionIDs() []ref.UserID { return validIDs(u.Connections) }

// PendingIDs returns the valid ids in PendingRequests, sorted.
func (u User) PendingIDs() []ref.UserID { return validIDs(u.PendingRequests) }

func validIDs(raw []string) []ref.UserID {
	ids := make([]ref.UserID, 0, len(raw))
	seen := make(map[ref.UserID]bool, len(raw))
	for _, r := range raw {
		id, err := ref.ParseUserID(r)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ref.SortUserIDs(ids)
}
