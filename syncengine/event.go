// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"github.com/beacon-app/beacon/chat"
	"github.com/beacon-app/beacon/graph"
	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/profile"
	"github.com/beacon-app/beacon/roster"
)

// EventKind identifies what an Event carries.
type EventKind int

const (
	// RosterUpdated carries the full roster in Roster.
	RosterUpdated EventKind = iota + 1
	// RequestsUpdated carries the users with a request pending with
	// the session user in Requests.
	RequestsUpdated
	// ConnectionsUpdated carries the connection set in Connections.
	ConnectionsUpdated
	// MessagesReceived carries messages of Thread in Messages. The
	// first event of a thread holds its whole history.
	MessagesReceived
	// RepairCompleted reports a scheduled edge repair in Peer and Fix.
	RepairCompleted
)

func (k EventKind) String() string {
	switch k {
	case RosterUpdated:
		return "roster"
	case RequestsUpdated:
		return "requests"
	case ConnectionsUpdated:
		return "connections"
	case MessagesReceived:
		return "messages"
	case RepairCompleted:
		return "repair"
	default:
		return "unknown"
	}
}

// Event is one change observed by a Session.
type Event struct {
	Kind EventKind

	Roster      []roster.Entry
	Requests    []profile.Profile
	Connections []ref.UserID

	Thread   ref.ThreadKey
	Messages []chat.Message

	Peer ref.UserID
	Fix  graph.Fix
}
