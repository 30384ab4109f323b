// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/schema"
	"github.com/beacon-app/beacon/store"
)

// Relation is the state of the edge between the caller and a peer, as
// seen from the caller.
type Relation int

const (
	// None means no edge and no request in either direction.
	None Relation = iota
	// Outgoing means the caller has a request pending with the peer.
	Outgoing
	// Incoming means the peer has a request pending with the caller.
	Incoming
	// Connected means each side lists the other as a connection.
	Connected
	// Partial means exactly one side lists the other as a connection.
	Partial
)

func (r Relation) String() string {
	switch r {
	case Outgoing:
		return "outgoing"
	case Incoming:
		return "incoming"
	case Connected:
		return "connected"
	case Partial:
		return "partial"
	default:
		return "none"
	}
}

// Classify derives the relation between self and peer from their
// records. Either document may be missing.
func Classify(self ref.UserID, selfDoc store.Document, peer ref.UserID, peerDoc store.Document) Relation {
	selfHas := selfDoc.HasMember(schema.FieldConnections, peer.String())
	peerHas := peerDoc.HasMember(schema.FieldConnections, self.String())
	switch {
	case selfHas && peerHas:
		return Connected
	case selfHas || peerHas:
		return Partial
	case peerDoc.HasMember(schema.FieldPendingRequests, self.String()):
		return Outgoing
	case selfDoc.HasMember(schema.FieldPendingRequests, peer.String()):
		return Incoming
	}
	return None
}

// State is the caller's side of the graph.
type State struct {
	// Exists is false until the caller's record has been written.
	Exists          bool
	Connections     []ref.UserID
	PendingRequests []ref.UserID
}

// StateOf reads a State from a user record. Self entries are dropped.
func StateOf(self ref.UserID, doc store.Document) State {
	state := State{Exists: doc.Exists}
	for _, id := range idsOf(doc, schema.FieldConnections) {
		if id != self {
			state.Connections = append(state.Connections, id)
		}
	}
	for _, id := range idsOf(doc, schema.FieldPendingRequests) {
		if id != self {
			state.PendingRequests = append(state.PendingRequests, id)
		}
	}
	return state
}

func idsOf(doc store.Document, field string) []ref.UserID {
	var ids []ref.UserID
	seen := make(map[ref.UserID]bool)
	for _, raw := range doc.StringSet(field) {
		id, err := ref.ParseUserID(raw)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ref.SortUserIDs(ids)
}
