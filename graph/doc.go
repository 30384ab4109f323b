// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package graph maintains the connection graph across user records.
//
// The store has no relationship primitive, so an edge between A and B
// is the pair of memberships A in B.connections and B in
// A.connections, and a request from A to B is A in B.pendingRequests.
// Every mutation is a set operation on one record. Operations that
// touch two records write them in a fixed order; when the second write
// fails the first is not rolled back and the caller receives a
// *syncerr.PartialWriteError. RepairEdge and Repair bring such edges
// back to a symmetric state.
//
// Per ordered pair of users the states are:
//
//	None --Request--> Outgoing/Incoming --Accept--> Connected
//	Outgoing/Incoming --Decline/Cancel--> None
//	Connected --Disconnect--> None
//
// Partial is the observable state between the two writes of Accept or
// Disconnect.
package graph
