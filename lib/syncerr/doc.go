// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncerr is the error taxonomy of the synchronization engine.
//
// Every error an engine operation returns belongs to one [Kind]:
//
//   - [Validation]: the input was rejected before any write (self
//     request, blank or oversized message, out-of-range coordinates).
//   - [StateConflict]: the requested transition is not legal from the
//     current relationship state (already connected, nothing pending,
//     not connected).
//   - [StoreUnavailable]: the record store failed or was unreachable.
//     The operation had no effect.
//   - [PermissionDenied]: a platform permission is missing.
//   - [PartialWrite]: a two-record operation applied its first write
//     and failed on the second. Repair converges the records.
//
// Callers branch with [KindOf] or errors.Is against the sentinels:
//
//	switch syncerr.KindOf(err) {
//	case syncerr.StateConflict:
//	    // refresh and let the user retry
//	case syncerr.PartialWrite:
//	    // schedule repair
//	}
package syncerr
