// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds shared test helpers.
//
// [RequireReceive], [RequireClosed], and [RequireNoReceive] wrap the
// select-with-timeout pattern for subscription channels, so tests
// never block forever on a stream that fails to deliver. They are the
// only place tests use wall-clock time; everything else runs on a
// clock.FakeClock.
//
// [UniqueID] generates distinct identifiers (user ids, message bodies)
// without consulting the clock.
//
// Helpers call t.Fatalf on failure.
package testutil
