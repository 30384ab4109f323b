// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the injectable time source used for record
// timestamps (location updatedAt, message sentAt, message ids) and for
// scheduling deferred work such as edge repair.
//
// Components hold a Clock field. Production passes Real(); tests pass
// a FakeClock and move time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	session := syncengine.Open(ctx, syncengine.Config{Clock: c, ...})
//	c.WaitForTimers(1)          // a repair was scheduled
//	c.Advance(5 * time.Second)  // run it
package clock
