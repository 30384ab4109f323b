// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package syncengine ties the engine together for one signed-in user.
//
// A Session owns every subscription made on the user's behalf: the
// watch on the user's own record, the roster's per-peer watches, and
// one watch per open chat thread. It turns them into a single ordered
// stream of Events and exposes the user's operations. Closing the
// session cancels all of it before Close returns.
//
// The Coordinator follows identity transitions and keeps at most one
// Session open: a sign-in tears down the previous session before
// opening the next, a sign-out tears it down.
//
// When an accept or disconnect is only half applied, the session
// schedules a repair of that edge after Config.RepairDelay.
package syncengine
