// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence publishes the signed-in user's position to their
// own user record. Only the location field is written; a merge write
// leaves the rest of the record alone and creates it if needed.
//
// Visibility is a matter of who subscribes: connections observe the
// record through their roster, nobody else is told about it.
package presence
