// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat implements two-party message threads.
//
// A thread is identified by the key of its two participants, which is
// the same whichever of them computes it. Messages are appended under
// threads/{key}/messages with a store-assigned, time-ordered id and
// are read in sentAt order, ties broken by commit order. sentAt comes
// from the sender's clock; skewed clocks can make a message sort
// before one that was committed earlier.
package chat
