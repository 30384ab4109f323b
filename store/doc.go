// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is the document store the synchronization engine is
// built on.
//
// A document lives at a slash-separated path with an even number of
// segments ("users/alice", "threads/alice_bob/messages/01J..."); its
// collection is the path without the last segment. A document holds an
// untyped field map and the store-assigned commit Sequence of its last
// write.
//
// The guarantees are those of a hosted document database:
//
//   - Writes to one document are atomic. There is no multi-document
//     transaction.
//   - [FieldOp] set operations (AddToSet, RemoveFromSet) are applied
//     against the current value inside the write, so concurrent
//     writers never lose each other's members.
//   - Subscribe delivers the current snapshot first and then later
//     committed snapshots, newest-wins when the consumer lags. A
//     snapshot is never followed by an older one.
//   - SubscribeCollection delivers the ordered documents of a
//     collection plus the documents that changed since the previous
//     delivery.
//
// [MemoryStore] keeps documents in process. [SQLiteStore] persists them
// through lib/sqlitepool and can also pick up writes made by other
// processes sharing the database file.
package store
