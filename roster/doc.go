// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package roster keeps a live view of where the signed-in user's
// connections are.
//
// A Watcher holds one document subscription per peer. Reconcile takes
// the desired peer set, normally the connection set from the graph,
// and diffs it against the open subscriptions: new peers are
// subscribed, departed peers are cancelled, peers present in both are
// left alone. Each peer snapshot replaces that peer's entry and the
// whole roster is republished. Peers without a record or without a
// published location do not appear.
package roster
