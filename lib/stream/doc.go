// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream provides the cancellable push subscription used by the
// record store and every layer above it.
//
// A producer creates a pair with [New]: the consumer-facing
// [Subscription] and the producer-facing [Sink]. The producer calls
// [Sink.Offer] and never blocks; a value that has not been taken by
// the consumer yet is combined with the next one by the merge
// function (replace for snapshots, concatenate for diffs). A single
// pump goroutine per subscription moves values to the consumer's
// channel.
//
// [Subscription.Cancel] is synchronous: when it returns, the pump has
// exited and the Updates channel is closed, so no value is delivered
// after cancellation. Cancel is idempotent.
//
// [Map] derives a subscription from another; cancelling the derived
// subscription cancels its source.
package stream
