// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import "sync"

// Merge combines a value the consumer has not taken yet with a newer
// one. A nil Merge keeps only the newer value.
type Merge[T any] func(pending, next T) T

// Concat is a Merge for diff streams: no element is lost when the
// consumer falls behind.
func Concat[E any](pending, next []E) []E {
	return append(pending, next...)
}

// Subscription is the consumer side of a stream.
type Subscription[T any] struct {
	updates  chan T
	done     chan struct{}
	finished chan struct{}

	cancelOnce sync.Once
	onCancel   func()

	errMu sync.Mutex
	err   error
}

// Sink is the producer side of a stream.
type Sink[T any] struct {
	sub   *Subscription[T]
	merge Merge[T]
	wake  chan struct{}

	mu      sync.Mutex
	pending T
	has     bool
	closed  bool
}

// New creates a subscription and its sink and starts the pump.
// onCancel, if non-nil, runs once during Cancel, before Cancel waits
// for the pump; producers use it to unregister the sink.
func New[T any](merge Merge[T], onCancel func()) (*Subscription[T], *Sink[T]) {
	sub := &Subscription[T]{
		updates:  make(chan T),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		onCancel: onCancel,
	}
	sink := &Sink[T]{
		sub:   sub,
		merge: merge,
		wake:  make(chan struct{}, 1),
	}
	go sink.pump()
	return sub, sink
}

// Updates delivers values in offer order, merged when the consumer
// lags. The channel is closed after Cancel, or after the producer
// closes the sink and every pending value has been delivered.
func (s *Subscription[T]) Updates() <-chan T { return s.updates }

// Cancel stops the subscription and waits for delivery to stop.
func (s *Subscription[T]) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.done)
		if s.onCancel != nil {
			s.onCancel()
		}
	})
	<-s.finished
}

// Err returns the error the producer ended the stream with, if any.
// It is meaningful once Updates is closed.
func (s *Subscription[T]) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Offer queues v for delivery without blocking. Offers after Close or
// after the consumer cancelled are dropped.
func (k *Sink[T]) Offer(v T) {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	if k.has && k.merge != nil {
		v = k.merge(k.pending, v)
	}
	k.pending = v
	k.has = true
	k.mu.Unlock()
	k.signal()
}

// Close ends the stream once pending values are delivered.
func (k *Sink[T]) Close() { k.Fail(nil) }

// Fail ends the stream with err, reported by Subscription.Err.
func (k *Sink[T]) Fail(err error) {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	k.closed = true
	k.mu.Unlock()

	if err != nil {
		k.sub.errMu.Lock()
		k.sub.err = err
		k.sub.errMu.Unlock()
	}
	k.signal()
}

// Cancelled is closed when the consumer cancels.
func (k *Sink[T]) Cancelled() <-chan struct{} { return k.sub.done }

func (k *Sink[T]) signal() {
	select {
	case k.wake <- struct{}{}:
	default:
	}
}

func (k *Sink[T]) pump() {
	defer close(k.sub.finished)
	defer close(k.sub.updates)

	for {
		select {
		case <-k.wake:
		case <-k.sub.done:
			return
		}

		for {
			k.mu.Lock()
			v, has, closed := k.pending, k.has, k.closed
			var zero T
			k.pending, k.has = zero, false
			k.mu.Unlock()

			if !has {
				if closed {
					return
				}
				break
			}
			select {
			case k.sub.updates <- v:
			case <-k.sub.done:
				return
			}
		}
	}
}

// Map derives a subscription whose values are fn applied to each value
// of src. fn returning false drops the value. fn runs on a single
// goroutine, so it may keep state. Cancelling the result cancels src;
// src ending ends the result with the same error.
func Map[S, T any](src *Subscription[S], fn func(S) (T, bool), merge Merge[T]) *Subscription[T] {
	relayDone := make(chan struct{})
	dst, sink := New(merge, func() {
		src.Cancel()
		<-relayDone
	})

	go func() {
		defer close(relayDone)
		for value := range src.Updates() {
			if mapped, ok := fn(value); ok {
				sink.Offer(mapped)
			}
		}
		sink.Fail(src.Err())
	}()
	return dst
}
