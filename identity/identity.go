// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"sync"

	"github.com/google/uuid"

	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/stream"
)

// Transition is a change of the signed-in identity.
type Transition struct {
	// UserID is the identity signed in. Zero when SignedIn is false.
	UserID   ref.UserID
	SignedIn bool
}

// SignedIn returns the transition to user being signed in.
func SignedIn(user ref.UserID) Transition {
	return Transition{UserID: user, SignedIn: true}
}

// SignedOut returns the transition to no identity.
func SignedOut() Transition { return Transition{} }

// NewUserID issues a fresh random user id.
func NewUserID() ref.UserID {
	return ref.MustUserID(uuid.NewString())
}

// Local is an in-process identity provider. Watchers see the latest
// state; transitions that happen while a watcher lags are coalesced.
type Local struct {
	mu       sync.Mutex
	current  Transition
	watchers map[*stream.Sink[Transition]]struct{}
}

// NewLocal returns a provider with nobody signed in.
func NewLocal() *Local {
	return &Local{watchers: make(map[*stream.Sink[Transition]]struct{})}
}

// SignIn makes user the current identity.
func (l *Local) SignIn(user ref.UserID) { l.set(SignedIn(user)) }

// SignOut clears the current identity.
func (l *Local) SignOut() { l.set(SignedOut()) }

// Current returns the signed-in user and whether anyone is signed in.
func (l *Local) Current() (ref.UserID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current.UserID, l.current.SignedIn
}

// Watch streams transitions, starting with the current state.
func (l *Local) Watch() *stream.Subscription[Transition] {
	var sink *stream.Sink[Transition]
	sub, sink := stream.New[Transition](nil, func() {
		l.mu.Lock()
		delete(l.watchers, sink)
		l.mu.Unlock()
	})

	l.mu.Lock()
	l.watchers[sink] = struct{}{}
	sink.Offer(l.current)
	l.mu.Unlock()
	return sub
}

func (l *Local) set(t Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = t
	for sink := range l.watchers {
		sink.Offer(t)
	}
}
