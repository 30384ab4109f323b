// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/schema"
	"github.com/beacon-app/beacon/lib/stream"
	"github.com/beacon-app/beacon/store"
)

// ErrClosed is returned by Reconcile after Close.
var ErrClosed = errors.New("roster: watcher closed")

// Entry is one connection on the map.
type Entry struct {
	UserID      ref.UserID
	DisplayName string
	Latitude    float64
	Longitude   float64
	UpdatedAt   time.Time
}

// Config holds the collaborators of a Watcher.
type Config struct {
	Store store.Store

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger
}

// Watcher maintains per-peer subscriptions and the derived roster.
type Watcher struct {
	store  store.Store
	logger *slog.Logger

	// reconcileMu serializes Reconcile and Close.
	reconcileMu sync.Mutex

	mu      sync.Mutex
	watches map[ref.UserID]*peerWatch
	entries map[ref.UserID]Entry
	closed  bool

	updates *stream.Subscription[[]Entry]
	sink    *stream.Sink[[]Entry]
}

type peerWatch struct {
	peer ref.UserID
	sub  *stream.Subscription[store.Document]
	done chan struct{}
}

// New creates a Watcher with no peers.
func New(cfg Config) (*Watcher, error) {
	if cfg.Store == nil {
		return nil, errors.New("roster: Store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Watcher{
		store:   cfg.Store,
		logger:  logger,
		watches: make(map[ref.UserID]*peerWatch),
		entries: make(map[ref.UserID]Entry),
	}
	w.updates, w.sink = stream.New[[]Entry](nil, nil)
	return w, nil
}

// Updates delivers the full roster, sorted by user id, after every
// change. A lagging reader sees only the latest roster. The channel is
// closed by Close.
func (w *Watcher) Updates() <-chan []Entry { return w.updates.Updates() }

// Snapshot returns the current roster, sorted by user id.
func (w *Watcher) Snapshot() []Entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

// Peers returns the peers with an open subscription, sorted.
func (w *Watcher) Peers() []ref.UserID {
	w.mu.Lock()
	defer w.mu.Unlock()
	peers := make([]ref.UserID, 0, len(w.watches))
	for peer := range w.watches {
		peers = append(peers, peer)
	}
	return ref.SortUserIDs(peers)
}

// Reconcile makes the set of watched peers equal to connections. It is
// idempotent. A peer whose subscription cannot be opened is left out
// and reported in the returned error; the next Reconcile retries it.
func (w *Watcher) Reconcile(ctx context.Context, connections []ref.UserID) error {
	w.reconcileMu.Lock()
	defer w.reconcileMu.Unlock()

	desired := make(map[ref.UserID]bool, len(connections))
	for _, peer := range connections {
		if !peer.IsZero() {
			desired[peer] = true
		}
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	var removed []*peerWatch
	for peer, watch := range w.watches {
		if !desired[peer] {
			removed = append(removed, watch)
			delete(w.watches, peer)
			delete(w.entries, peer)
		}
	}
	var added []ref.UserID
	for peer := range desired {
		if _, ok := w.watches[peer]; !ok {
			added = append(added, peer)
		}
	}
	if len(removed) > 0 {
		w.sink.Offer(w.snapshotLocked())
	}
	w.mu.Unlock()

	for _, watch := range removed {
		watch.stop()
		w.logger.Debug("roster peer unwatched", "peer", watch.peer.String())
	}

	var failures []error
	for _, peer := range ref.SortUserIDs(added) {
		sub, err := w.store.Subscribe(ctx, schema.UserPath(peer))
		if err != nil {
			failures = append(failures, fmt.Errorf("watching %s: %w", peer, err))
			continue
		}
		watch := &peerWatch{peer: peer, sub: sub, done: make(chan struct{})}
		w.mu.Lock()
		w.watches[peer] = watch
		w.mu.Unlock()
		go w.follow(watch)
		w.logger.Debug("roster peer watched", "peer", peer.String())
	}
	return errors.Join(failures...)
}

// Close cancels every peer subscription and closes Updates. Nothing is
// delivered after Close returns.
func (w *Watcher) Close() {
	w.reconcileMu.Lock()
	defer w.reconcileMu.Unlock()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	watches := make([]*peerWatch, 0, len(w.watches))
	for _, watch := range w.watches {
		watches = append(watches, watch)
	}
	clear(w.watches)
	clear(w.entries)
	w.mu.Unlock()

	for _, watch := range watches {
		watch.stop()
	}
	w.updates.Cancel()
}

func (w *Watcher) follow(watch *peerWatch) {
	defer close(watch.done)
	for doc := range watch.sub.Updates() {
		w.apply(watch, doc)
	}
	if err := watch.sub.Err(); err != nil {
		w.logger.Warn("roster peer subscription ended", "peer", watch.peer.String(), "error", err)
	}
}

// apply replaces the entry of watch.peer with doc. Snapshots from a
// watch that has since been replaced or removed are dropped.
func (w *Watcher) apply(watch *peerWatch, doc store.Document) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || w.watches[watch.peer] != watch {
		return
	}

	entry, ok := entryOf(watch.peer, doc)
	previous, had := w.entries[watch.peer]
	switch {
	case ok && had && previous == entry:
		return
	case ok:
		w.entries[watch.peer] = entry
	case had:
		delete(w.entries, watch.peer)
	default:
		return
	}
	w.sink.Offer(w.snapshotLocked())
}

func (w *Watcher) snapshotLocked() []Entry {
	entries := make([]Entry, 0, len(w.entries))
	for _, entry := range w.entries {
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b Entry) int { return a.UserID.Compare(b.UserID) })
	return entries
}

func (p *peerWatch) stop() {
	p.sub.Cancel()
	<-p.done
}

// entryOf builds a roster entry from a peer record. It reports false
// for a missing record or one without a usable location.
func entryOf(peer ref.UserID, doc store.Document) (Entry, bool) {
	if !doc.Exists {
		return Entry{}, false
	}
	location, ok := doc.Map(schema.FieldLocation)
	if !ok {
		return Entry{}, false
	}
	latitude, latOK := store.Float64Value(location[schema.FieldLatitude])
	longitude, lonOK := store.Float64Value(location[schema.FieldLongitude])
	if !latOK || !lonOK {
		return Entry{}, false
	}
	entry := Entry{
		UserID:    peer,
		Latitude:  latitude,
		Longitude: longitude,
	}
	if updatedAt, ok := store.Int64Value(location[schema.FieldUpdatedAt]); ok {
		entry.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	}
	entry.DisplayName = doc.Text(schema.FieldName)
	if entry.DisplayName == "" {
		entry.DisplayName = doc.Text(schema.FieldUsername)
	}
	if entry.DisplayName == "" {
		entry.DisplayName = peer.String()
	}
	return entry, true
}
