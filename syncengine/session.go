// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package syncengine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/beacon-app/beacon/chat"
	"github.com/beacon-app/beacon/geo"
	"github.com/beacon-app/beacon/graph"
	"github.com/beacon-app/beacon/lib/clock"
	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/stream"
	"github.com/beacon-app/beacon/lib/syncerr"
	"github.com/beacon-app/beacon/presence"
	"github.com/beacon-app/beacon/profile"
	"github.com/beacon-app/beacon/roster"
	"github.com/beacon-app/beacon/store"
)

// DefaultRepairDelay is used when Config.RepairDelay is zero.
const DefaultRepairDelay = 5 * time.Second

// ErrClosed is returned by Session operations after Close.
var ErrClosed = errors.New("syncengine: session closed")

// Config configures a Session.
type Config struct {
	Store store.Store

	// User is the signed-in identity.
	User ref.UserID

	// Permissions gates location publishing. Nil means granted.
	Permissions geo.Permissions

	// Clock stamps records and schedules repairs. Defaults to
	// clock.Real().
	Clock clock.Clock

	// RepairDelay is the wait before repairing an edge left half
	// written by Accept or Disconnect. Zero means DefaultRepairDelay;
	// negative disables scheduled repairs.
	RepairDelay time.Duration

	// MaxMessageLength is passed to the chat service.
	MaxMessageLength int

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger
}

// Session is the engine for one signed-in user.
type Session struct {
	user        ref.UserID
	clock       clock.Clock
	repairDelay time.Duration
	logger      *slog.Logger

	graph    *graph.Service
	chat     *chat.Service
	presence *presence.Publisher
	profiles *profile.Directory
	roster   *roster.Watcher

	// ctx bounds background work; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	events *stream.Subscription[[]Event]
	sink   *stream.Sink[[]Event]

	state      *stream.Subscription[graph.State]
	stateDone  chan struct{}
	rosterDone chan struct{}

	// wg tracks thread relays, location tracking, and repairs.
	wg sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	threads map[ref.ThreadKey]*stream.Subscription[[]chat.Message]
	repairs map[ref.UserID]*clock.Timer
}

// Open starts a session for cfg.User. The first events describe the
// user's current connections, requests, and roster.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("syncengine: Store is required")
	}
	if cfg.User.IsZero() {
		return nil, errors.New("syncengine: User is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	repairDelay := cfg.RepairDelay
	if repairDelay == 0 {
		repairDelay = DefaultRepairDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("user_id", cfg.User.String())

	graphService, err := graph.New(graph.Config{Store: cfg.Store, User: cfg.User, Logger: logger})
	if err != nil {
		return nil, err
	}
	chatService, err := chat.New(chat.Config{
		Store:            cfg.Store,
		User:             cfg.User,
		Clock:            clk,
		MaxMessageLength: cfg.MaxMessageLength,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	publisher, err := presence.New(presence.Config{
		Store:       cfg.Store,
		User:        cfg.User,
		Permissions: cfg.Permissions,
		Clock:       clk,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	directory, err := profile.New(profile.Config{Store: cfg.Store, Logger: logger})
	if err != nil {
		return nil, err
	}
	watcher, err := roster.New(roster.Config{Store: cfg.Store, Logger: logger})
	if err != nil {
		return nil, err
	}

	state, err := graphService.Watch(ctx)
	if err != nil {
		watcher.Close()
		return nil, err
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		user:        cfg.User,
		clock:       clk,
		repairDelay: repairDelay,
		logger:      logger,
		graph:       graphService,
		chat:        chatService,
		presence:    publisher,
		profiles:    directory,
		roster:      watcher,
		ctx:         sessionCtx,
		cancel:      cancel,
		state:       state,
		stateDone:   make(chan struct{}),
		rosterDone:  make(chan struct{}),
		threads:     make(map[ref.ThreadKey]*stream.Subscription[[]chat.Message]),
		repairs:     make(map[ref.UserID]*clock.Timer),
	}
	s.events, s.sink = stream.New(stream.Concat[Event], nil)

	go s.followState()
	go s.followRoster()
	logger.Info("session opened")
	return s, nil
}

// User returns the session's identity.
func (s *Session) User() ref.UserID { return s.user }

// Events delivers batches of events in the order they were observed.
// No event is dropped when the reader lags; batches grow instead. The
// channel is closed by Close.
func (s *Session) Events() <-chan []Event { return s.events.Updates() }

// Roster returns the current roster.
func (s *Session) Roster() []roster.Entry { return s.roster.Snapshot() }

// Close cancels every subscription of the session and waits for
// background work to stop. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	threads := make([]*stream.Subscription[[]chat.Message], 0, len(s.threads))
	for _, sub := range s.threads {
		threads = append(threads, sub)
	}
	clear(s.threads)
	for _, timer := range s.repairs {
		if timer != nil {
			timer.Stop()
		}
	}
	clear(s.repairs)
	s.mu.Unlock()

	s.cancel()
	s.state.Cancel()
	<-s.stateDone
	s.roster.Close()
	<-s.rosterDone
	for _, sub := range threads {
		sub.Cancel()
	}
	s.wg.Wait()
	s.events.Cancel()
	s.logger.Info("session closed")
}

func (s *Session) emit(events ...Event) {
	if len(events) > 0 {
		s.sink.Offer(events)
	}
}

// followState drives the roster and request events from the user's
// own record.
func (s *Session) followState() {
	defer close(s.stateDone)
	var (
		connections []ref.UserID
		pending     []ref.UserID
		first       = true
	)
	for state := range s.state.Updates() {
		if first || !slices.Equal(state.Connections, connections) {
			connections = state.Connections
			if err := s.roster.Reconcile(s.ctx, connections); err != nil && !errors.Is(err, roster.ErrClosed) {
				s.logger.Warn("roster reconcile failed", "error", err)
			}
			s.emit(Event{Kind: ConnectionsUpdated, Connections: slices.Clone(connections)})
		}
		if first || !slices.Equal(state.PendingRequests, pending) {
			pending = state.PendingRequests
			requests, err := s.profiles.Resolve(s.ctx, pending)
			if err != nil {
				s.logger.Warn("resolving pending requests failed", "error", err)
				requests = bareProfiles(pending)
			}
			s.emit(Event{Kind: RequestsUpdated, Requests: requests})
		}
		first = false
	}
	if err := s.state.Err(); err != nil {
		s.logger.Warn("graph watch ended", "error", err)
	}
}

func (s *Session) followRoster() {
	defer close(s.rosterDone)
	for entries := range s.roster.Updates() {
		s.emit(Event{Kind: RosterUpdated, Roster: entries})
	}
}

func bareProfiles(ids []ref.UserID) []profile.Profile {
	profiles := make([]profile.Profile, len(ids))
	for i, id := range ids {
		profiles[i] = profile.Profile{ID: id}
	}
	return profiles
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Request asks peer to connect.
func (s *Session) Request(ctx context.Context, peer ref.UserID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.graph.Request(ctx, peer)
}

// Accept accepts peer's request. A half-applied accept schedules a
// repair of the edge and still returns the PartialWriteError.
func (s *Session) Accept(ctx context.Context, peer ref.UserID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.graph.Accept(ctx, peer)
	s.repairIfPartial(peer, err)
	return err
}

// Decline drops peer's request.
func (s *Session) Decline(ctx context.Context, peer ref.UserID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.graph.Decline(ctx, peer)
}

// Cancel withdraws the request pending with peer.
func (s *Session) Cancel(ctx context.Context, peer ref.UserID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.graph.Cancel(ctx, peer)
}

// Disconnect removes the edge with peer. A half-applied disconnect
// schedules a repair of the edge and still returns the
// PartialWriteError.
func (s *Session) Disconnect(ctx context.Context, peer ref.UserID) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	err := s.graph.Disconnect(ctx, peer)
	s.repairIfPartial(peer, err)
	return err
}

// Relation reports the state of the edge with peer.
func (s *Session) Relation(ctx context.Context, peer ref.UserID) (graph.Relation, error) {
	if err := s.checkOpen(); err != nil {
		return graph.None, err
	}
	return s.graph.Relation(ctx, peer)
}

// Connections resolves the user's connections to profiles.
func (s *Session) Connections(ctx context.Context) ([]profile.Profile, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	state, err := s.graph.State(ctx)
	if err != nil {
		return nil, err
	}
	return s.profiles.Resolve(ctx, state.Connections)
}

// PendingRequests resolves the users with a request pending with the
// session user.
func (s *Session) PendingRequests(ctx context.Context) ([]profile.Profile, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	state, err := s.graph.State(ctx)
	if err != nil {
		return nil, err
	}
	return s.profiles.Resolve(ctx, state.PendingRequests)
}

// Find searches users by exact handle.
func (s *Session) Find(ctx context.Context, handle string) ([]profile.Match, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.profiles.FindByHandle(ctx, s.user, handle)
}

// Publish writes the user's location once.
func (s *Session) Publish(ctx context.Context, at geo.Coordinates) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.presence.Publish(ctx, at)
}

// TrackLocation publishes fixes from source in the background until
// the source ends or the session closes.
func (s *Session) TrackLocation(source geo.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.presence.Run(s.ctx, source); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("location tracking stopped", "error", err)
		}
	}()
	return nil
}

// Send sends text to the thread with peer.
func (s *Session) Send(ctx context.Context, peer ref.UserID, text string) (chat.Message, error) {
	if err := s.checkOpen(); err != nil {
		return chat.Message{}, err
	}
	key, err := s.chat.Thread(peer)
	if err != nil {
		return chat.Message{}, err
	}
	return s.chat.Send(ctx, key, text)
}

// History reads the thread with peer once.
func (s *Session) History(ctx context.Context, peer ref.UserID) ([]chat.Message, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	key, err := s.chat.Thread(peer)
	if err != nil {
		return nil, err
	}
	return s.chat.History(ctx, key)
}

// OpenThread starts delivering MessagesReceived events for the thread
// with peer. The first event holds the thread's history. Opening an
// open thread does nothing.
func (s *Session) OpenThread(ctx context.Context, peer ref.UserID) (ref.ThreadKey, error) {
	key, err := s.chat.Thread(peer)
	if err != nil {
		return ref.ThreadKey{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ref.ThreadKey{}, ErrClosed
	}
	if _, open := s.threads[key]; open {
		return key, nil
	}
	sub, err := s.chat.Subscribe(ctx, key)
	if err != nil {
		return ref.ThreadKey{}, err
	}
	s.threads[key] = sub
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for messages := range sub.Updates() {
			s.emit(Event{Kind: MessagesReceived, Thread: key, Messages: messages})
		}
		if err := sub.Err(); err != nil {
			s.logger.Warn("thread subscription ended", "thread", key.String(), "error", err)
		}
	}()
	return key, nil
}

// CloseThread stops the thread's events. Closing a thread that is not
// open does nothing.
func (s *Session) CloseThread(key ref.ThreadKey) {
	s.mu.Lock()
	sub, open := s.threads[key]
	delete(s.threads, key)
	s.mu.Unlock()
	if open {
		sub.Cancel()
	}
}

// OpenThreads returns the keys of the open threads.
func (s *Session) OpenThreads() []ref.ThreadKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]ref.ThreadKey, 0, len(s.threads))
	for key := range s.threads {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b ref.ThreadKey) int {
		return strings.Compare(a.String(), b.String())
	})
	return keys
}

func (s *Session) repairIfPartial(peer ref.UserID, err error) {
	var partial *syncerr.PartialWriteError
	if !errors.As(err, &partial) {
		return
	}
	s.scheduleRepair(peer)
}

func (s *Session) scheduleRepair(peer ref.UserID) {
	s.mu.Lock()
	if s.closed || s.repairDelay < 0 {
		s.mu.Unlock()
		return
	}
	if _, pending := s.repairs[peer]; pending {
		s.mu.Unlock()
		return
	}
	s.repairs[peer] = nil
	s.mu.Unlock()

	s.logger.Info("edge repair scheduled", "peer", peer.String(), "delay", s.repairDelay.String())
	timer := s.clock.AfterFunc(s.repairDelay, func() { s.runRepair(peer) })

	s.mu.Lock()
	if _, pending := s.repairs[peer]; pending {
		s.repairs[peer] = timer
	}
	s.mu.Unlock()
}

func (s *Session) runRepair(peer ref.UserID) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.repairs, peer)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	fix, err := s.graph.RepairEdge(s.ctx, peer)
	if err != nil {
		s.logger.Warn("edge repair failed", "peer", peer.String(), "error", err)
		return
	}
	s.emit(Event{Kind: RepairCompleted, Peer: peer, Fix: fix})
}
