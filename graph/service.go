// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/schema"
	"github.com/beacon-app/beacon/lib/stream"
	"github.com/beacon-app/beacon/lib/syncerr"
	"github.com/beacon-app/beacon/store"
)

// Config holds the collaborators of a Service.
type Config struct {
	Store store.Store

	// User is the identity every operation acts as.
	User ref.UserID

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger
}

// Service performs connection graph operations on behalf of one user.
type Service struct {
	store  store.Store
	self   ref.UserID
	logger *slog.Logger
}

// New creates a Service acting as cfg.User.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("graph: Store is required")
	}
	if cfg.User.IsZero() {
		return nil, errors.New("graph: User is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		store:  cfg.Store,
		self:   cfg.User,
		logger: logger.With("user_id", cfg.User.String()),
	}, nil
}

// User returns the identity the service acts as.
func (s *Service) User() ref.UserID { return s.self }

// Request asks target to connect. Re-issuing a request that is already
// pending succeeds without a write.
func (s *Service) Request(ctx context.Context, target ref.UserID) error {
	const op = "request"
	if target == s.self {
		return syncerr.Op(op, syncerr.ErrSelfRequest)
	}
	selfDoc, targetDoc, err := s.readPair(ctx, op, target)
	if err != nil {
		return err
	}
	if !targetDoc.Exists {
		return syncerr.Op(op, fmt.Errorf("%s: %w", target, syncerr.ErrNoSuchUser))
	}

	switch Classify(s.self, selfDoc, target, targetDoc) {
	case Connected, Partial:
		return syncerr.Op(op, syncerr.ErrAlreadyConnected)
	case Incoming:
		return syncerr.Op(op, syncerr.ErrAlreadyPending)
	case Outgoing:
		return nil
	}

	_, err = s.store.Update(ctx, schema.UserPath(target),
		store.AddToSet(schema.FieldPendingRequests, s.self.String()))
	if errors.Is(err, store.ErrNotFound) {
		return syncerr.Op(op, fmt.Errorf("%s: %w", target, syncerr.ErrNoSuchUser))
	}
	if err != nil {
		return syncerr.Unavailable(op, err)
	}
	s.logger.Info("connection requested", "target", target.String())
	return nil
}

// Accept completes the request requester has pending with the caller.
// The requester's record is written first, then the caller's.
func (s *Service) Accept(ctx context.Context, requester ref.UserID) error {
	const op = "accept"
	if requester == s.self {
		return syncerr.Op(op, syncerr.ErrSelfRequest)
	}
	selfDoc, err := s.store.Get(ctx, schema.UserPath(s.self))
	if err != nil {
		return syncerr.Unavailable(op, err)
	}
	if !selfDoc.HasMember(schema.FieldPendingRequests, requester.String()) {
		return syncerr.Op(op, syncerr.ErrNoSuchRequest)
	}

	requesterPath := schema.UserPath(requester)
	_, err = s.store.Update(ctx, requesterPath,
		store.AddToSet(schema.FieldConnections, s.self.String()))
	if errors.Is(err, store.ErrNotFound) {
		return syncerr.Op(op, fmt.Errorf("%s: %w", requester, syncerr.ErrNoSuchUser))
	}
	if err != nil {
		return syncerr.Unavailable(op, err)
	}

	selfPath := schema.UserPath(s.self)
	_, err = s.store.Update(ctx, selfPath,
		store.RemoveFromSet(schema.FieldPendingRequests, requester.String()),
		store.AddToSet(schema.FieldConnections, requester.String()))
	if err != nil {
		s.logger.Warn("accept partially applied",
			"requester", requester.String(),
			"error", err,
		)
		cause := syncerr.Unavailable(op, err)
		if errors.Is(err, store.ErrNotFound) {
			cause = syncerr.Op(op, fmt.Errorf("%s: %w", s.self, syncerr.ErrNoSuchUser))
		}
		return &syncerr.PartialWriteError{
			Op:      op,
			Applied: requesterPath,
			Failed:  selfPath,
			Err:     cause,
		}
	}
	s.logger.Info("connection accepted", "requester", requester.String())
	return nil
}

// Decline drops the request requester has pending with the caller.
func (s *Service) Decline(ctx context.Context, requester ref.UserID) error {
	if requester == s.self {
		return syncerr.Op("decline", syncerr.ErrSelfRequest)
	}
	return s.withdraw(ctx, "decline", s.self, requester)
}

// Cancel withdraws the caller's request pending with target.
func (s *Service) Cancel(ctx context.Context, target ref.UserID) error {
	if target == s.self {
		return syncerr.Op("cancel", syncerr.ErrSelfRequest)
	}
	return s.withdraw(ctx, "cancel", target, s.self)
}

// withdraw removes requester from holder's pending requests. Decline
// and Cancel are the same transition seen from either end.
func (s *Service) withdraw(ctx context.Context, op string, holder, requester ref.UserID) error {
	holderPath := schema.UserPath(holder)
	doc, err := s.store.Get(ctx, holderPath)
	if err != nil {
		return syncerr.Unavailable(op, err)
	}
	if !doc.HasMember(schema.FieldPendingRequests, requester.String()) {
		return syncerr.Op(op, syncerr.ErrNoSuchRequest)
	}
	_, err = s.store.Update(ctx, holderPath,
		store.RemoveFromSet(schema.FieldPendingRequests, requester.String()))
	if errors.Is(err, store.ErrNotFound) {
		return syncerr.Op(op, syncerr.ErrNoSuchRequest)
	}
	if err != nil {
		return syncerr.Unavailable(op, err)
	}
	s.logger.Info("connection request withdrawn",
		"op", op,
		"holder", holder.String(),
		"requester", requester.String(),
	)
	return nil
}

// Disconnect removes the edge with peer. The caller's record is
// written first, then the peer's. A peer whose record no longer exists
// needs no second write. The failure is a PartialWriteError only when
// the caller's record was actually written.
func (s *Service) Disconnect(ctx context.Context, peer ref.UserID) error {
	const op = "disconnect"
	if peer == s.self {
		return syncerr.Op(op, syncerr.ErrSelfRequest)
	}
	selfDoc, peerDoc, err := s.readPair(ctx, op, peer)
	if err != nil {
		return err
	}
	selfHas := selfDoc.HasMember(schema.FieldConnections, peer.String())
	peerHas := peerDoc.HasMember(schema.FieldConnections, s.self.String())
	if !selfHas && !peerHas {
		return syncerr.Op(op, syncerr.ErrNotConnected)
	}

	selfPath := schema.UserPath(s.self)
	if selfHas {
		_, err = s.store.Update(ctx, selfPath,
			store.RemoveFromSet(schema.FieldConnections, peer.String()))
		if err != nil {
			return syncerr.Unavailable(op, err)
		}
	}

	peerPath := schema.UserPath(peer)
	_, err = s.store.Update(ctx, peerPath,
		store.RemoveFromSet(schema.FieldConnections, s.self.String()))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		if !selfHas {
			return syncerr.Unavailable(op, err)
		}
		s.logger.Warn("disconnect partially applied",
			"peer", peer.String(),
			"error", err,
		)
		return &syncerr.PartialWriteError{
			Op:      op,
			Applied: selfPath,
			Failed:  peerPath,
			Err:     syncerr.Unavailable(op, err),
		}
	}
	s.logger.Info("disconnected", "peer", peer.String())
	return nil
}

// Relation reads both records and classifies the edge with peer.
func (s *Service) Relation(ctx context.Context, peer ref.UserID) (Relation, error) {
	if peer == s.self {
		return None, syncerr.Op("relation", syncerr.ErrSelfRequest)
	}
	selfDoc, peerDoc, err := s.readPair(ctx, "relation", peer)
	if err != nil {
		return None, err
	}
	return Classify(s.self, selfDoc, peer, peerDoc), nil
}

// State reads the caller's current graph state once.
func (s *Service) State(ctx context.Context) (State, error) {
	doc, err := s.store.Get(ctx, schema.UserPath(s.self))
	if err != nil {
		return State{}, syncerr.Unavailable("read state", err)
	}
	return StateOf(s.self, doc), nil
}

// Watch streams the caller's graph state. The first value reflects the
// record at subscription time. Snapshots that do not change the state
// are not delivered.
func (s *Service) Watch(ctx context.Context) (*stream.Subscription[State], error) {
	documents, err := s.store.Subscribe(ctx, schema.UserPath(s.self))
	if err != nil {
		return nil, syncerr.Unavailable("watch", err)
	}
	var (
		last  State
		first = true
	)
	return stream.Map(documents, func(doc store.Document) (State, bool) {
		state := StateOf(s.self, doc)
		if !first && state.Equal(last) {
			return State{}, false
		}
		first = false
		last = state
		return state, true
	}, nil), nil
}

// Equal reports whether two states hold the same members.
func (st State) Equal(other State) bool {
	return st.Exists == other.Exists &&
		slices.Equal(st.Connections, other.Connections) &&
		slices.Equal(st.PendingRequests, other.PendingRequests)
}

func (s *Service) readPair(ctx context.Context, op string, peer ref.UserID) (selfDoc, peerDoc store.Document, err error) {
	selfDoc, err = s.store.Get(ctx, schema.UserPath(s.self))
	if err != nil {
		return selfDoc, peerDoc, syncerr.Unavailable(op, err)
	}
	peerDoc, err = s.store.Get(ctx, schema.UserPath(peer))
	if err != nil {
		return selfDoc, peerDoc, syncerr.Unavailable(op, err)
	}
	return selfDoc, peerDoc, nil
}
