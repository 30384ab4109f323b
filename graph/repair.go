// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/beacon-app/beacon/lib/ref"
	"github.com/beacon-app/beacon/lib/schema"
	"github.com/beacon-app/beacon/lib/syncerr"
	"github.com/beacon-app/beacon/store"
)

// Fix is what a repair did to one edge.
type Fix int

const (
	// NoFix means the edge was already consistent.
	NoFix Fix = iota
	// Completed means a half-finished accept was finished: the side
	// still holding the request was connected.
	Completed
	// Removed means a half-finished disconnect was finished: the
	// dangling membership was removed.
	Removed
	// RequestCleared means both sides were connected and a stale
	// pending request between them was dropped.
	RequestCleared
)

func (f Fix) String() string {
	switch f {
	case Completed:
		return "completed"
	case Removed:
		return "removed"
	case RequestCleared:
		return "request-cleared"
	default:
		return "none"
	}
}

// RepairEdge re-reads both records of the edge with peer and makes the
// edge symmetric.
//
// An edge held by one side only is completed when the lacking side
// still holds the other in its pending requests, since only an accept
// leaves that state. Otherwise the dangling membership is removed.
func (s *Service) RepairEdge(ctx context.Context, peer ref.UserID) (Fix, error) {
	if peer == s.self {
		return NoFix, syncerr.Op("repair", syncerr.ErrSelfRequest)
	}
	fix, err := repairEdge(ctx, s.store, s.self, peer)
	if err != nil {
		return NoFix, err
	}
	if fix != NoFix {
		s.logger.Info("edge repaired", "peer", peer.String(), "fix", fix.String())
	}
	return fix, nil
}

func repairEdge(ctx context.Context, st store.Store, a, b ref.UserID) (Fix, error) {
	const op = "repair"
	aDoc, err := st.Get(ctx, schema.UserPath(a))
	if err != nil {
		return NoFix, syncerr.Unavailable(op, err)
	}
	bDoc, err := st.Get(ctx, schema.UserPath(b))
	if err != nil {
		return NoFix, syncerr.Unavailable(op, err)
	}

	aHas := aDoc.HasMember(schema.FieldConnections, b.String())
	bHas := bDoc.HasMember(schema.FieldConnections, a.String())

	switch {
	case aHas && bHas:
		fix := NoFix
		for _, side := range []struct {
			holder store.Document
			id     ref.UserID
			other  ref.UserID
		}{{aDoc, a, b}, {bDoc, b, a}} {
			if !side.holder.HasMember(schema.FieldPendingRequests, side.other.String()) {
				continue
			}
			if err := update(ctx, st, side.id,
				store.RemoveFromSet(schema.FieldPendingRequests, side.other.String())); err != nil {
				return NoFix, syncerr.Unavailable(op, err)
			}
			fix = RequestCleared
		}
		return fix, nil

	case !aHas && !bHas:
		return NoFix, nil
	}

	// Exactly one side holds the edge. lacking is the other.
	holder, lacking, lackingDoc := a, b, bDoc
	if bHas {
		holder, lacking, lackingDoc = b, a, aDoc
	}

	if lackingDoc.Exists && lackingDoc.HasMember(schema.FieldPendingRequests, holder.String()) {
		err := update(ctx, st, lacking,
			store.RemoveFromSet(schema.FieldPendingRequests, holder.String()),
			store.AddToSet(schema.FieldConnections, holder.String()))
		if err != nil {
			return NoFix, syncerr.Unavailable(op, err)
		}
		return Completed, nil
	}

	if err := update(ctx, st, holder,
		store.RemoveFromSet(schema.FieldConnections, lacking.String())); err != nil {
		return NoFix, syncerr.Unavailable(op, err)
	}
	return Removed, nil
}

func update(ctx context.Context, st store.Store, user ref.UserID, ops ...store.FieldOp) error {
	_, err := st.Update(ctx, schema.UserPath(user), ops...)
	return err
}

// RepairConfig configures a full repair pass.
type RepairConfig struct {
	Store store.Store

	// Concurrency bounds the edges repaired at once. Zero means 4.
	Concurrency int

	// Logger receives one line per fix. Nil discards them.
	Logger *slog.Logger
}

// RepairReport summarizes a repair pass.
type RepairReport struct {
	Users          int
	Edges          int
	Completed      int
	Removed        int
	RequestCleared int
	// SelfEntries counts records that listed their own id.
	SelfEntries int
}

// Repair scans every user record and repairs each edge either side
// mentions. It returns after every edge has been examined; failures
// are joined into the returned error.
func Repair(ctx context.Context, cfg RepairConfig) (RepairReport, error) {
	if cfg.Store == nil {
		return RepairReport{}, errors.New("graph: Store is required")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	records, err := cfg.Store.List(ctx, schema.UsersCollection)
	if err != nil {
		return RepairReport{}, syncerr.Unavailable("repair", err)
	}

	var report RepairReport
	report.Users = len(records)

	type edge struct{ low, high ref.UserID }
	edges := make(map[edge]struct{})
	var selfEntries []ref.UserID
	for _, doc := range records {
		self, err := ref.ParseUserID(doc.ID())
		if err != nil {
			logger.Warn("skipping record with invalid user id", "path", doc.Path)
			continue
		}
		if doc.HasMember(schema.FieldConnections, self.String()) ||
			doc.HasMember(schema.FieldPendingRequests, self.String()) {
			selfEntries = append(selfEntries, self)
		}
		for _, peer := range idsOf(doc, schema.FieldConnections) {
			if peer == self {
				continue
			}
			e := edge{self, peer}
			if peer.Compare(self) < 0 {
				e = edge{peer, self}
			}
			edges[e] = struct{}{}
		}
	}
	report.Edges = len(edges)

	var (
		mu       sync.Mutex
		failures []error
	)
	record := func(fix Fix, err error, a, b ref.UserID) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures = append(failures, fmt.Errorf("edge %s/%s: %w", a, b, err))
			return
		}
		switch fix {
		case Completed:
			report.Completed++
		case Removed:
			report.Removed++
		case RequestCleared:
			report.RequestCleared++
		}
		if fix != NoFix {
			logger.Info("edge repaired", "user", a.String(), "peer", b.String(), "fix", fix.String())
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for _, self := range selfEntries {
		group.Go(func() error {
			err := update(groupCtx, cfg.Store, self,
				store.RemoveFromSet(schema.FieldConnections, self.String()),
				store.RemoveFromSet(schema.FieldPendingRequests, self.String()))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Errorf("self entries of %s: %w", self, err))
				return nil
			}
			report.SelfEntries++
			logger.Info("self entries dropped", "user", self.String())
			return nil
		})
	}
	for e := range edges {
		group.Go(func() error {
			fix, err := repairEdge(groupCtx, cfg.Store, e.low, e.high)
			record(fix, err, e.low, e.high)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, errors.Join(failures...)
}
