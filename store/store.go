// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"

	"github.com/beacon-app/beacon/lib/stream"
)

var (
	// ErrNotFound is returned by Update when the document does not
	// exist.
	ErrNotFound = errors.New("store: document not found")

	// ErrInvalidPath is returned for malformed document or collection
	// paths.
	ErrInvalidPath = errors.New("store: invalid path")

	// ErrClosed is returned by every operation after Close, and ends
	// open subscriptions.
	ErrClosed = errors.New("store: closed")
)

// Store is the record store contract.
type Store interface {
	// Get reads one document. A missing document is returned with
	// Exists false and no error.
	Get(ctx context.Context, path string) (Document, error)

	// Put writes fields to path, creating the document if needed.
	// With merge, top-level fields not named in fields are kept;
	// without, the document is replaced.
	Put(ctx context.Context, path string, fields map[string]any, merge bool) (Document, error)

	// Update applies ops atomically to an existing document. It fails
	// with ErrNotFound if the document does not exist.
	Update(ctx context.Context, path string, ops ...FieldOp) (Document, error)

	// Append creates a document with a store-assigned, time-ordered id
	// in collection.
	Append(ctx context.Context, collection string, fields map[string]any) (Document, error)

	// Query returns the documents of collection whose field equals
	// value, ordered by path.
	Query(ctx context.Context, collection, field string, value any) ([]Document, error)

	// List returns every document of collection, ordered by path.
	List(ctx context.Context, collection string) ([]Document, error)

	// Subscribe streams snapshots of one document.
	Subscribe(ctx context.Context, path string) (*stream.Subscription[Document], error)

	// SubscribeCollection streams the documents of collection ordered
	// by the integer field orderBy, ties broken by Sequence.
	SubscribeCollection(ctx context.Context, collection, orderBy string) (*stream.Subscription[CollectionSnapshot], error)

	// Close ends every subscription and releases resources.
	Close() error
}

// CollectionSnapshot is one delivery of a collection subscription.
type CollectionSnapshot struct {
	Collection string

	// Documents is the whole collection in subscription order.
	Documents []Document

	// Changes are the documents created or modified since the
	// previous delivery, in commit order. On the first delivery they
	// are the whole collection.
	Changes []Document

	// Initial is set on the first delivery.
	Initial bool
}

func mergeDocument(pending, next Document) Document {
	if next.Sequence >= pending.Sequence {
		return next
	}
	return pending
}

func mergeCollection(pending, next CollectionSnapshot) CollectionSnapshot {
	return CollectionSnapshot{
		Collection: next.Collection,
		Documents:  next.Documents,
		Changes:    append(pending.Changes, next.Changes...),
		Initial:    pending.Initial || next.Initial,
	}
}
