// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"reflect"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/beacon-app/beacon/lib/clock"
	"github.com/beacon-app/beacon/lib/codec"
	"github.com/beacon-app/beacon/lib/stream"
)

// mutateFunc computes the next fields of a document from its current
// snapshot. Returning write false leaves the document untouched.
type mutateFunc func(current Document) (fields map[string]any, write bool, err error)

// backend is the persistence layer under core. Implementations need
// not be safe against concurrent mutate calls; core serializes them.
type backend interface {
	get(ctx context.Context, path string) (Document, error)
	// mutate reads path, calls fn, and if fn asks for it persists the
	// result under the next commit sequence, all atomically.
	mutate(ctx context.Context, path string, fn mutateFunc) (Document, bool, error)
	// scan returns the documents of one collection ordered by path.
	scan(ctx context.Context, collection string) ([]Document, error)
	close() error
}

// Config holds the collaborators shared by every store implementation.
type Config struct {
	// Clock stamps the ids assigned by Append. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger
}

// core implements Store on top of a backend. It serializes writes and
// subscription registration under one mutex so that a subscriber sees
// every commit after its initial snapshot exactly once.
type core struct {
	backend backend
	clock   clock.Clock
	logger  *slog.Logger
	broker  *broker

	mu     sync.Mutex
	closed bool

	entropyMu sync.Mutex
	entropy   io.Reader
}

func newCore(b backend, cfg Config) *core {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &core{
		backend: b,
		clock:   clk,
		logger:  logger,
		broker:  newBroker(),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (c *core) Get(ctx context.Context, path string) (Document, error) {
	if _, _, err := SplitDocumentPath(path); err != nil {
		return Document{}, err
	}
	if c.isClosed() {
		return Document{}, ErrClosed
	}
	doc, err := c.backend.get(ctx, path)
	if err != nil {
		return Document{}, fmt.Errorf("store: get %s: %w", path, err)
	}
	return doc, nil
}

func (c *core) Put(ctx context.Context, path string, fields map[string]any, merge bool) (Document, error) {
	return c.write(ctx, "put", path, func(current Document) (map[string]any, error) {
		if merge && current.Exists {
			next := cloneFields(current.Fields)
			maps.Copy(next, fields)
			return next, nil
		}
		return cloneFields(fields), nil
	})
}

func (c *core) Update(ctx context.Context, path string, ops ...FieldOp) (Document, error) {
	return c.write(ctx, "update", path, func(current Document) (map[string]any, error) {
		if !current.Exists {
			return nil, ErrNotFound
		}
		return applyOps(current.Fields, ops)
	})
}

func (c *core) Append(ctx context.Context, collection string, fields map[string]any) (Document, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return Document{}, err
	}
	id, err := c.newID()
	if err != nil {
		return Document{}, fmt.Errorf("store: append to %s: %w", collection, err)
	}
	return c.write(ctx, "append", collection+"/"+id, func(Document) (map[string]any, error) {
		return cloneFields(fields), nil
	})
}

// newID returns a ULID: lexically sortable and monotonic within one
// millisecond of the store clock.
func (c *core) newID() (string, error) {
	c.entropyMu.Lock()
	defer c.entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(c.clock.Now()), c.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (c *core) write(ctx context.Context, op, path string, change func(Document) (map[string]any, error)) (Document, error) {
	if _, _, err := SplitDocumentPath(path); err != nil {
		return Document{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Document{}, ErrClosed
	}

	doc, written, err := c.backend.mutate(ctx, path, func(current Document) (map[string]any, bool, error) {
		next, err := change(current)
		if err != nil {
			return nil, false, err
		}
		normalized, err := codec.Normalize(next)
		if err != nil {
			return nil, false, err
		}
		if current.Exists && reflect.DeepEqual(current.Fields, normalized) {
			return nil, false, nil
		}
		return normalized, true, nil
	})
	if err != nil {
		return Document{}, fmt.Errorf("store: %s %s: %w", op, path, err)
	}
	if written {
		c.broker.publish(doc)
	}
	return doc, nil
}

func (c *core) Query(ctx context.Context, collection, field string, value any) ([]Document, error) {
	want, err := codec.Normalize(map[string]any{"value": value})
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", collection, err)
	}
	documents, err := c.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	matches := documents[:0]
	for _, doc := range documents {
		if got, ok := doc.Fields[field]; ok && reflect.DeepEqual(got, want["value"]) {
			matches = append(matches, doc)
		}
	}
	return matches, nil
}

func (c *core) List(ctx context.Context, collection string) ([]Document, error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}
	if c.isClosed() {
		return nil, ErrClosed
	}
	documents, err := c.backend.scan(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", collection, err)
	}
	return documents, nil
}

func (c *core) Subscribe(ctx context.Context, path string) (*stream.Subscription[Document], error) {
	if _, _, err := SplitDocumentPath(path); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	current, err := c.backend.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("store: subscribe %s: %w", path, err)
	}
	return c.broker.watchDocument(current), nil
}

func (c *core) SubscribeCollection(ctx context.Context, collection, orderBy string) (*stream.Subscription[CollectionSnapshot], error) {
	if err := ValidateCollectionPath(collection); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	documents, err := c.backend.scan(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("store: subscribe %s: %w", collection, err)
	}
	return c.broker.watchCollection(collection, orderBy, documents), nil
}

// SubscriberCount returns the number of live subscriptions to the
// document at path.
func (c *core) SubscriberCount(path string) int {
	return c.broker.documentWatchers(path)
}

// CollectionSubscriberCount returns the number of live subscriptions
// to collection.
func (c *core) CollectionSubscriberCount(collection string) int {
	return c.broker.collectionWatchers(collection)
}

func (c *core) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.broker.closeAll(ErrClosed)
	return c.backend.close()
}

func (c *core) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
