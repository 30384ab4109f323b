// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"path"
	"slices"
	"sync"

	"github.com/beacon-app/beacon/lib/stream"
)

// broker fans committed snapshots out to subscriptions. Offers never
// block, so publish is safe to call with the store mutex held.
type broker struct {
	mu          sync.Mutex
	documents   map[string]map[*documentWatch]struct{}
	collections map[string]map[*collectionWatch]struct{}
}

type documentWatch struct {
	path string
	sink *stream.Sink[Document]
	// last is the highest sequence offered; older snapshots are
	// dropped.
	last uint64
}

type collectionWatch struct {
	collection string
	orderBy    string
	sink       *stream.Sink[CollectionSnapshot]
	documents  map[string]Document
}

func newBroker() *broker {
	return &broker{
		documents:   make(map[string]map[*documentWatch]struct{}),
		collections: make(map[string]map[*collectionWatch]struct{}),
	}
}

func (b *broker) watchDocument(initial Document) *stream.Subscription[Document] {
	watch := &documentWatch{path: initial.Path, last: initial.Sequence}
	sub, sink := stream.New(mergeDocument, func() { b.removeDocument(watch) })
	watch.sink = sink

	b.mu.Lock()
	watchers := b.documents[watch.path]
	if watchers == nil {
		watchers = make(map[*documentWatch]struct{})
		b.documents[watch.path] = watchers
	}
	watchers[watch] = struct{}{}
	b.mu.Unlock()

	sink.Offer(initial)
	return sub
}

func (b *broker) watchCollection(collection, orderBy string, initial []Document) *stream.Subscription[CollectionSnapshot] {
	watch := &collectionWatch{
		collection: collection,
		orderBy:    orderBy,
		documents:  make(map[string]Document, len(initial)),
	}
	for _, doc := range initial {
		watch.documents[doc.Path] = doc
	}
	sub, sink := stream.New(mergeCollection, func() { b.removeCollection(watch) })
	watch.sink = sink

	b.mu.Lock()
	watchers := b.collections[collection]
	if watchers == nil {
		watchers = make(map[*collectionWatch]struct{})
		b.collections[collection] = watchers
	}
	watchers[watch] = struct{}{}
	ordered := watch.ordered()
	b.mu.Unlock()

	sink.Offer(CollectionSnapshot{
		Collection: collection,
		Documents:  ordered,
		Changes:    slices.Clone(ordered),
		Initial:    true,
	})
	return sub
}

func (b *broker) publish(doc Document) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for watch := range b.documents[doc.Path] {
		if doc.Sequence <= watch.last {
			continue
		}
		watch.last = doc.Sequence
		watch.sink.Offer(doc)
	}

	for watch := range b.collections[path.Dir(doc.Path)] {
		if previous, ok := watch.documents[doc.Path]; ok && previous.Sequence >= doc.Sequence {
			continue
		}
		watch.documents[doc.Path] = doc
		watch.sink.Offer(CollectionSnapshot{
			Collection: watch.collection,
			Documents:  watch.ordered(),
			Changes:    []Document{doc},
		})
	}
}

// ordered returns the watched documents sorted by the order field,
// then commit sequence.
func (w *collectionWatch) ordered() []Document {
	documents := make([]Document, 0, len(w.documents))
	for _, doc := range w.documents {
		documents = append(documents, doc)
	}
	slices.SortFunc(documents, func(a, b Document) int {
		if w.orderBy != "" {
			aKey, _ := a.Int64(w.orderBy)
			bKey, _ := b.Int64(w.orderBy)
			if aKey != bKey {
				if aKey < bKey {
					return -1
				}
				return 1
			}
		}
		switch {
		case a.Sequence < b.Sequence:
			return -1
		case a.Sequence > b.Sequence:
			return 1
		}
		if a.Path < b.Path {
			return -1
		}
		if a.Path > b.Path {
			return 1
		}
		return 0
	})
	return documents
}

func (b *broker) removeDocument(watch *documentWatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if watchers := b.documents[watch.path]; watchers != nil {
		delete(watchers, watch)
		if len(watchers) == 0 {
			delete(b.documents, watch.path)
		}
	}
}

func (b *broker) removeCollection(watch *collectionWatch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if watchers := b.collections[watch.collection]; watchers != nil {
		delete(watchers, watch)
		if len(watchers) == 0 {
			delete(b.collections, watch.collection)
		}
	}
}

func (b *broker) documentWatchers(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.documents[path])
}

func (b *broker) collectionWatchers(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.collections[collection])
}

// closeAll ends every subscription with err.
func (b *broker) closeAll(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, watchers := range b.documents {
		for watch := range watchers {
			watch.sink.Fail(err)
		}
	}
	for _, watchers := range b.collections {
		for watch := range watchers {
			watch.sink.Fail(err)
		}
	}
	clear(b.documents)
	clear(b.collections)
}
