// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"path"
	"slices"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. It backs tests and the CLI's
// memory backend.
type MemoryStore struct {
	*core
}

var _ Store = (*MemoryStore)(nil)

// NewMemory returns an empty MemoryStore.
func NewMemory(cfg Config) *MemoryStore {
	return &MemoryStore{core: newCore(&memoryBackend{documents: make(map[string]Document)}, cfg)}
}

type memoryBackend struct {
	mu        sync.RWMutex
	documents map[string]Document
	sequence  uint64
}

func (m *memoryBackend) get(_ context.Context, documentPath string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if doc, ok := m.documents[documentPath]; ok {
		return doc, nil
	}
	return Document{Path: documentPath}, nil
}

func (m *memoryBackend) mutate(_ context.Context, documentPath string, fn mutateFunc) (Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.documents[documentPath]
	if !ok {
		current = Document{Path: documentPath}
	}
	fields, write, err := fn(current)
	if err != nil || !write {
		return current, false, err
	}
	m.sequence++
	doc := Document{Path: documentPath, Exists: true, Fields: fields, Sequence: m.sequence}
	m.documents[documentPath] = doc
	return doc, true, nil
}

func (m *memoryBackend) scan(_ context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := collection + "/"
	var documents []Document
	for documentPath, doc := range m.documents {
		if strings.HasPrefix(documentPath, prefix) && path.Dir(documentPath) == collection {
			documents = append(documents, doc)
		}
	}
	slices.SortFunc(documents, func(a, b Document) int { return strings.Compare(a.Path, b.Path) })
	return documents, nil
}

func (m *memoryBackend) close() error { return nil }
