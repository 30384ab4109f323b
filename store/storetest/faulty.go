// Copyright 2026 The Beacon Authors
// SPDX-License-Identifier: Apache-2.0

package storetest

import (
	"context"
	"errors"
	"sync"

	"github.com/beacon-app/beacon/lib/stream"
	"github.com/beacon-app/beacon/store"
)

// ErrInjected is the default failure returned by Faulty.
var ErrInjected = errors.New("storetest: injected failure")

// Op names a Store method for fault injection.
type Op string

const (
	OpGet                 Op = "get"
	OpPut                 Op = "put"
	OpUpdate              Op = "update"
	OpAppend              Op = "append"
	OpQuery               Op = "query"
	OpList                Op = "list"
	OpSubscribe           Op = "subscribe"
	OpSubscribeCollection Op = "subscribe-collection"
)

// Faulty wraps a Store and fails matching calls before they reach it.
// A failed call has no effect on the wrapped store.
type Faulty struct {
	store.Store

	mu    sync.Mutex
	rules []*rule
	calls map[Op]int
}

type rule struct {
	op   Op
	path string
	err  error
	// remaining counts the failures left; negative fails forever.
	remaining int
}

// NewFaulty wraps inner.
func NewFaulty(inner store.Store) *Faulty {
	return &Faulty{Store: inner, calls: make(map[Op]int)}
}

// FailNext makes the next n calls of op on path fail with err. An
// empty path matches every path; a nil err means ErrInjected.
func (f *Faulty) FailNext(op Op, path string, n int, err error) {
	f.addRule(op, path, n, err)
}

// FailAlways makes every call of op on path fail until Heal.
func (f *Faulty) FailAlways(op Op, path string, err error) {
	f.addRule(op, path, -1, err)
}

// Heal removes every rule.
func (f *Faulty) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

// Calls returns how many times op was invoked, failed or not.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Faulty) addRule(op Op, path string, n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &rule{op: op, path: path, err: err, remaining: n})
}

func (f *Faulty) check(op Op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	for i, r := range f.rules {
		if r.op != op || (r.path != "" && r.path != path) {
			continue
		}
		if r.remaining > 0 {
			r.remaining--
			if r.remaining == 0 {
				f.rules = append(f.rules[:i], f.rules[i+1:]...)
			}
		}
		return r.err
	}
	return nil
}

func (f *Faulty) Get(ctx context.Context, path string) (store.Document, error) {
	if err := f.check(OpGet, path); err != nil {
		return store.Document{}, err
	}
	return f.Store.Get(ctx, path)
}

func (f *Faulty) Put(ctx context.Context, path string, fields map[string]any, merge bool) (store.Document, error) {
	if err := f.check(OpPut, path); err != nil {
		return store.Document{}, err
	}
	return f.Store.Put(ctx, path, fields, merge)
}

func (f *Faulty) Update(ctx context.Context, path string, ops ...store.FieldOp) (store.Document, error) {
	if err := f.check(OpUpdate, path); err != nil {
		return store.Document{}, err
	}
	return f.Store.Update(ctx, path, ops...)
}

func (f *Faulty) Append(ctx context.Context, collection string, fields map[string]any) (store.Document, error) {
	if err := f.check(OpAppend, collection); err != nil {
		return store.Document{}, err
	}
	return f.Store.Append(ctx, collection, fields)
}

func (f *Faulty) Query(ctx context.Context, collection, field string, value any) ([]store.Document, error) {
	if err := f.check(OpQuery, collection); err != nil {
		return nil, err
	}
	return f.Store.Query(ctx, collection, field, value)
}

func (f *Faulty) List(ctx context.Context, collection string) ([]store.Document, error) {
	if err := f.check(OpList, collection); err != nil {
		return nil, err
	}
	return f.Store.List(ctx, collection)
}

func (f *Faulty) Subscribe(ctx context.Context, path string) (*stream.Subscription[store.Document], error) {
	if err := f.check(OpSubscribe, path); err != nil {
		return nil, err
	}
	return f.Store.Subscribe(ctx, path)
}

func (f *Faulty) SubscribeCollection(ctx context.Context, collection, orderBy string) (*stream.Subscription[store.CollectionSnapshot], error) {
	if err := f.check(OpSubscribeCollection, collection); err != nil {
		return nil, err
	}
	return f.Store.SubscribeCollection(ctx, collection, orderBy)
}
