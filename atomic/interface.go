// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package atomic provides generic, lock-free value and map containers used
// throughout the admission pipeline wherever a reader must never block a
// writer: the policy snapshot (policy.Snapshot), the registry's per-IP
// record map, the pipeline's connection map and rate limiter, and the
// scheduler's per-task cancel flags.
package atomic

import (
	"sync"
	"sync/atomic"
)

// Value is a type-safe wrapper around sync/atomic.Value with configurable
// defaults for empty loads and stores.
type Value[T any] interface {
	// SetDefaultLoad configures the value returned by Load when nothing has
	// been stored yet.
	SetDefaultLoad(def T)
	// SetDefaultStore configures the value substituted when Store is called
	// with an empty T.
	SetDefaultStore(def T)

	Load() (val T)
	Store(val T)
	Swap(new T) (old T)
	CompareAndSwap(old, new T) (swapped bool)
}

// Map is a generic, comparable-keyed wrapper around sync.Map.
type Map[K comparable] interface {
	Load(key K) (value any, ok bool)
	Store(key K, value any)
	LoadOrStore(key K, value any) (actual any, loaded bool)
	LoadAndDelete(key K) (value any, loaded bool)
	Delete(key K)
	Swap(key K, value any) (previous any, loaded bool)
	CompareAndSwap(key K, old, new any) bool
	CompareAndDelete(key K, old any) (deleted bool)
	Range(f func(key K, value any) bool)
	Len() int
}

// NewValue returns a Value with zero-value defaults for both load and store.
func NewValue[T any]() Value[T] {
	var zero T
	return NewValueDefault[T](zero, zero)
}

// NewValueDefault returns a Value with the given load/store defaults.
func NewValueDefault[T any](load, store T) Value[T] {
	o := &val[T]{
		av: new(atomic.Value),
		dl: new(atomic.Value),
		ds: new(atomic.Value),
	}
	o.SetDefaultLoad(load)
	o.SetDefaultStore(store)
	return o
}

// NewMap returns a Map backed by sync.Map, safe for concurrent use without
// any external locking. Used by registry for its per-IP records.
func NewMap[K comparable]() Map[K] {
	return &shardMap[K]{}
}

// shardMap tracks size alongside sync.Map, which does not expose Len.
type shardMap[K comparable] struct {
	m sync.Map
	n int64
}
