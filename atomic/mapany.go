// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package atomic

import "sync/atomic"

func (o *shardMap[K]) Load(key K) (any, bool) {
	return o.m.Load(key)
}

func (o *shardMap[K]) Store(key K, value any) {
	if _, loaded := o.m.Swap(key, value); !loaded {
		atomic.AddInt64(&o.n, 1)
	}
}

func (o *shardMap[K]) LoadOrStore(key K, value any) (any, bool) {
	actual, loaded := o.m.LoadOrStore(key, value)
	if !loaded {
		atomic.AddInt64(&o.n, 1)
	}
	return actual, loaded
}

func (o *shardMap[K]) LoadAndDelete(key K) (any, bool) {
	v, loaded := o.m.LoadAndDelete(key)
	if loaded {
		atomic.AddInt64(&o.n, -1)
	}
	return v, loaded
}

func (o *shardMap[K]) Delete(key K) {
	o.LoadAndDelete(key)
}

func (o *shardMap[K]) Swap(key K, value any) (any, bool) {
	previous, loaded := o.m.Swap(key, value)
	if !loaded {
		atomic.AddInt64(&o.n, 1)
	}
	return previous, loaded
}

func (o *shardMap[K]) CompareAndSwap(key K, old, new any) bool {
	return o.m.CompareAndSwap(key, old, new)
}

func (o *shardMap[K]) CompareAndDelete(key K, old any) bool {
	deleted := o.m.CompareAndDelete(key, old)
	if deleted {
		atomic.AddInt64(&o.n, -1)
	}
	return deleted
}

func (o *shardMap[K]) Range(f func(key K, value any) bool) {
	o.m.Range(func(k, v any) bool {
		kk, ok := k.(K)
		if !ok {
			return true
		}
		return f(kk, v)
	})
}

func (o *shardMap[K]) Len() int {
	return int(atomic.LoadInt64(&o.n))
}
