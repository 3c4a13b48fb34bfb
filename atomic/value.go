// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package atomic

import (
	"reflect"
	"sync/atomic"
)

type val[T any] struct {
	av *atomic.Value
	dl *atomic.Value
	ds *atomic.Value
}

type defaultValue[T any] struct{ v T }

func (o *val[T]) SetDefaultLoad(def T) {
	o.dl.Store(defaultValue[T]{v: def})
}

func (o *val[T]) SetDefaultStore(def T) {
	o.ds.Store(defaultValue[T]{v: def})
}

func (o *val[T]) getDefault(i any) T {
	if v, ok := i.(defaultValue[T]); ok {
		return v.v
	}
	var zero T
	return zero
}

func (o *val[T]) getDefaultLoad() T  { return o.getDefault(o.dl.Load()) }
func (o *val[T]) getDefaultStore() T { return o.getDefault(o.ds.Load()) }

// Cast attempts to convert src to T, reporting whether it succeeded.
func Cast[T any](src any) (model T, casted bool) {
	if src == nil {
		return model, false
	}
	v, ok := src.(T)
	return v, ok
}

// IsEmpty reports whether src is the zero value of T (or not castable at all).
func IsEmpty[T any](src T) bool {
	var zero T
	return reflect.DeepEqual(src, zero)
}

func (o *val[T]) Load() T {
	if v, ok := Cast[T](o.av.Load()); ok {
		return v
	}
	return o.getDefaultLoad()
}

func (o *val[T]) Store(v T) {
	if IsEmpty(v) {
		o.av.Store(o.getDefaultStore())
		return
	}
	o.av.Store(v)
}

func (o *val[T]) Swap(n T) (old T) {
	if IsEmpty(n) {
		n = o.getDefaultStore()
	}
	if v, ok := Cast[T](o.av.Swap(n)); ok {
		return v
	}
	return o.getDefaultLoad()
}

func (o *val[T]) CompareAndSwap(oldVal, newVal T) bool {
	if IsEmpty(oldVal) {
		oldVal = o.getDefaultStore()
	}
	if IsEmpty(newVal) {
		newVal = o.getDefaultStore()
	}
	return o.av.CompareAndSwap(oldVal, newVal)
}
