// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFrozenAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFrozen(start)

	if !f.Now().Equal(start) {
		t.Fatalf("expected frozen start, got %v", f.Now())
	}

	f.Advance(5 * time.Minute)
	if !f.Now().Equal(start.Add(5 * time.Minute)) {
		t.Fatalf("expected advanced time, got %v", f.Now())
	}
}

func TestSchedulerAfterFires(t *testing.T) {
	s := NewScheduler(2)
	defer s.Stop()

	done := make(chan struct{})
	s.After(10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("task never fired")
	}
}

func TestSchedulerCancelIsIdempotentNoOp(t *testing.T) {
	s := NewScheduler(2)
	defer s.Stop()

	var fired int32
	h := s.After(20*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	h.Cancel()
	h.Cancel() // idempotent

	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatalf("cancelled task fired")
	}
}

func TestSchedulerCancelAfterFireIsNoOp(t *testing.T) {
	s := NewScheduler(2)
	defer s.Stop()

	done := make(chan struct{})
	h := s.After(5*time.Millisecond, func() { close(done) })

	<-done
	h.Cancel() // must not panic or otherwise misbehave
}
