// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package clock

import (
	"sync"
	"time"

	atm "github.com/sentinelgate/admission/atomic"
)

// Handle references one scheduled task. Cancel is idempotent and safe to
// call from any goroutine, including after the task has already fired.
type Handle interface {
	Cancel()
}

// Scheduler runs deferred tasks with millisecond precision on a worker
// pool distinct from whatever goroutine calls After, so a slow task body
// never delays the timer goroutine driving other deadlines.
type Scheduler interface {
	// After runs task once, d after the call, unless the returned Handle is
	// cancelled first. A task that fires after cancel was requested (a race
	// between the timer and the cancelling goroutine) is a no-op.
	After(d time.Duration, task func()) Handle
	// Stop cancels every pending task and waits for in-flight task bodies
	// to finish. Stop does not accept further After calls.
	Stop()
}

type job struct {
	fn        func()
	cancelled atm.Value[bool]
}

func (j *job) Cancel() {
	j.cancelled.Store(true)
}

type scheduler struct {
	work chan *job
	wg   sync.WaitGroup

	// mu guards the closed/send handshake: After's callback holds a read
	// lock across its closed check and its send on work, and Stop takes
	// the write lock around closing work, so a send can never race a
	// close and panic on a closed channel.
	mu     sync.RWMutex
	closed bool
}

// NewScheduler returns a Scheduler backed by workers goroutines. workers
// <= 0 defaults to 4.
func NewScheduler(workers int) Scheduler {
	if workers <= 0 {
		workers = 4
	}
	s := &scheduler{work: make(chan *job, 256)}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.loop()
	}
	return s
}

func (s *scheduler) loop() {
	defer s.wg.Done()
	for j := range s.work {
		if j.cancelled.Load() {
			continue
		}
		j.fn()
	}
}

func (s *scheduler) After(d time.Duration, task func()) Handle {
	j := &job{fn: task, cancelled: atm.NewValue[bool]()}
	time.AfterFunc(d, func() {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.closed || j.cancelled.Load() {
			return
		}
		select {
		case s.work <- j:
		default:
			// pool saturated; run inline rather than drop the deadline.
			if !j.cancelled.Load() {
				j.fn()
			}
		}
	})
	return j
}

func (s *scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.work)
	s.mu.Unlock()
	s.wg.Wait()
}
