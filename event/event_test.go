// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package event

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPublishDeliversToHandler(t *testing.T) {
	var mu sync.Mutex
	var got []Event

	s := New(4, prometheus.NewRegistry(), func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	defer s.Close()

	s.Publish(Event{Kind: VerificationPassed, CorrelationID: "sess-1"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].CorrelationID != "sess-1" {
		t.Fatalf("expected one delivered event, got %+v", got)
	}
}

func TestPublishDropsOnFullBufferWithoutBlocking(t *testing.T) {
	block := make(chan struct{})
	s := New(1, prometheus.NewRegistry(), func(e Event) { <-block })
	defer func() {
		close(block)
		s.Close()
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Publish(Event{Kind: DetectorFired})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked instead of dropping on a full buffer")
	}
}

func TestNopSinkDiscardsSilently(t *testing.T) {
	s := Nop()
	s.Publish(Event{Kind: BlockIssued})
	s.Close()
}
