// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package world

import (
	"testing"
	"time"

	"github.com/sentinelgate/admission/detector"
	"github.com/sentinelgate/admission/session"
)

func TestEnterAndUpdatePosition(t *testing.T) {
	w := New(DefaultArena, 0, nil)
	defer w.Close()

	sess := session.New("sess-1", "alice", "10.0.0.1", Spawn, time.Now())
	w.Enter(sess)

	w.UpdatePosition("sess-1", detector.PositionSample{X: 3, Y: 64, Z: 0, At: time.Now()})
	if sess.Distance() <= 0 {
		t.Fatalf("expected the session to observe the forwarded movement")
	}
}

func TestUpdateUnknownSessionIsNoOp(t *testing.T) {
	w := New(DefaultArena, 0, nil)
	defer w.Close()
	w.UpdatePosition("ghost", detector.PositionSample{X: 1, At: time.Now()})
}

func TestInteractMarksAnyInteraction(t *testing.T) {
	w := New(DefaultArena, 0, nil)
	defer w.Close()

	sess := session.New("sess-2", "alice", "10.0.0.1", Spawn, time.Now())
	w.Enter(sess)
	w.Interact("sess-2", InteractionUseItem)

	if !sess.Score().AnyInteraction {
		t.Fatalf("expected AnyInteraction to be set")
	}
}

func TestEvictDropsReference(t *testing.T) {
	w := New(DefaultArena, 0, nil)
	defer w.Close()

	sess := session.New("sess-3", "alice", "10.0.0.1", Spawn, time.Now())
	w.Enter(sess)
	w.Evict("sess-3")

	w.UpdatePosition("sess-3", detector.PositionSample{X: 5, At: time.Now()})
	if sess.Distance() != 0 {
		t.Fatalf("expected evicted session to no longer receive updates")
	}
}

func TestKeepAliveFiresForOccupants(t *testing.T) {
	seen := make(chan string, 4)
	w := New(DefaultArena, 10*time.Millisecond, func(id string) { seen <- id })
	defer w.Close()

	sess := session.New("sess-4", "alice", "10.0.0.1", Spawn, time.Now())
	w.Enter(sess)

	select {
	case id := <-seen:
		if id != "sess-4" {
			t.Fatalf("expected keep-alive for sess-4, got %s", id)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected a keep-alive tick")
	}
}
