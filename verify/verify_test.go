// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package verify

import (
	"testing"
	"time"

	"github.com/sentinelgate/admission/clock"
	"github.com/sentinelgate/admission/detector"
	"github.com/sentinelgate/admission/policy"
	"github.com/sentinelgate/admission/session"
	"github.com/sentinelgate/admission/world"
)

func newEngine() (*Engine, world.World, clock.Scheduler) {
	w := world.New(world.DefaultArena, 0, nil)
	sched := clock.NewScheduler(2)
	return New(clock.System, sched, w), w, sched
}

func TestEnterSpawnsIntoWorldAndSchedulesDeadline(t *testing.T) {
	e, w, sched := newEngine()
	defer sched.Stop()
	defer w.Close()

	sess := session.New("s1", "alice", "10.0.0.1", world.Spawn, time.Now())
	pol := policy.Default() // 15s deadline, long enough that the timer won't fire in this test

	e.Enter(sess, pol, func(*session.Session, Result) {})

	if sess.Phase() != session.PhaseInWorld {
		t.Fatalf("expected phase in_world, got %v", sess.Phase())
	}
}

func TestHumanSignalForcesPass(t *testing.T) {
	e, w, sched := newEngine()
	defer sched.Stop()
	defer w.Close()

	sess := session.New("s2", "alice", "10.0.0.1", world.Spawn, time.Now())
	pol := policy.Default()
	e.Enter(sess, pol, func(*session.Session, Result) {})

	res := e.HumanSignal(sess)
	if res == nil || res.Phase != session.PhasePassed {
		t.Fatalf("expected human signal to force a pass, got %+v", res)
	}
}

func TestEvaluatePassesOnSufficientScore(t *testing.T) {
	e, w, sched := newEngine()
	defer sched.Stop()
	defer w.Close()

	sess := session.New("s3", "alice", "10.0.0.1", world.Spawn, time.Now().Add(-10*time.Second))
	pol := policy.Default()
	pol.MinMovements = 1
	pol.MinDistance = 0.1
	pol.MinimumDwell = 0

	e.Enter(sess, pol, func(*session.Session, Result) {})

	sess.RecordMovement(detector.PositionSample{X: 5, Y: 64, Z: 0, At: time.Now()})
	sess.UpdateScore(func(s *session.Score) {
		s.AnyInteraction = true
		s.Jumped = true
		s.Crouched = true
	})

	jittery := []time.Duration{30 * time.Millisecond, 90 * time.Millisecond, 45 * time.Millisecond, 120 * time.Millisecond}
	res := e.Evaluate(sess, pol, time.Now(), jittery)
	if res == nil || res.Phase != session.PhasePassed {
		t.Fatalf("expected early pass, got %+v, score=%d", res, sess.Score().Total())
	}
}

func TestFailForcesTerminalFailed(t *testing.T) {
	e, w, sched := newEngine()
	defer sched.Stop()
	defer w.Close()

	sess := session.New("s4", "alice", "10.0.0.1", world.Spawn, time.Now())
	pol := policy.Default()
	e.Enter(sess, pol, func(*session.Session, Result) {})

	res := e.Fail(sess, "detector fatal")
	if res == nil || res.Phase != session.PhaseFailed {
		t.Fatalf("expected failed, got %+v", res)
	}

	// idempotent: a second Fail on an already-terminal session is a no-op.
	if e.Fail(sess, "again") != nil {
		t.Fatalf("expected second fail to be a no-op")
	}
}
