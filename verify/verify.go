// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package verify implements the verification state machine (C6): Pending
// to InWorld to a terminal phase (Passed or Failed), composite scoring,
// and the deadline timer that forces an early-completion decision (late
// pass or timeout-failed) if the client never qualifies on its own.
package verify

import (
	"time"

	"github.com/sentinelgate/admission/clock"
	"github.com/sentinelgate/admission/detector"
	"github.com/sentinelgate/admission/policy"
	"github.com/sentinelgate/admission/session"
	"github.com/sentinelgate/admission/world"
)

// Result is the outcome handed back after a phase transition.
type Result struct {
	Phase  session.Phase
	Reason string

	// ViaDeadline is set when this Result came from the verification
	// deadline firing rather than an early-completion or override path,
	// so callers can still emit a distinct verification.timeout event
	// even though the resolved Phase is always Passed or Failed (spec
	// 4.6: "if >= pass-threshold, treat as Passed (late pass); else
	// Failed" — there is no separate terminal TimedOut phase).
	ViaDeadline bool
}

// Engine drives every session's state machine. It holds no per-session
// state of its own beyond what Session and World already track.
type Engine struct {
	clock clock.Clock
	sched clock.Scheduler
	world world.World
}

// New returns an Engine using c for "now" and sched for deadline timers.
func New(c clock.Clock, sched clock.Scheduler, w world.World) *Engine {
	return &Engine{clock: c, sched: sched, world: w}
}

// Enter transitions sess Pending -> InWorld, spawns it into the arena,
// and schedules the verification deadline. onTimeout is invoked exactly
// once, from a scheduler worker, if the session is still non-terminal
// when the deadline fires.
func (e *Engine) Enter(sess *session.Session, pol policy.Snapshot, onTimeout func(*session.Session, Result)) {
	if !sess.Transition(session.PhaseInWorld) {
		return
	}
	e.world.Enter(sess)

	handle := e.sched.After(pol.VerificationDuration.Time(), func() {
		result := e.finalize(sess, pol, e.clock.Now())
		if sess.Transition(result.Phase) {
			onTimeout(sess, result)
		}
	})
	sess.SetTimeoutHandle(handle)
}

// Evaluate recomputes the derived score components from the session's
// current counters and checks the InWorld -> Passed early-completion
// condition. It is called by the pipeline after every movement,
// rotation, or interaction update. A nil *Result return means the
// session stays InWorld.
func (e *Engine) Evaluate(sess *session.Session, pol policy.Snapshot, now time.Time, timingDeltas []time.Duration) *Result {
	if sess.Phase() != session.PhaseInWorld {
		return nil
	}

	e.updateDerivedScore(sess, pol, timingDeltas)

	if !e.meetsDwellAndActivity(sess, pol, now) {
		return nil
	}
	if sess.Score().Total() < pol.PassThreshold {
		return nil
	}

	if sess.Transition(session.PhasePassed) {
		return &Result{Phase: session.PhasePassed, Reason: "score threshold met"}
	}
	return nil
}

// HumanSignal implements the chat-message override: any chat traffic
// during InWorld is treated as conclusive proof of a human operator and
// passes the session immediately, regardless of its remaining score.
func (e *Engine) HumanSignal(sess *session.Session) *Result {
	if sess.Phase() != session.PhaseInWorld {
		return nil
	}
	if sess.Transition(session.PhasePassed) {
		return &Result{Phase: session.PhasePassed, Reason: "human signal observed"}
	}
	return nil
}

// Fail forces a non-terminal session straight to Failed, used when a
// detector reports a fatal verdict.
func (e *Engine) Fail(sess *session.Session, reason string) *Result {
	if sess.Transition(session.PhaseFailed) {
		return &Result{Phase: session.PhaseFailed, Reason: reason}
	}
	return nil
}

// Disconnected implements the mid-verification-disconnect resolution:
// emit Failed with reason "disconnected" so the registry and event sink
// can release their references deterministically.
func (e *Engine) Disconnected(sess *session.Session) *Result {
	if sess.Transition(session.PhaseFailed) {
		return &Result{Phase: session.PhaseFailed, Reason: "disconnected"}
	}
	return nil
}

// finalize implements the deadline-fire evaluation spec.md 4.6 describes:
// the same composite score decides Passed or Failed, never a distinct
// terminal TimedOut phase — scenario 4 in spec.md 8 is explicit that a
// low-scoring session hitting its deadline is a Failed verdict, subject
// to the same kick_on_failure/quarantine handling as any other Failed.
func (e *Engine) finalize(sess *session.Session, pol policy.Snapshot, now time.Time) Result {
	if sess.Score().Total() >= pol.PassThreshold {
		return Result{Phase: session.PhasePassed, Reason: "late pass at deadline", ViaDeadline: true}
	}
	return Result{Phase: session.PhaseFailed, Reason: "verification deadline elapsed", ViaDeadline: true}
}

func (e *Engine) updateDerivedScore(sess *session.Session, pol policy.Snapshot, timingDeltas []time.Duration) {
	movements := sess.MovementCount() >= pol.MinMovements
	distance := sess.Distance() >= pol.MinDistance
	complexMovement := sess.DirectionChanges() >= 5
	natural := !detector.PacketTiming(timingDeltas).Suspicious

	sess.UpdateScore(func(s *session.Score) {
		s.EnoughMovements = movements
		s.EnoughDistance = distance
		s.ComplexMovement = complexMovement
		s.NaturalTiming = natural
	})
}

func (e *Engine) meetsDwellAndActivity(sess *session.Session, pol policy.Snapshot, now time.Time) bool {
	if sess.MovementCount() < pol.MinMovements {
		return false
	}
	if sess.Distance() < pol.MinDistance {
		return false
	}
	if sess.Elapsed(now) < pol.MinimumDwell.Time() {
		return false
	}
	score := sess.Score()
	return score.AnyInteraction || score.Jumped || score.Crouched || score.MouseLookObserved
}
