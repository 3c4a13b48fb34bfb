// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package world implements the synthetic single-room verification arena
// (C7): a transient stage every Pending session is spawned into. It holds
// no long-term data of its own; it keeps a weak reference into C6's
// Session for each occupant and forwards movement/interaction updates
// into it, evicting that reference the moment the session reaches a
// terminal phase.
package world

import (
	"sync"
	"time"

	"github.com/sentinelgate/admission/detector"
	"github.com/sentinelgate/admission/session"
)

// Spawn is the canonical, deterministic entry point for every session.
var Spawn = detector.PositionSample{X: 0, Y: 64, Z: 0}

// Arena bounds the playable region; it is informational for the current
// detectors (no detector currently rejects out-of-bounds movement) but is
// exposed so a future wall/ceiling check has somewhere to read from.
type Arena struct {
	HalfExtentX float64
	HalfExtentZ float64
}

// DefaultArena matches the spec's implicit "single room" sizing: generous
// enough that a genuine player's first few seconds of movement never hit
// a wall.
var DefaultArena = Arena{HalfExtentX: 16, HalfExtentZ: 16}

// InteractionKind enumerates the interaction signals the pipeline
// forwards from decoded packets.
type InteractionKind uint8

const (
	InteractionUnknown InteractionKind = iota
	InteractionUseItem
	InteractionAttack
	InteractionOpenContainer
	InteractionChat
	InteractionJump
	InteractionCrouch
	InteractionMouseLook
)

// KeepAliveFunc is called on the configured cadence for every occupant
// still in the world, so the pipeline can forward a keep-alive packet to
// the client and avoid an idle-timeout disconnect mid-verification.
type KeepAliveFunc func(sessionID string)

// World is the admission pipeline's verification-arena surface (C7).
type World interface {
	// Enter spawns sess at the canonical origin and begins tracking it.
	Enter(sess *session.Session)
	// UpdatePosition forwards a decoded movement update for sessionID. A
	// call for an unknown (already-evicted) session is a no-op.
	UpdatePosition(sessionID string, p detector.PositionSample)
	// UpdateRotation forwards a decoded look-rotation update.
	UpdateRotation(sessionID string, r detector.RotationSample)
	// Interact forwards an interaction signal.
	Interact(sessionID string, kind InteractionKind)
	// Rotations returns the occupant's recent rotation samples, for the
	// pipeline to evaluate the rotation detectors against.
	Rotations(sessionID string) []detector.RotationSample
	// Evict drops the world's reference to sessionID; it does not touch
	// the Session itself, which the verification engine still owns.
	Evict(sessionID string)
	// Close stops the keep-alive ticker.
	Close()
}

type occupant struct {
	sess      *session.Session
	rotations []detector.RotationSample
}

type world struct {
	arena Arena
	onTick KeepAliveFunc
	period time.Duration

	mu        sync.Mutex
	occupants map[string]*occupant

	stop chan struct{}
	done chan struct{}
}

// New returns a World presenting arena, invoking onTick for every live
// occupant every period. A nil onTick or a non-positive period disables
// the keep-alive ticker.
func New(arena Arena, period time.Duration, onTick KeepAliveFunc) World {
	w := &world{
		arena:     arena,
		onTick:    onTick,
		period:    period,
		occupants: make(map[string]*occupant),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if onTick != nil && period > 0 {
		go w.keepAliveLoop()
	} else {
		close(w.done)
	}
	return w
}

func (w *world) keepAliveLoop() {
	defer close(w.done)
	t := time.NewTicker(w.period)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.mu.Lock()
			ids := make([]string, 0, len(w.occupants))
			for id := range w.occupants {
				ids = append(ids, id)
			}
			w.mu.Unlock()
			for _, id := range ids {
				w.onTick(id)
			}
		}
	}
}

func (w *world) Enter(sess *session.Session) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.occupants[sess.ID()] = &occupant{sess: sess}
}

func (w *world) UpdatePosition(sessionID string, p detector.PositionSample) {
	w.mu.Lock()
	occ, ok := w.occupants[sessionID]
	w.mu.Unlock()
	if !ok {
		return
	}
	occ.sess.RecordMovement(p)
}

func (w *world) UpdateRotation(sessionID string, r detector.RotationSample) {
	w.mu.Lock()
	defer w.mu.Unlock()
	occ, ok := w.occupants[sessionID]
	if !ok {
		return
	}
	occ.rotations = append(occ.rotations, r)
	if len(occ.rotations) > 32 {
		occ.rotations = occ.rotations[len(occ.rotations)-32:]
	}
}

// Rotations returns the occupant's recent rotation samples, for the
// pipeline (C8) to evaluate the rotation detectors against.
func (w *world) Rotations(sessionID string) []detector.RotationSample {
	w.mu.Lock()
	defer w.mu.Unlock()
	occ, ok := w.occupants[sessionID]
	if !ok {
		return nil
	}
	out := make([]detector.RotationSample, len(occ.rotations))
	copy(out, occ.rotations)
	return out
}

func (w *world) Interact(sessionID string, kind InteractionKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	occ, ok := w.occupants[sessionID]
	if !ok {
		return
	}
	occ.sess.UpdateScore(func(s *session.Score) {
		s.AnyInteraction = true
		switch kind {
		case InteractionJump:
			s.Jumped = true
		case InteractionCrouch:
			s.Crouched = true
		case InteractionMouseLook:
			s.MouseLookObserved = true
		}
	})
}

func (w *world) Evict(sessionID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.occupants, sessionID)
}

func (w *world) Close() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	<-w.done
}
