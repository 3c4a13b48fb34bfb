// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package registry tracks live and recently-seen per-IP connection state:
// active-connection counts, block entries, and the janitor sweep that
// reclaims idle records. It never persists anything to disk; a proxy
// restart starts every IP back at zero, by design.
package registry

import (
	"sync"
	"time"

	atm "github.com/sentinelgate/admission/atomic"
)

// RegistrationID is the token record_connection hands back; release must
// present it to close out the registration it opened.
type RegistrationID uint64

// BlockEntry records why and until-when an IP is blocked.
type BlockEntry struct {
	Reason string
	Since  time.Time
	Until  time.Time
}

type ipRecord struct {
	mu        sync.Mutex
	active    int
	lastSeen  time.Time
	block     *BlockEntry
	throttled time.Time // zero means not throttled
	nextRegID uint64
}

// Registry is the admission pipeline's per-IP bookkeeping surface (C2).
// Operations are mutually exclusive per IP key; distinct IPs never
// contend with each other.
type Registry interface {
	// RecordConnection registers a new connection attempt from ip/username
	// against virtualHost, returning a token for the matching Release call.
	RecordConnection(ip, username, virtualHost string, now time.Time) RegistrationID
	// Release closes out a registration opened by RecordConnection by
	// decrementing ip's active count, never below zero. An ip with no
	// record is a no-op. id is not checked against open registrations:
	// releasing the same id twice decrements twice.
	Release(ip string, id RegistrationID, now time.Time)
	// IsBlocked reports whether ip currently has an unexpired BlockEntry.
	IsBlocked(ip string, now time.Time) bool
	// Block creates or overwrites ip's BlockEntry and zeroes its active
	// count, so further reconnect attempts are rejected at IsBlocked.
	Block(ip, reason string, duration time.Duration, now time.Time)
	// Throttle marks ip as refusing new admissions until now+duration. It
	// is the lighter rejection a connection-rate-limit trip produces
	// (spec.md 4.3.1): unlike Block it creates no BlockEntry and never
	// touches the IP's active-connection count, since the connections it
	// already admitted stay live.
	Throttle(ip string, duration time.Duration, now time.Time)
	// IsThrottled reports whether ip currently has an unexpired throttle.
	IsThrottled(ip string, now time.Time) bool
	// Sweep removes expired BlockEntries and idle IP records, returning the
	// IPs whose block just expired so a caller can emit a block.expired
	// event. Safe to call concurrently with every other method; internally
	// serialized.
	Sweep(now time.Time, idleThreshold time.Duration) []string
}

type registry struct {
	sweepMu sync.Mutex
	ips     atm.Map[string]
}

// New returns an empty Registry.
func New() Registry {
	return &registry{ips: atm.NewMap[string]()}
}

func (r *registry) recordFor(ip string) *ipRecord {
	rec, _ := r.ips.LoadOrStore(ip, &ipRecord{})
	return rec.(*ipRecord)
}

func (r *registry) RecordConnection(ip, username, virtualHost string, now time.Time) RegistrationID {
	rec := r.recordFor(ip)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.active++
	rec.lastSeen = now
	rec.nextRegID++
	return RegistrationID(rec.nextRegID)
}

func (r *registry) Release(ip string, id RegistrationID, now time.Time) {
	v, ok := r.ips.Load(ip)
	if !ok {
		return
	}
	rec := v.(*ipRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.active > 0 {
		rec.active--
	}
	rec.lastSeen = now
}

func (r *registry) IsBlocked(ip string, now time.Time) bool {
	v, ok := r.ips.Load(ip)
	if !ok {
		return false
	}
	rec := v.(*ipRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	return rec.block != nil && rec.block.Until.After(now)
}

func (r *registry) Block(ip, reason string, duration time.Duration, now time.Time) {
	rec := r.recordFor(ip)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.block = &BlockEntry{Reason: reason, Since: now, Until: now.Add(duration)}
	rec.active = 0
	rec.lastSeen = now
}

func (r *registry) Throttle(ip string, duration time.Duration, now time.Time) {
	rec := r.recordFor(ip)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.throttled = now.Add(duration)
	rec.lastSeen = now
}

func (r *registry) IsThrottled(ip string, now time.Time) bool {
	v, ok := r.ips.Load(ip)
	if !ok {
		return false
	}
	rec := v.(*ipRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	return !rec.throttled.IsZero() && rec.throttled.After(now)
}

func (r *registry) Sweep(now time.Time, idleThreshold time.Duration) []string {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	var drop, expired []string
	r.ips.Range(func(ip string, value any) bool {
		rec := value.(*ipRecord)
		rec.mu.Lock()
		if rec.block != nil && !rec.block.Until.After(now) {
			rec.block = nil
			expired = append(expired, ip)
		}
		if !rec.throttled.IsZero() && !rec.throttled.After(now) {
			rec.throttled = time.Time{}
		}
		idle := rec.active == 0 && now.Sub(rec.lastSeen) >= idleThreshold && rec.block == nil && rec.throttled.IsZero()
		rec.mu.Unlock()

		if idle {
			drop = append(drop, ip)
		}
		return true
	})

	for _, ip := range drop {
		r.ips.Delete(ip)
	}
	return expired
}
