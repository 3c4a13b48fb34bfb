// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package ratelimit implements the three logically distinct limiters that
// gate admission and in-flight traffic: connection-per-IP, packet-per-IP,
// and packet-size. The first two share the same sliding-window algorithm,
// provided by catrate; the third is a plain bound check.
package ratelimit

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// ConnResult is the verdict for one connection admission attempt.
type ConnResult struct {
	Allowed bool
	// ThrottleFor is how long further connection attempts from this IP
	// should be rejected, when Allowed is false. Zero means "try again
	// whenever"; the caller applies this via registry.Registry.Throttle,
	// not registry.Registry.Block — a rate-limit reject is a throttle,
	// never a full block.
	ThrottleFor time.Duration
}

// Config holds the three limiters' thresholds, reloadable at runtime by
// swapping out the whole Limiter (limiters hold no config mutation API of
// their own, matching catrate.Limiter's own immutable-after-construction
// design).
type Config struct {
	// ConnWindow/ConnMax: W1/N1 — admit iff fewer than ConnMax connection
	// starts occurred in the trailing ConnWindow.
	ConnWindow time.Duration
	ConnMax    int
	// ConnThrottle: T1 — how long a rejected IP is throttled.
	ConnThrottle time.Duration

	// PacketWindow/PacketMax: W2/N2, fixed at 1s by the spec but kept
	// configurable for tests.
	PacketWindow time.Duration
	PacketMax    int

	// MaxPacketSize: S_max. Packets larger than this are rejected
	// outright; zero disables the check.
	MaxPacketSize int
}

// Limiter is the admission pipeline's rate-limiting surface (C3).
type Limiter interface {
	// Connection evaluates a new connection attempt from ip. Ties at the
	// threshold boundary are admitted (<=, not <).
	Connection(ip string, now time.Time) ConnResult
	// Packet evaluates one packet from ip against the packet-per-second
	// window. False means the packet-flood threshold was exceeded.
	Packet(ip string, now time.Time) bool
	// PacketSize reports whether size is within the configured bound.
	PacketSize(size int) bool
}

type limiter struct {
	cfg  Config
	conn *catrate.Limiter
	pkt  *catrate.Limiter
}

// New constructs a Limiter from cfg. ConnMax or PacketMax of zero disables
// that limiter (every request is admitted).
func New(cfg Config) Limiter {
	l := &limiter{cfg: cfg}
	if cfg.ConnMax > 0 && cfg.ConnWindow > 0 {
		l.conn = catrate.NewLimiter(map[time.Duration]int{cfg.ConnWindow: cfg.ConnMax})
	}
	if cfg.PacketMax > 0 && cfg.PacketWindow > 0 {
		l.pkt = catrate.NewLimiter(map[time.Duration]int{cfg.PacketWindow: cfg.PacketMax})
	}
	return l
}

func (l *limiter) Connection(ip string, now time.Time) ConnResult {
	if l.conn == nil {
		return ConnResult{Allowed: true}
	}
	_, ok := l.conn.Allow(ip)
	if ok {
		return ConnResult{Allowed: true}
	}
	return ConnResult{Allowed: false, ThrottleFor: l.cfg.ConnThrottle}
}

func (l *limiter) Packet(ip string, now time.Time) bool {
	if l.pkt == nil {
		return true
	}
	_, ok := l.pkt.Allow(ip)
	return ok
}

func (l *limiter) PacketSize(size int) bool {
	if l.cfg.MaxPacketSize <= 0 {
		return true
	}
	return size <= l.cfg.MaxPacketSize
}
