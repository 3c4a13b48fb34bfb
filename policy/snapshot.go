// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package policy holds the atomically-swapped Configuration Snapshot
// (C9). Readers call Current to obtain the snapshot currently in effect
// and may retain it for the duration of one operation; updates build a
// complete new Snapshot and swap it in so no partial update is ever
// observed.
package policy

import (
	"github.com/sentinelgate/admission/detector"
	"github.com/sentinelgate/admission/duration"
	"github.com/sentinelgate/admission/ratelimit"
)

// Snapshot is every recognized configuration option, enumerated in full:
// there is no partial snapshot. Load constructs one of these from
// scratch and Policy.Swap installs it atomically.
type Snapshot struct {
	Enabled bool

	KickOnFailure      bool
	KickThreshold      int
	KickMessage        string
	CheckOnlyFirstJoin bool

	VerificationDuration duration.Duration
	MinimumDwell         duration.Duration
	MinMovements         int
	MinDistance          float64
	PassThreshold        int

	GravityCheck bool
	YawCheck     bool
	// HitboxCheck and WorldCheck are parsed and carried for forward
	// compatibility but consulted by no detector: C4 defines no
	// hitbox-overlap or world-boundary rule, so these toggles are
	// currently inert.
	HitboxCheck          bool
	BrandCheck           bool
	WorldCheck           bool
	RateLimitCheck       bool
	UsernamePatternCheck bool
	DNSCheck             bool
	LatencyCheck         bool

	Username  UsernameSnapshot
	DNS       detector.DNSConfig
	RateLimit ratelimit.Config

	// ViolationBlockDuration is D2: how long an IP is fully blocked after a
	// protocol violation, packet-flood, or a fatal accept-time detector
	// verdict. Distinct from RateLimit.ConnThrottle, which only throttles
	// further connection attempts.
	ViolationBlockDuration duration.Duration

	AllowedBrands map[string]struct{}
	ExcludedIPs   map[string]struct{}
}

// UsernameSnapshot wraps detector.UsernameConfig; kept distinct so the
// policy package never needs an import cycle back from detector.
type UsernameSnapshot = detector.UsernameConfig

// Default returns the spec's documented defaults: verification off is
// never the default (enabled=true), 15s deadline, pass-threshold 7/15,
// 3s minimum dwell, the higher-security variant per the Open Questions
// resolution.
func Default() Snapshot {
	return Snapshot{
		Enabled: true,

		KickOnFailure:      true,
		KickThreshold:      5,
		KickMessage:        "Verification failed, please reconnect.",
		CheckOnlyFirstJoin: false,

		VerificationDuration: duration.Seconds(15),
		MinimumDwell:         duration.Seconds(3),
		MinMovements:         5,
		MinDistance:          1.5,
		PassThreshold:        7,

		GravityCheck:         true,
		YawCheck:             true,
		HitboxCheck:          true,
		BrandCheck:           true,
		WorldCheck:           true,
		RateLimitCheck:       true,
		UsernamePatternCheck: true,
		DNSCheck:             true,
		LatencyCheck:         true,

		Username: detector.DefaultUsernameConfig(),
		DNS: detector.DNSConfig{
			AllowDirectIP:  false,
			AllowedDomains: nil,
		},
		RateLimit: ratelimit.Config{
			ConnWindow:    duration.Seconds(5).Time(),
			ConnMax:       3,
			ConnThrottle:  duration.Seconds(30).Time(),
			PacketWindow:  duration.Seconds(1).Time(),
			PacketMax:     40,
			MaxPacketSize: 32767,
		},
		ViolationBlockDuration: duration.Minutes(10),

		AllowedBrands: map[string]struct{}{},
		ExcludedIPs:   map[string]struct{}{},
	}
}

// Excluded reports whether ip bypasses all checks.
func (s Snapshot) Excluded(ip string) bool {
	_, ok := s.ExcludedIPs[ip]
	return ok
}
