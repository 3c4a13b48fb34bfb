// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package ratelimit

import (
	"testing"
	"time"
)

func TestConnectionAdmitsUnderThreshold(t *testing.T) {
	l := New(Config{ConnWindow: time.Second, ConnMax: 2, ConnThrottle: time.Second})
	now := time.Now()

	if r := l.Connection("10.0.0.1", now); !r.Allowed {
		t.Fatalf("first connection should be admitted")
	}
	if r := l.Connection("10.0.0.1", now); !r.Allowed {
		t.Fatalf("second connection at threshold should be admitted")
	}
}

func TestConnectionRejectsOverThreshold(t *testing.T) {
	l := New(Config{ConnWindow: time.Second, ConnMax: 1, ConnThrottle: 250 * time.Millisecond})
	now := time.Now()

	if r := l.Connection("10.0.0.2", now); !r.Allowed {
		t.Fatalf("first connection should be admitted")
	}
	r := l.Connection("10.0.0.2", now)
	if r.Allowed {
		t.Fatalf("second connection over threshold should be rejected")
	}
	if r.ThrottleFor != 250*time.Millisecond {
		t.Fatalf("expected configured throttle duration, got %v", r.ThrottleFor)
	}
}

func TestPacketRateLimiting(t *testing.T) {
	l := New(Config{PacketWindow: time.Second, PacketMax: 1})

	if !l.Packet("10.0.0.3", time.Now()) {
		t.Fatalf("first packet should be admitted")
	}
	if l.Packet("10.0.0.3", time.Now()) {
		t.Fatalf("second packet within window should be rejected")
	}
}

func TestPacketSizeBound(t *testing.T) {
	l := New(Config{MaxPacketSize: 32767})

	if !l.PacketSize(32767) {
		t.Fatalf("size at the boundary should be accepted")
	}
	if l.PacketSize(32768) {
		t.Fatalf("size over the boundary should be rejected")
	}
}

func TestDisabledLimitersAdmitEverything(t *testing.T) {
	l := New(Config{})

	if !l.Connection("1.2.3.4", time.Now()).Allowed {
		t.Fatalf("zero ConnMax must disable the connection limiter")
	}
	if !l.Packet("1.2.3.4", time.Now()) {
		t.Fatalf("zero PacketMax must disable the packet limiter")
	}
	if !l.PacketSize(1 << 20) {
		t.Fatalf("zero MaxPacketSize must disable the size check")
	}
}
