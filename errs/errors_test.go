// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package errs

import (
	"errors"
	"testing"
)

func TestHasCode(t *testing.T) {
	base := New(ProtocolViolation, "oversize packet")
	wrapped := errors.Join(base)

	if !HasCode(wrapped, ProtocolViolation) {
		t.Fatalf("expected wrapped error to carry ProtocolViolation")
	}
	if HasCode(wrapped, BackendUnavailable) {
		t.Fatalf("did not expect BackendUnavailable")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(ResourceExhaustion, "queue full")
	b := New(ResourceExhaustion, "different message, same code")

	if !errors.Is(a, b) {
		t.Fatalf("expected errors with the same code to match via errors.Is")
	}
}

func TestWithParent(t *testing.T) {
	parent := errors.New("dial tcp: timeout")
	err := New(BackendUnavailable, "handoff failed").WithParent(parent)

	if errors.Unwrap(err) != parent {
		t.Fatalf("expected Unwrap to return parent")
	}
}
