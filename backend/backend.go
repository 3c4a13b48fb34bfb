// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package backend declares the two collaborators the admission pipeline
// hands a Passed session off to: a catalog of known backend servers, and
// a connector that performs the actual handoff. Neither is implemented
// here; the backend catalog/connector and their configuration are out of
// this module's scope, by design.
package backend

import (
	"context"

	"github.com/sentinelgate/admission/codec"
)

// Ref identifies one backend server the pipeline can hand a connection
// off to.
type Ref struct {
	Name    string
	Address string
}

// Catalog resolves backend names and routing policy. It is read-mostly
// and expected to be safe for concurrent use.
type Catalog interface {
	// Lookup returns the backend registered under name, if any.
	Lookup(name string) (Ref, bool)
	// AttemptConnectionOrder returns the names to try, in order, for a
	// connection with no forced host.
	AttemptConnectionOrder() []string
	// ForcedHosts returns the names a connection addressing virtualHost
	// must be routed to, trying each in order; empty means no override.
	ForcedHosts(virtualHost string) []string
}

// Connector performs the actual handoff of an admitted connection to a
// chosen backend.
type Connector interface {
	// Connect establishes the backend leg and splices it to conn. It
	// blocks until the splice is established or ctx is done.
	Connect(ctx context.Context, ref Ref, conn codec.Conn) error
}
