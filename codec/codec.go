// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package codec declares the wire boundary the admission pipeline
// depends on but never implements: a collaborator hands it decoded
// packets for an established connection handle, and the pipeline hands
// back outbound packets and disconnect requests through the same handle.
// The actual protocol codec (framing, compression, encryption) lives
// outside this module's scope.
package codec

import (
	"github.com/sentinelgate/admission/detector"
	"github.com/sentinelgate/admission/world"
)

// Kind discriminates the decoded packet families the pipeline routes on.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPosition
	KindRotation
	KindPositionAndRotation
	KindInteraction
	KindChat
	KindPluginMessage
	KindKeepAlive
)

// Packet is one decoded inbound packet, already stripped of its wire
// framing. Only the fields relevant to Kind are populated.
type Packet struct {
	Kind Kind
	Size int

	Position detector.PositionSample
	Rotation detector.RotationSample

	Interaction world.InteractionKind

	PluginChannel string
	PluginData    []byte

	ChatText string
}

// OutboundKind discriminates the packets the pipeline asks the codec
// collaborator to send back to the client.
type OutboundKind uint8

const (
	OutboundKeepAlive OutboundKind = iota
	OutboundDisconnect
	OutboundChatMessage
)

// Outbound is a packet the pipeline wants delivered to the client. The
// codec collaborator is responsible for framing and writing it.
type Outbound struct {
	Kind   OutboundKind
	Text   string
	NowUTC int64 // keep-alive correlation id, unix nanos
}

// Conn is the live, already-accepted connection handle the pipeline
// operates on. Codec/transport own its lifecycle; the pipeline only
// calls RemoteIP, VirtualHost, Username, and Close.
type Conn interface {
	// RemoteIP returns the dotted/hex textual form of the peer address,
	// already stripped of port.
	RemoteIP() string
	// VirtualHost returns the hostname the client addressed (the SNI / the
	// handshake's server-address field), or "" for a direct-IP connection.
	VirtualHost() string
	// Username returns the chosen username from the client's login-start
	// packet. Resolved before the pipeline's on_accept hook runs.
	Username() string
	// Send writes pkt to the client. Implementations should be
	// non-blocking from the pipeline's perspective or bound their own
	// write deadline.
	Send(pkt Outbound) error
	// Close disconnects the client, delivering reason as the visible
	// disconnect message where the protocol supports one.
	Close(reason string) error
}
