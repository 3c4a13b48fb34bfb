// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sentinelgate/admission/backend"
	"github.com/sentinelgate/admission/clock"
	"github.com/sentinelgate/admission/codec"
	"github.com/sentinelgate/admission/errs"
	"github.com/sentinelgate/admission/event"
	"github.com/sentinelgate/admission/policy"
	"github.com/sentinelgate/admission/registry"
	"github.com/sentinelgate/admission/world"
)

type fakeConn struct {
	ip       string
	vhost    string
	username string

	mu          sync.Mutex
	closed      bool
	closeReason string
	sent        []codec.Outbound
}

func (c *fakeConn) RemoteIP() string     { return c.ip }
func (c *fakeConn) VirtualHost() string  { return c.vhost }
func (c *fakeConn) Username() string     { return c.username }
func (c *fakeConn) Send(p codec.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, p)
	return nil
}
func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeReason = reason
	return nil
}
func (c *fakeConn) isClosed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeReason
}

type fakeCatalog struct {
	refs  map[string]backend.Ref
	order []string
}

func (c *fakeCatalog) Lookup(name string) (backend.Ref, bool) { r, ok := c.refs[name]; return r, ok }
func (c *fakeCatalog) AttemptConnectionOrder() []string       { return c.order }
func (c *fakeCatalog) ForcedHosts(string) []string            { return nil }

type fakeConnector struct {
	mu        sync.Mutex
	connected []backend.Ref
	fail      bool
}

func (c *fakeConnector) Connect(ctx context.Context, ref backend.Ref, conn codec.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errs.New(errs.BackendUnavailable, "simulated failure")
	}
	c.connected = append(c.connected, ref)
	return nil
}

type captureSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *captureSink) Publish(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}
func (s *captureSink) Close() {}

func (s *captureSink) has(kind event.Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func newTestPipeline(t *testing.T, pol policy.Snapshot) (*Pipeline, *captureSink, *fakeCatalog, *fakeConnector) {
	t.Helper()
	w := world.New(world.DefaultArena, 0, nil)
	sched := clock.NewScheduler(2)
	sink := &captureSink{}
	cat := &fakeCatalog{
		refs:  map[string]backend.Ref{"lobby": {Name: "lobby", Address: "127.0.0.1:25566"}},
		order: []string{"lobby"},
	}
	connr := &fakeConnector{}

	p := New(Config{
		Clock:     clock.System,
		Scheduler: sched,
		Policy:    policy.New(pol),
		Registry:  registry.New(),
		World:     w,
		Sink:      sink,
		Catalog:   cat,
		Connector: connr,
	})

	t.Cleanup(func() {
		sched.Stop()
		w.Close()
	})
	return p, sink, cat, connr
}

func testPolicy() policy.Snapshot {
	pol := policy.Default()
	pol.DNSCheck = false // no real resolver wired in tests
	return pol
}

func TestOnAcceptAdmitsAndStartsVerification(t *testing.T) {
	p, sink, _, _ := newTestPipeline(t, testPolicy())
	conn := &fakeConn{ip: "10.0.0.1", username: "alice", vhost: "play.example.com"}

	if err := p.OnAccept(context.Background(), conn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sink.has(event.ConnectionAccepted) {
		t.Fatalf("expected connection.accepted event")
	}
	if !sink.has(event.VerificationStarted) {
		t.Fatalf("expected verification.started event")
	}
	if closed, _ := conn.isClosed(); closed {
		t.Fatalf("expected connection to remain open")
	}
}

func TestOnAcceptRejectsBlockedIP(t *testing.T) {
	pol := testPolicy()
	p, sink, _, _ := newTestPipeline(t, pol)

	// a fatal username verdict blocks the ip outright; a second connection
	// attempt from the same ip must then be rejected at is_blocked, before
	// any detector runs again.
	botConn := &fakeConn{ip: "10.0.0.2", username: "bot"}
	err := p.OnAccept(context.Background(), botConn)
	if err == nil || errs.GetCode(err) != errs.PolicyViolation {
		t.Fatalf("expected a policy-violation rejection, got %v", err)
	}
	if !sink.has(event.BlockIssued) {
		t.Fatalf("expected block.issued event")
	}

	retry := &fakeConn{ip: "10.0.0.2", username: "alice"}
	err = p.OnAccept(context.Background(), retry)
	if err == nil || errs.GetCode(err) != errs.PolicyViolation {
		t.Fatalf("expected the now-blocked ip to be rejected, got %v", err)
	}
}

func TestOnAcceptRejectsFatalUsernameDetector(t *testing.T) {
	p, sink, _, _ := newTestPipeline(t, testPolicy())
	conn := &fakeConn{ip: "10.0.0.3", username: "bot"}

	err := p.OnAccept(context.Background(), conn)
	if err == nil || errs.GetCode(err) != errs.PolicyViolation {
		t.Fatalf("expected policy violation for bot-like username, got %v", err)
	}
	if !sink.has(event.ConnectionRejected) {
		t.Fatalf("expected connection.rejected event")
	}
}

func TestOnPacketChatForcesPassAndHandsOff(t *testing.T) {
	p, sink, _, connr := newTestPipeline(t, testPolicy())
	conn := &fakeConn{ip: "10.0.0.4", username: "alice"}

	if err := p.OnAccept(context.Background(), conn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.OnPacket(context.Background(), conn, codec.Packet{Kind: codec.KindChat, Size: 12}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !sink.has(event.VerificationPassed) {
		t.Fatalf("expected verification.passed event")
	}
	if !sink.has(event.TransferComplete) {
		t.Fatalf("expected transfer.complete event")
	}
	connr.mu.Lock()
	n := len(connr.connected)
	connr.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected exactly one backend handoff, got %d", n)
	}
	if closed, _ := conn.isClosed(); closed {
		t.Fatalf("a successful handoff must not close the connection")
	}
}

func TestOnAcceptThrottlesWithoutBlockingOrDroppingActiveConnections(t *testing.T) {
	pol := testPolicy()
	pol.RateLimit.ConnMax = 1
	pol.RateLimit.ConnWindow = time.Minute
	pol.RateLimit.ConnThrottle = time.Minute
	p, sink, _, _ := newTestPipeline(t, pol)

	first := &fakeConn{ip: "10.0.0.8", username: "alice"}
	if err := p.OnAccept(context.Background(), first); err != nil {
		t.Fatalf("unexpected error admitting first connection: %v", err)
	}

	second := &fakeConn{ip: "10.0.0.8", username: "bob"}
	err := p.OnAccept(context.Background(), second)
	if err == nil || errs.GetCode(err) != errs.PolicyViolation {
		t.Fatalf("expected the rate-limited second connection to be rejected, got %v", err)
	}
	if sink.has(event.BlockIssued) {
		t.Fatalf("a connection-rate throttle must not issue a full block")
	}

	// the third attempt, while still throttled, must also be rejected —
	// but the first connection's stats entry must still be intact.
	third := &fakeConn{ip: "10.0.0.8", username: "carol"}
	err = p.OnAccept(context.Background(), third)
	if err == nil || errs.GetCode(err) != errs.PolicyViolation {
		t.Fatalf("expected the still-throttled ip to be rejected, got %v", err)
	}
	if p.Stats().ActiveConnections != 1 {
		t.Fatalf("expected the first connection to remain active through the throttle, got %d", p.Stats().ActiveConnections)
	}
}

func TestOnPacketOversizeBlocksAndFailsSession(t *testing.T) {
	pol := testPolicy()
	pol.RateLimit.MaxPacketSize = 16
	p, sink, _, _ := newTestPipeline(t, pol)
	conn := &fakeConn{ip: "10.0.0.5", username: "alice"}

	if err := p.OnAccept(context.Background(), conn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := p.OnPacket(context.Background(), conn, codec.Packet{Kind: codec.KindPosition, Size: 9999})
	if err == nil || errs.GetCode(err) != errs.ProtocolViolation {
		t.Fatalf("expected protocol violation, got %v", err)
	}
	if !sink.has(event.VerificationFailed) {
		t.Fatalf("expected verification.failed event")
	}
	if !sink.has(event.BlockIssued) {
		t.Fatalf("expected the oversize packet to issue an ip block")
	}
	if closed, reason := conn.isClosed(); !closed || reason != pol.KickMessage {
		t.Fatalf("expected kick-on-failure to close with the configured message, got closed=%v reason=%q", closed, reason)
	}
}

func TestOnCloseReleasesAndRecordsDisconnect(t *testing.T) {
	p, sink, _, _ := newTestPipeline(t, testPolicy())
	conn := &fakeConn{ip: "10.0.0.6", username: "alice"}

	if err := p.OnAccept(context.Background(), conn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.OnClose(conn)

	if !sink.has(event.VerificationFailed) {
		t.Fatalf("expected a mid-verification disconnect to record verification.failed")
	}

	// OnPacket after close is routed to an unknown connection.
	err := p.OnPacket(context.Background(), conn, codec.Packet{Kind: codec.KindKeepAlive})
	if err == nil || errs.GetCode(err) != errs.ProtocolViolation {
		t.Fatalf("expected packet for a closed connection to be rejected, got %v", err)
	}
}

func TestCheckOnlyFirstJoinFastTracksReturningFingerprint(t *testing.T) {
	pol := testPolicy()
	pol.CheckOnlyFirstJoin = true
	p, sink, _, _ := newTestPipeline(t, pol)

	first := &fakeConn{ip: "10.0.0.7", username: "alice"}
	if err := p.OnAccept(context.Background(), first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.OnPacket(context.Background(), first, codec.Packet{Kind: codec.KindChat}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sink.has(event.VerificationPassed) {
		t.Fatalf("expected the first connection to pass via chat")
	}
	p.OnClose(first)

	second := &fakeConn{ip: "10.0.0.7", username: "alice"}
	if err := p.OnAccept(context.Background(), second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		passes := 0
		for _, e := range sink.events {
			if e.Kind == event.VerificationPassed {
				passes++
			}
		}
		sink.mu.Unlock()
		if passes >= 2 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected the returning fingerprint to fast-track to a second pass")
}
