// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package pipeline implements the admission pipeline (C8): the three
// entry points a connection's I/O task calls into — on_accept, on_packet,
// on_close — composing the connection registry (C2), rate limiter (C3),
// detectors (C4), session (C5), verification engine (C6), virtual world
// (C7), configuration snapshot (C9), and event sink (C10) behind a single
// per-connection handler task.
package pipeline

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	atm "github.com/sentinelgate/admission/atomic"
	"github.com/sentinelgate/admission/backend"
	"github.com/sentinelgate/admission/clock"
	"github.com/sentinelgate/admission/codec"
	"github.com/sentinelgate/admission/detector"
	"github.com/sentinelgate/admission/errs"
	"github.com/sentinelgate/admission/event"
	"github.com/sentinelgate/admission/logging"
	"github.com/sentinelgate/admission/policy"
	"github.com/sentinelgate/admission/ratelimit"
	"github.com/sentinelgate/admission/registry"
	"github.com/sentinelgate/admission/session"
	"github.com/sentinelgate/admission/verify"
	"github.com/sentinelgate/admission/world"
)

// timingWindow bounds how many inter-packet deltas are retained per
// connection for the packet-timing detector; the detector only ever
// looks at the trailing handful of samples.
const timingWindow = 8

// gravityWindow bounds how many recent position samples are handed to the
// gravity detector, which needs at least 5 to evaluate a fall arc at all.
const gravityWindow = 12

// Pipeline composes every admission-pipeline component behind the three
// entry points a connection's I/O task calls. It holds no lock shared
// across connections beyond what registry, ratelimit, and the policy
// snapshot already stripe internally.
type Pipeline struct {
	clock clock.Clock
	pol   *policy.Policy

	registry registry.Registry
	verify   *verify.Engine
	world    world.World
	sink     event.Sink
	log      logging.Logger

	catalog   backend.Catalog
	connector backend.Connector

	counters *detector.PatternCounters
	resolver detector.Resolver // optional; nil disables PTR enrichment

	// ingress bounds total accept throughput independent of any single
	// IP's bucket, a coarse backstop against a distributed swarm that
	// never trips any one IP's connection-rate window.
	ingress *rate.Limiter

	rlCfg atm.Value[ratelimit.Config]
	rl    atm.Value[ratelimit.Limiter]

	// passed caches "ip|username" fingerprints that have already reached
	// Passed once, so check_only_first_join can fast-track a returning
	// player without re-running the verification world.
	passed *lru.Cache

	conns atm.Map[codec.Conn]
}

type connState struct {
	mu sync.Mutex

	sessionID string
	ip        string
	username  string
	regID     registry.RegistrationID

	sess *session.Session

	lastPacketAt time.Time
	hasLast      bool
	timingDeltas []time.Duration

	quarantined bool
}

// Config is the set of collaborators and tunables that do not belong in
// the reloadable policy Snapshot: wiring, not policy.
type Config struct {
	Clock     clock.Clock
	Scheduler clock.Scheduler
	Policy    *policy.Policy
	Registry  registry.Registry
	World     world.World
	Sink      event.Sink
	Log       logging.Logger
	Catalog   backend.Catalog
	Connector backend.Connector
	Resolver  detector.Resolver // optional

	// PatternCacheSize bounds the username pattern-counter LRU; 0 uses the
	// detector package's default.
	PatternCacheSize int
	// FingerprintCacheSize bounds the returning-player fast-track cache;
	// 0 uses a 16384-entry default.
	FingerprintCacheSize int
	// GlobalAcceptsPerSecond bounds total connection acceptance throughput
	// across every IP combined, a coarse second line of defense behind the
	// per-IP connection-rate limiter. 0 disables it.
	GlobalAcceptsPerSecond int
}

// New wires the collaborators in cfg into a Pipeline. Every field of cfg
// except the optional ones must be non-nil.
func New(cfg Config) *Pipeline {
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}
	if cfg.Sink == nil {
		cfg.Sink = event.Nop()
	}
	if cfg.Log == nil {
		cfg.Log = logging.Nop()
	}

	fpSize := cfg.FingerprintCacheSize
	if fpSize <= 0 {
		fpSize = 16384
	}
	passed, err := lru.New(fpSize)
	if err != nil {
		panic(err)
	}

	var ingress *rate.Limiter
	if cfg.GlobalAcceptsPerSecond > 0 {
		ingress = rate.NewLimiter(rate.Limit(cfg.GlobalAcceptsPerSecond), cfg.GlobalAcceptsPerSecond)
	}

	p := &Pipeline{
		clock:     cfg.Clock,
		pol:       cfg.Policy,
		registry:  cfg.Registry,
		verify:    verify.New(cfg.Clock, cfg.Scheduler, cfg.World),
		world:     cfg.World,
		sink:      cfg.Sink,
		log:       cfg.Log,
		catalog:   cfg.Catalog,
		connector: cfg.Connector,
		counters:  detector.NewPatternCounters(cfg.PatternCacheSize),
		resolver:  cfg.Resolver,
		ingress:   ingress,
		passed:    passed,
		conns:     atm.NewMap[codec.Conn](),
	}
	initial := cfg.Policy.Current()
	p.rlCfg.Store(initial.RateLimit)
	p.rl.Store(ratelimit.New(initial.RateLimit))
	return p
}

// limiterFor returns the Limiter matching cfg, rebuilding it (and its
// internal sliding-window state) only when the reloadable rate-limit
// config actually changed since the last call.
func (p *Pipeline) limiterFor(cfg ratelimit.Config) ratelimit.Limiter {
	if p.rlCfg.Load() == cfg {
		return p.rl.Load()
	}
	l := ratelimit.New(cfg)
	p.rlCfg.Store(cfg)
	p.rl.Store(l)
	return l
}

func fingerprintKey(ip, username string) string {
	return ip + "|" + username
}

// OnAccept runs the accept-time admission checks and, if the connection
// is let through, creates its Session and enters it into the
// verification world. A non-nil error means conn has already been (or
// should be) closed by the caller; OnAccept never closes conn itself so
// callers keep a single code path for tearing down the socket.
func (p *Pipeline) OnAccept(ctx context.Context, conn codec.Conn) error {
	now := p.clock.Now()
	ip := conn.RemoteIP()
	pol := p.pol.Current()

	if pol.Excluded(ip) {
		return p.admit(conn, pol, ip, conn.Username(), now, true)
	}
	if !pol.Enabled {
		return p.admit(conn, pol, ip, conn.Username(), now, true)
	}

	if p.ingress != nil && !p.ingress.Allow() {
		p.publish(event.ConnectionRejected, "", ip, "global accept rate exceeded")
		return errs.New(errs.ResourceExhaustion, "global accept rate exceeded")
	}

	if p.registry.IsBlocked(ip, now) {
		p.publish(event.ConnectionRejected, "", ip, "ip currently blocked")
		return errs.New(errs.PolicyViolation, "ip currently blocked")
	}

	if p.registry.IsThrottled(ip, now) {
		p.publish(event.ConnectionRejected, "", ip, "connection throttled")
		return errs.New(errs.PolicyViolation, "connection throttled")
	}

	if pol.RateLimitCheck {
		res := p.limiterFor(pol.RateLimit).Connection(ip, now)
		if !res.Allowed {
			p.registry.Throttle(ip, res.ThrottleFor, now)
			p.publish(event.ConnectionRejected, "", ip, "connection rate exceeded")
			return errs.New(errs.PolicyViolation, "connection rate exceeded")
		}
	}

	username := conn.Username()
	virtualHost := conn.VirtualHost()
	direct := virtualHost == ""

	if v := p.runAcceptDetectors(pol, direct, virtualHost, username); v.Fatal {
		p.blockIP(ip, v.Reason, pol.ViolationBlockDuration.Time(), now)
		p.publish(event.ConnectionRejected, "", ip, v.Reason)
		return errs.New(errs.PolicyViolation, v.Reason)
	}

	if p.resolver != nil {
		go p.enrichPTR(ip, username)
	}

	return p.admit(conn, pol, ip, username, now, false)
}

// enrichPTR attaches a reverse-DNS hostname to the operator log for
// ip/username, purely for fingerprinting visibility; it never affects an
// admission decision and runs off the connection's own task.
func (p *Pipeline) enrichPTR(ip, username string) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return
	}
	host := p.resolver.PTR(parsed)
	if host == "" {
		return
	}
	p.log.Debug("reverse-dns enrichment", logging.Fields{
		"peer_ip": ip, "username": username, "ptr": host,
	})
}

// runAcceptDetectors evaluates the username-morphology and DNS/domain
// detectors concurrently: both are pure functions of already-available
// inputs with no shared mutable state (the morphology detector's pattern
// counters are themselves concurrency-safe), so fanning them out costs
// nothing beyond the username detector's regex work overlapping the DNS
// detector's string compare.
func (p *Pipeline) runAcceptDetectors(pol policy.Snapshot, direct bool, virtualHost, username string) detector.Verdict {
	var usernameV, dnsV detector.Verdict

	var g errgroup.Group
	g.Go(func() error {
		if pol.UsernamePatternCheck {
			usernameV = detector.UsernameMorphology(username, pol.Username, p.counters)
		}
		return nil
	})
	g.Go(func() error {
		if pol.DNSCheck {
			dnsV = detector.DNSDomain(direct, virtualHost, pol.DNS)
		}
		return nil
	})
	_ = g.Wait()

	if usernameV.Fatal {
		return usernameV
	}
	return dnsV
}

// admit records the connection, creates its Session, and either enters it
// into the verification world or fast-tracks it to Passed (the excluded,
// disabled, or returning-fingerprint paths).
func (p *Pipeline) admit(conn codec.Conn, pol policy.Snapshot, ip, username string, now time.Time, skipVerification bool) error {
	regID := p.registry.RecordConnection(ip, username, conn.VirtualHost(), now)

	id, err := uuid.GenerateUUID()
	if err != nil {
		p.registry.Release(ip, regID, now)
		return errs.Wrap(errs.InternalError, err)
	}

	sess := session.New(id, username, ip, world.Spawn, now)
	cs := &connState{sessionID: id, ip: ip, username: username, regID: regID, sess: sess}
	p.conns.Store(conn, cs)

	p.publish(event.ConnectionAccepted, id, ip, "accepted")

	fastTrack := skipVerification
	if pol.CheckOnlyFirstJoin {
		if _, ok := p.passed.Get(fingerprintKey(ip, username)); ok {
			fastTrack = true
		}
	}

	p.verify.Enter(sess, pol, func(s *session.Session, res verify.Result) {
		p.onVerificationResolved(conn, s, res)
	})
	p.publish(event.VerificationStarted, id, ip, "entered verification world")

	if fastTrack {
		if res := p.verify.HumanSignal(sess); res != nil {
			p.onVerificationResolved(conn, sess, *res)
		}
	}
	return nil
}

// OnPacket routes one decoded packet to the detectors and session/world
// updates it concerns, then asks the verification engine whether the
// session now qualifies for an early pass.
func (p *Pipeline) OnPacket(ctx context.Context, conn codec.Conn, pkt codec.Packet) error {
	v, ok := p.conns.Load(conn)
	if !ok {
		return errs.New(errs.ProtocolViolation, "packet for unknown connection")
	}
	cs := v.(*connState)
	now := p.clock.Now()
	pol := p.pol.Current()

	if pol.Excluded(cs.ip) {
		return nil
	}

	if pol.RateLimitCheck {
		limiter := p.limiterFor(pol.RateLimit)
		if !limiter.PacketSize(pkt.Size) {
			p.blockIP(cs.ip, "oversize packet", pol.ViolationBlockDuration.Time(), now)
			p.failSession(conn, cs, "oversize packet")
			return errs.New(errs.ProtocolViolation, "oversize packet")
		}
		if !limiter.Packet(cs.ip, now) {
			p.blockIP(cs.ip, "packet-flood", pol.ViolationBlockDuration.Time(), now)
			p.failSession(conn, cs, "packet-flood")
			return errs.New(errs.ProtocolViolation, "packet-flood")
		}
	}

	cs.mu.Lock()
	if cs.hasLast {
		delta := now.Sub(cs.lastPacketAt)
		cs.timingDeltas = append(cs.timingDeltas, delta)
		if len(cs.timingDeltas) > timingWindow {
			cs.timingDeltas = cs.timingDeltas[len(cs.timingDeltas)-timingWindow:]
		}
	}
	cs.lastPacketAt = now
	cs.hasLast = true
	deltas := append([]time.Duration(nil), cs.timingDeltas...)
	quarantined := cs.quarantined
	cs.mu.Unlock()

	if quarantined {
		// a quarantined session still routes its traffic, but never
		// re-enters verification scoring.
		return nil
	}

	switch pkt.Kind {
	case codec.KindPosition, codec.KindPositionAndRotation:
		p.world.UpdatePosition(cs.sessionID, pkt.Position)
		if pol.GravityCheck {
			p.applyVerdict(conn, cs, now, detector.Gravity(cs.sess.RecentPositions(gravityWindow)))
		}
		if pkt.Kind == codec.KindPositionAndRotation {
			p.handleRotation(conn, cs, pol, pkt.Rotation)
		}
	case codec.KindRotation:
		p.handleRotation(conn, cs, pol, pkt.Rotation)
	case codec.KindInteraction:
		p.world.Interact(cs.sessionID, pkt.Interaction)
	case codec.KindPluginMessage:
		if pkt.PluginChannel == "minecraft:brand" && pol.BrandCheck {
			p.applyVerdict(conn, cs, now, detector.ClientBrand(string(pkt.PluginData), pol.AllowedBrands))
		}
	case codec.KindChat:
		if res := p.verify.HumanSignal(cs.sess); res != nil {
			p.onVerificationResolved(conn, cs.sess, *res)
		}
		return nil
	case codec.KindKeepAlive:
		return nil
	}

	if pol.LatencyCheck {
		p.applyVerdict(conn, cs, now, detector.PacketTiming(deltas))
	}

	if res := p.verify.Evaluate(cs.sess, pol, now, deltas); res != nil {
		p.onVerificationResolved(conn, cs.sess, *res)
	}
	return nil
}

func (p *Pipeline) handleRotation(conn codec.Conn, cs *connState, pol policy.Snapshot, r detector.RotationSample) {
	p.world.UpdateRotation(cs.sessionID, r)
	if !pol.YawCheck {
		return
	}
	samples := p.world.Rotations(cs.sessionID)
	p.applyVerdict(conn, cs, p.clock.Now(), detector.Rotation(samples))

	deltas := make([]float32, 0, len(samples))
	for i := 1; i < len(samples); i++ {
		deltas = append(deltas, samples[i].Yaw-samples[i-1].Yaw)
	}
	p.applyVerdict(conn, cs, p.clock.Now(), detector.RepeatedRotation(deltas))
}

// applyVerdict folds a non-fatal detector verdict into the session's
// fail-count and, once it reaches the configured kick-threshold, either
// fails the session (kick-on-failure) or marks it quarantined and lets it
// keep going in degraded scrutiny, per the Failed-phase policy.
func (p *Pipeline) applyVerdict(conn codec.Conn, cs *connState, now time.Time, v detector.Verdict) {
	if v == (detector.Verdict{}) {
		return
	}
	if v.Fatal {
		p.failSession(conn, cs, v.Reason)
		return
	}
	cs.sess.AddFail(v.Delta)
	p.publish(event.DetectorFired, cs.sessionID, cs.ip, v.Reason)

	pol := p.pol.Current()
	if cs.sess.FailCount() < pol.KickThreshold {
		return
	}
	if pol.KickOnFailure {
		p.failSession(conn, cs, "fail-count reached kick threshold")
		return
	}
	cs.mu.Lock()
	cs.quarantined = true
	cs.mu.Unlock()
	p.publish(event.VerificationFailed, cs.sessionID, cs.ip, "quarantined: fail-count reached kick threshold, forwarding degraded")
}

func (p *Pipeline) failSession(conn codec.Conn, cs *connState, reason string) {
	if res := p.verify.Fail(cs.sess, reason); res != nil {
		p.onVerificationResolved(conn, cs.sess, *res)
	}
}

// onVerificationResolved runs once a session leaves InWorld (whether by
// early pass, a detector-forced fail, human-signal override, or the
// deadline timer): it emits the matching event, remembers a Pass for
// check_only_first_join, evicts the world reference, and — on Passed —
// asks the backend collaborator to take the connection, closing it on
// every other outcome.
func (p *Pipeline) onVerificationResolved(conn codec.Conn, sess *session.Session, res verify.Result) {
	cs, ok := p.connStateFor(conn)
	if !ok {
		return
	}
	p.world.Evict(cs.sessionID)

	if res.ViaDeadline {
		p.publish(event.VerificationTimeout, cs.sessionID, cs.ip, res.Reason)
	}

	switch res.Phase {
	case session.PhasePassed:
		p.passed.Add(fingerprintKey(cs.ip, cs.username), true)
		p.publish(event.VerificationPassed, cs.sessionID, cs.ip, res.Reason)
		p.handoff(conn, cs)
	default: // PhaseFailed
		pol := p.pol.Current()
		p.publish(event.VerificationFailed, cs.sessionID, cs.ip, res.Reason)
		if pol.KickOnFailure {
			_ = conn.Close(pol.KickMessage)
		}
	}
}

func (p *Pipeline) connStateFor(conn codec.Conn) (*connState, bool) {
	v, ok := p.conns.Load(conn)
	if !ok {
		return nil, false
	}
	return v.(*connState), true
}

// handoff resolves the intended backend and asks the connector to splice
// the connection to it. Each candidate backend is tried once, in order;
// a failed Connect is logged and the next one is tried. When none
// accepts, conn is closed with a generic message rather than left
// half-admitted.
func (p *Pipeline) handoff(conn codec.Conn, cs *connState) {
	if p.catalog == nil || p.connector == nil {
		return
	}
	names := p.catalog.ForcedHosts(conn.VirtualHost())
	if len(names) == 0 {
		names = p.catalog.AttemptConnectionOrder()
	}

	p.publish(event.TransferBegin, cs.sessionID, cs.ip, "resolving backend")
	for _, name := range names {
		ref, ok := p.catalog.Lookup(name)
		if !ok {
			continue
		}
		if err := p.connector.Connect(context.Background(), ref, conn); err != nil {
			p.log.Warn("backend handoff failed", logging.Fields{
				"session_id": cs.sessionID, "backend": name, "error": err.Error(),
			})
			continue
		}
		p.publish(event.TransferComplete, cs.sessionID, cs.ip, fmt.Sprintf("handed off to %s", name))
		return
	}

	p.log.Error("no backend accepted the handoff", logging.Fields{"session_id": cs.sessionID})
	_ = conn.Close("no backend available")
}

// OnClose releases the connection's registry registration, forces its
// session to a terminal Failed phase if it was still InWorld (a
// mid-verification disconnect), evicts the world reference, and records
// the disconnect.
func (p *Pipeline) OnClose(conn codec.Conn) {
	v, ok := p.conns.LoadAndDelete(conn)
	if !ok {
		return
	}
	cs := v.(*connState)
	now := p.clock.Now()

	p.registry.Release(cs.ip, cs.regID, now)
	p.world.Evict(cs.sessionID)

	if res := p.verify.Disconnected(cs.sess); res != nil {
		p.publish(event.VerificationFailed, cs.sessionID, cs.ip, res.Reason)
	}
}

// Sweep runs the connection registry's janitor pass; callers schedule it
// on a fixed cadence (e.g. every minute) from the timer pool.
func (p *Pipeline) Sweep(now time.Time, idleThreshold time.Duration) {
	for _, ip := range p.registry.Sweep(now, idleThreshold) {
		p.publish(event.BlockExpired, "", ip, "block window elapsed")
	}
}

// blockIP issues a registry block and emits the matching event, the one
// place in the pipeline that escalates an IP from suspicious to blocked.
func (p *Pipeline) blockIP(ip, reason string, duration time.Duration, now time.Time) {
	p.registry.Block(ip, reason, duration, now)
	p.publish(event.BlockIssued, "", ip, reason)
}

// Stats is a point-in-time snapshot of the pipeline's live load, exposed
// to the operator HTTP surface.
type Stats struct {
	ActiveConnections int
}

// Stats returns the pipeline's current load. Safe to call concurrently
// with every other method.
func (p *Pipeline) Stats() Stats {
	return Stats{ActiveConnections: p.conns.Len()}
}

func (p *Pipeline) publish(kind event.Kind, sessionID, ip, reason string) {
	p.sink.Publish(event.Event{
		Kind:          kind,
		CorrelationID: sessionID,
		Reason:        reason,
		Fields:        map[string]string{"peer_ip": ip},
	})
}
