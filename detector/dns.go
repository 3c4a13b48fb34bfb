// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package detector

import (
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	lru "github.com/hashicorp/golang-lru"
)

// DNSConfig carries the DNS/domain detector's policy inputs.
type DNSConfig struct {
	AllowDirectIP  bool
	AllowedDomains []string // suffix-matched against the client's virtual-host
}

// Resolver performs the reverse-DNS lookup used to enrich fingerprinting
// logs; its result never changes the detector's verdict, only what gets
// attached for operator visibility.
type Resolver interface {
	// PTR returns the first PTR record for ip, or "" if none/lookup failed.
	PTR(ip net.IP) string
}

type dnsResolver struct {
	client *dns.Client
	server string
	timeout time.Duration
}

// NewResolver returns a Resolver querying server (host:port) with the
// given per-query timeout. server is typically the host's configured
// resolver, e.g. "1.1.1.1:53".
func NewResolver(server string, timeout time.Duration) Resolver {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &dnsResolver{
		client:  &dns.Client{Timeout: timeout},
		server:  server,
		timeout: timeout,
	}
}

func (r *dnsResolver) PTR(ip net.IP) string {
	rev, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return ""
	}
	m := new(dns.Msg)
	m.SetQuestion(rev, dns.TypePTR)
	m.RecursionDesired = true

	in, _, err := r.client.Exchange(m, r.server)
	if err != nil || in == nil {
		return ""
	}
	for _, a := range in.Answer {
		if ptr, ok := a.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, ".")
		}
	}
	return ""
}

type ptrEntry struct {
	host   string
	expiry time.Time
}

// CachingResolver decorates a Resolver with a bounded, TTL-expiring cache
// of peer-IP to PTR-hostname lookups. The IP Record's "resolved-hostname
// (optional, cached)" field (spec §3) is served from here rather than
// held per-record in the registry, so a repeat connection from the same
// IP within ttl never re-queries the resolver.
type CachingResolver struct {
	next  Resolver
	ttl   time.Duration
	cache *lru.Cache
}

// NewCachingResolver wraps next with an LRU of up to size entries, each
// valid for ttl. A non-positive size defaults to 4096; a non-positive ttl
// defaults to 10 minutes.
func NewCachingResolver(next Resolver, size int, ttl time.Duration) *CachingResolver {
	if size <= 0 {
		size = 4096
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &CachingResolver{next: next, ttl: ttl, cache: c}
}

func (r *CachingResolver) PTR(ip net.IP) string {
	key := ip.String()
	if v, ok := r.cache.Get(key); ok {
		e := v.(ptrEntry)
		if time.Now().Before(e.expiry) {
			return e.host
		}
		r.cache.Remove(key)
	}

	host := r.next.PTR(ip)
	r.cache.Add(key, ptrEntry{host: host, expiry: time.Now().Add(r.ttl)})
	return host
}

// DNSDomain evaluates directConnection (the client connected to the
// listener's raw IP rather than a virtual-host) and virtualHost against
// cfg. It performs no lookup; PTR enrichment through a Resolver is
// separate and never affects the verdict.
func DNSDomain(directConnection bool, virtualHost string, cfg DNSConfig) Verdict {
	if directConnection && !cfg.AllowDirectIP {
		return Verdict{Fatal: true, Delta: 1, Reason: "direct-ip connection disallowed"}
	}

	if len(cfg.AllowedDomains) == 0 {
		return accept
	}

	host := strings.ToLower(virtualHost)
	for _, suffix := range cfg.AllowedDomains {
		if strings.HasSuffix(host, strings.ToLower(suffix)) {
			return accept
		}
	}
	return Verdict{Fatal: true, Delta: 1, Reason: "virtual-host not in allowed-domains"}
}
