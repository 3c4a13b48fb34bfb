// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package detector

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

var (
	reAlphaVowel    = regexp.MustCompile(`^[A-Za-z]{4,12}$`)
	reVowel         = regexp.MustCompile(`[AEIOUaeiou]`)
	reLowerNoVowel8 = regexp.MustCompile(`^[a-z0-9]{8}$`)
	rePrefixDigits  = regexp.MustCompile(`^([A-Za-z]+)(\d{3,})$`)
	reDigitRun      = regexp.MustCompile(`\d{4,}`)
)

// UsernameConfig tunes the morphology detector; it is carried verbatim
// inside the policy snapshot.
type UsernameConfig struct {
	MinLen, MaxLen  int
	PatternThreshold int
}

// DefaultUsernameConfig mirrors the spec's stated bounds.
func DefaultUsernameConfig() UsernameConfig {
	return UsernameConfig{MinLen: 3, MaxLen: 16, PatternThreshold: 5}
}

// PatternCounters buckets usernames by a normalized suffix pattern (an
// alpha prefix followed by a run of digits, or a run of 4+ digits
// substituted for "XXXX"), so a swarm of bots cycling through
// "Player001".."Player999" is caught on its Nth distinct name rather than
// allowed through indefinitely. Backed by an LRU so a long-running proxy
// never grows this unbounded.
type PatternCounters struct {
	cache *lru.Cache
}

// NewPatternCounters returns a PatternCounters retaining up to size
// distinct patterns.
func NewPatternCounters(size int) *PatternCounters {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New(size)
	if err != nil {
		// New only fails for size <= 0, already guarded above.
		panic(err)
	}
	return &PatternCounters{cache: c}
}

func (p *PatternCounters) increment(pattern string) int {
	if v, ok := p.cache.Get(pattern); ok {
		n := v.(int) + 1
		p.cache.Add(pattern, n)
		return n
	}
	p.cache.Add(pattern, 1)
	return 1
}

// UsernameMorphology evaluates username against the ordered pattern
// rules. counters may be nil, in which case rules 4/5 never reject (every
// prefix/pattern is treated as first-seen).
func UsernameMorphology(username string, cfg UsernameConfig, counters *PatternCounters) Verdict {
	if len(username) < cfg.MinLen || len(username) > cfg.MaxLen {
		return Verdict{Fatal: true, Delta: 1, Reason: "username length out of bounds"}
	}

	if reAlphaVowel.MatchString(username) && reVowel.MatchString(username) {
		return accept
	}

	lower := strings.ToLower(username)
	if strings.Contains(lower, "bot") || strings.Contains(lower, "test") {
		return Verdict{Fatal: true, Delta: 1, Reason: "username contains a bot-like token"}
	}

	if reLowerNoVowel8.MatchString(username) && !reVowel.MatchString(username) {
		return Verdict{Fatal: true, Delta: 1, Reason: "8-char consonant-only username"}
	}

	if m := rePrefixDigits.FindStringSubmatch(username); m != nil {
		if counters == nil {
			return accept
		}
		n := counters.increment("prefix:" + m[1])
		if n > cfg.PatternThreshold {
			return Verdict{Fatal: true, Delta: 1, Reason: "prefix+digits pattern exceeded threshold"}
		}
		return accept
	}

	if loc := reDigitRun.FindStringIndex(username); loc != nil {
		if counters == nil {
			return accept
		}
		pattern := username[:loc[0]] + "XXXX" + username[loc[1]:]
		n := counters.increment("digits:" + pattern)
		if n > cfg.PatternThreshold {
			return Verdict{Fatal: true, Delta: 1, Reason: "digit-run pattern exceeded threshold"}
		}
		return accept
	}

	return accept
}
