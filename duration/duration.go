// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package duration extends time.Duration with a "5d23h15m" days notation
// and JSON/YAML (un)marshaling, so policy.Snapshot fields like
// verification_duration_ms or conn_rate_window_ms read as plain strings in
// the configuration file instead of raw nanosecond integers.
package duration

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is time.Duration with days support in its text form.
type Duration time.Duration

const day = 24 * time.Hour

func Seconds(i int64) Duration { return Duration(time.Duration(i) * time.Second) }
func Millis(i int64) Duration  { return Duration(time.Duration(i) * time.Millisecond) }
func Minutes(i int64) Duration { return Duration(time.Duration(i) * time.Minute) }
func Hours(i int64) Duration   { return Duration(time.Duration(i) * time.Hour) }
func Days(i int64) Duration    { return Duration(time.Duration(i) * day) }

// Time returns the underlying time.Duration.
func (d Duration) Time() time.Duration { return time.Duration(d) }

// Parse accepts both a plain time.ParseDuration string and a leading "Nd"
// days component, e.g. "2d3h".
func Parse(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	if s == "" {
		return 0, nil
	}

	if idx := strings.IndexByte(s, 'd'); idx > 0 {
		// only treat the 'd' as a days marker if everything before it is
		// numeric; "desc" or a bare "5ms" must not be misread.
		if _, err := strconv.ParseInt(s[:idx], 10, 64); err == nil {
			days, err := strconv.ParseInt(s[:idx], 10, 64)
			if err != nil {
				return 0, err
			}
			rest := s[idx+1:]
			var tail time.Duration
			if rest != "" {
				var err error
				tail, err = time.ParseDuration(rest)
				if err != nil {
					return 0, err
				}
			}
			return Duration(time.Duration(days)*day + tail), nil
		}
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return Duration(v), nil
}

func (d Duration) String() string {
	v := time.Duration(d)
	if v < day {
		return v.String()
	}
	days := v / day
	rest := v % day
	if rest == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%s", days, rest)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return err
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
