// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package policy

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	atm "github.com/sentinelgate/admission/atomic"
	"github.com/sentinelgate/admission/duration"
)

// Policy holds the current Snapshot behind an atomic reference, so every
// operation that starts after a Swap observes the new snapshot and no
// operation ever sees a half-applied one.
type Policy struct {
	current atm.Value[Snapshot]
}

// New returns a Policy initialized to initial.
func New(initial Snapshot) *Policy {
	p := &Policy{current: atm.NewValue[Snapshot]()}
	p.current.Store(initial)
	return p
}

// Current returns the snapshot in effect right now. Callers should not
// hold onto it across more than one operation.
func (p *Policy) Current() Snapshot {
	return p.current.Load()
}

// Swap installs next as the current snapshot.
func (p *Policy) Swap(next Snapshot) {
	p.current.Store(next)
}

// RegisterFlags wires the --config flag (and a handful of top-level
// overrides) onto cmd, binding them into v so Load can pick them up.
// Mirrors the teacher's Component.RegisterFlag contract: flags compose
// with file-based config instead of replacing it.
func RegisterFlags(cmd *cobra.Command, v *viper.Viper) error {
	cmd.PersistentFlags().String("config", "", "path to the admission policy config file")
	cmd.PersistentFlags().Bool("enabled", true, "master switch for the admission pipeline")
	cmd.PersistentFlags().Bool("kick-on-failure", true, "disconnect sessions that fail verification")

	if err := v.BindPFlag("enabled", cmd.PersistentFlags().Lookup("enabled")); err != nil {
		return err
	}
	return v.BindPFlag("kick_on_failure", cmd.PersistentFlags().Lookup("kick-on-failure"))
}

// Load reads v (already pointed at a config file via SetConfigFile or
// AddConfigPath/SetConfigName) into a Snapshot, starting from Default and
// overriding only the keys present.
func Load(v *viper.Viper) (Snapshot, error) {
	s := Default()

	if v.IsSet("enabled") {
		s.Enabled = v.GetBool("enabled")
	}
	if v.IsSet("kick_on_failure") {
		s.KickOnFailure = v.GetBool("kick_on_failure")
	}
	if v.IsSet("kick_threshold") {
		s.KickThreshold = v.GetInt("kick_threshold")
	}
	if v.IsSet("kick_message") {
		s.KickMessage = v.GetString("kick_message")
	}
	if v.IsSet("check_only_first_join") {
		s.CheckOnlyFirstJoin = v.GetBool("check_only_first_join")
	}

	if v.IsSet("verification_duration_ms") {
		d, err := duration.Parse(v.GetString("verification_duration_ms"))
		if err != nil {
			return Snapshot{}, err
		}
		s.VerificationDuration = d
	}
	if v.IsSet("min_movements") {
		s.MinMovements = v.GetInt("min_movements")
	}
	if v.IsSet("min_distance") {
		s.MinDistance = v.GetFloat64("min_distance")
	}
	if v.IsSet("pass_threshold") {
		s.PassThreshold = v.GetInt("pass_threshold")
	}

	for key, dst := range map[string]*bool{
		"gravity_check":          &s.GravityCheck,
		"yaw_check":              &s.YawCheck,
		"hitbox_check":           &s.HitboxCheck,
		"brand_check":            &s.BrandCheck,
		"world_check":            &s.WorldCheck,
		"rate_limit":             &s.RateLimitCheck,
		"username_pattern_check": &s.UsernamePatternCheck,
		"dns_check":              &s.DNSCheck,
		"latency_check":          &s.LatencyCheck,
	} {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	if v.IsSet("allowed_brands") {
		s.AllowedBrands = toSet(v.GetStringSlice("allowed_brands"))
	}
	if v.IsSet("allowed_domains") {
		s.DNS.AllowedDomains = v.GetStringSlice("allowed_domains")
	}
	if v.IsSet("allow_direct_ip") {
		s.DNS.AllowDirectIP = v.GetBool("allow_direct_ip")
	}
	if v.IsSet("excluded_ips") {
		s.ExcludedIPs = toSet(v.GetStringSlice("excluded_ips"))
	}

	rl := s.RateLimit
	if v.IsSet("conn_rate_limit") {
		rl.ConnMax = v.GetInt("conn_rate_limit")
	}
	if v.IsSet("conn_rate_window_ms") {
		d, err := duration.Parse(v.GetString("conn_rate_window_ms"))
		if err != nil {
			return Snapshot{}, err
		}
		rl.ConnWindow = d.Time()
	}
	if v.IsSet("throttle_duration_ms") {
		d, err := duration.Parse(v.GetString("throttle_duration_ms"))
		if err != nil {
			return Snapshot{}, err
		}
		rl.ConnThrottle = d.Time()
	}
	if v.IsSet("max_packets_per_sec") {
		rl.PacketMax = v.GetInt("max_packets_per_sec")
	}
	if v.IsSet("max_packet_size") {
		rl.MaxPacketSize = v.GetInt("max_packet_size")
	}
	s.RateLimit = rl

	if v.IsSet("packet_block_ms") {
		d, err := duration.Parse(v.GetString("packet_block_ms"))
		if err != nil {
			return Snapshot{}, err
		}
		s.ViolationBlockDuration = d
	}

	if v.IsSet("username_min_len") {
		s.Username.MinLen = v.GetInt("username_min_len")
	}
	if v.IsSet("username_max_len") {
		s.Username.MaxLen = v.GetInt("username_max_len")
	}

	return s, nil
}

func toSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[strings.TrimSpace(v)] = struct{}{}
	}
	return out
}
