// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package detector

import (
	"math"
	"time"
)

// ClientBrand evaluates the "minecraft:brand" plugin-message payload.
// An empty allow-list permits every brand.
func ClientBrand(brand string, allowed map[string]struct{}) Verdict {
	if len(allowed) == 0 {
		return accept
	}
	if _, ok := allowed[brand]; ok {
		return accept
	}
	return Verdict{Suspicious: true, Delta: 1, Reason: "client brand not in allow-list"}
}

// Gravity inspects a session's position history for unnatural,
// unterminated ascent: real clients stop rising (a jump arcs back down,
// or the client reports ground contact) well inside 1.5s.
func Gravity(samples []PositionSample) Verdict {
	if len(samples) < 5 {
		return accept
	}

	ascentStart := -1
	for i := 1; i < len(samples); i++ {
		rising := samples[i].Y > samples[i-1].Y
		if rising {
			if ascentStart == -1 {
				ascentStart = i - 1
			}
			if samples[i].Grounded {
				ascentStart = -1
				continue
			}
			if samples[i].At.Sub(samples[ascentStart].At) > 1500*time.Millisecond {
				return Verdict{Suspicious: true, Delta: 1, Reason: "ascent exceeds gravity window without ground contact"}
			}
		} else {
			ascentStart = -1
		}
	}
	return accept
}

// Rotation inspects a session's yaw history for rapid snap-turns and for
// suspiciously static look direction.
func Rotation(samples []RotationSample) Verdict {
	rapid := 0
	for i := 1; i < len(samples); i++ {
		if angularDelta(samples[i-1].Yaw, samples[i].Yaw) > 160 {
			rapid++
			if rapid >= 3 {
				return Verdict{Suspicious: true, Delta: 1, Reason: "repeated rapid rotations"}
			}
		}
	}

	if len(samples) == 0 {
		return accept
	}
	identical := 0
	for i := 1; i < len(samples); i++ {
		if angularDelta(samples[i-1].Yaw, samples[i].Yaw) < 0.1 {
			identical++
		}
	}
	if float64(identical) > 0.7*float64(len(samples)-1) && len(samples) > 1 {
		return Verdict{Suspicious: true, Delta: 1, Reason: "look direction static across samples"}
	}
	return accept
}

func angularDelta(a, b float32) float64 {
	d := math.Mod(float64(b-a)+180, 360)
	if d < 0 {
		d += 360
	}
	return math.Abs(d - 180)
}

// PacketTiming flags verification-window packet cadence that is too
// regular to be human: coefficient of variation (stddev/mean) below 0.3.
func PacketTiming(deltas []time.Duration) Verdict {
	if len(deltas) < 4 {
		return accept
	}

	var sum float64
	for _, d := range deltas {
		sum += float64(d)
	}
	mean := sum / float64(len(deltas))
	if mean == 0 {
		return accept
	}

	var variance float64
	for _, d := range deltas {
		diff := float64(d) - mean
		variance += diff * diff
	}
	variance /= float64(len(deltas))
	stddev := math.Sqrt(variance)

	if stddev/mean < 0.3 {
		return Verdict{Suspicious: true, Delta: 1, Reason: "packet cadence too regular"}
	}
	return accept
}

// RepeatedRotation detects a run of 3 or more consecutive identical
// inter-sample yaw deltas, the signature of a scripted look-around loop.
func RepeatedRotation(yawDeltas []float32) Verdict {
	run := 1
	for i := 1; i < len(yawDeltas); i++ {
		if yawDeltas[i] == yawDeltas[i-1] {
			run++
			if run >= 3 {
				return Verdict{Suspicious: true, Delta: 1, Reason: "repeated identical rotation deltas"}
			}
		} else {
			run = 1
		}
	}
	return accept
}
