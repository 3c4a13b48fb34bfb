// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package duration

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

type wrapper struct {
	Value Duration `json:"value" yaml:"value"`
}

func TestParseDays(t *testing.T) {
	d, err := Parse("2d3h15m")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 2*day + 3*time.Hour + 15*time.Minute
	if d.Time() != want {
		t.Fatalf("got %v, want %v", d.Time(), want)
	}
}

func TestParsePlain(t *testing.T) {
	d, err := Parse("500ms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Time() != 500*time.Millisecond {
		t.Fatalf("got %v", d.Time())
	}
}

func TestStringRoundTrip(t *testing.T) {
	d := Days(5) + Hours(23) + Minutes(15)
	s := d.String()
	got, err := Parse(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != d {
		t.Fatalf("round trip mismatch: %v != %v", got, d)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	w := wrapper{Value: Days(1) + Hours(2)}
	b, err := json.Marshal(&w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out wrapper
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Value != w.Value {
		t.Fatalf("got %v, want %v", out.Value, w.Value)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	w := wrapper{Value: Minutes(90)}
	b, err := yaml.Marshal(&w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out wrapper
	if err := yaml.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Value != w.Value {
		t.Fatalf("got %v, want %v", out.Value, w.Value)
	}
}
