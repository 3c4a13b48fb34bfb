// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package event implements the structured observability sink (C10).
// Every admission-pipeline event carries a correlation-id equal to the
// session-id it concerns. The sink is best-effort: publishing never
// blocks the pipeline, and a full buffer drops the event rather than
// apply backpressure.
package event

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Kind enumerates the event vocabulary C10 emits.
type Kind string

const (
	ConnectionAccepted   Kind = "connection.accepted"
	ConnectionRejected   Kind = "connection.rejected"
	VerificationStarted  Kind = "verification.started"
	VerificationPassed   Kind = "verification.passed"
	VerificationFailed   Kind = "verification.failed"
	VerificationTimeout  Kind = "verification.timeout"
	DetectorFired        Kind = "detector.fired"
	BlockIssued          Kind = "block.issued"
	BlockExpired         Kind = "block.expired"
	TransferBegin        Kind = "transfer.begin"
	TransferComplete     Kind = "transfer.complete"
)

// Event is one structured record. Reason is free text (a disconnect
// reason, a detector name, a block reason); Fields carries anything else
// worth correlating (peer-ip, username, backend name).
type Event struct {
	Kind          Kind
	CorrelationID string
	Reason        string
	Fields        map[string]string
}

// Sink is the pipeline's event-publishing surface. Publish must never
// block; implementations drop on overflow rather than apply
// backpressure.
type Sink interface {
	Publish(e Event)
	// Close stops accepting new events and waits for the drain goroutine
	// to finish processing whatever is already buffered.
	Close()
}

// metrics holds the prometheus counters this sink increments per Kind,
// so an operator's existing Prometheus scrape picks up admission-pipeline
// activity without a bespoke exporter.
type metrics struct {
	byKind *prometheus.CounterVec
	dropped prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		byKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinelgate",
			Subsystem: "admission",
			Name:      "events_total",
			Help:      "Admission pipeline events by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinelgate",
			Subsystem: "admission",
			Name:      "events_dropped_total",
			Help:      "Admission pipeline events dropped because the sink's buffer was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.byKind, m.dropped)
	}
	return m
}

// bufferedSink is a best-effort, non-blocking Sink: a bounded channel
// drained by a single goroutine calling the configured handler, dropping
// events (and counting the drop) when the buffer is full rather than
// blocking the pipeline's connection task.
type bufferedSink struct {
	ch      chan Event
	metrics *metrics
	handler func(Event)
	done    chan struct{}
}

// New returns a Sink with the given buffer capacity, registering its
// counters against reg (nil disables Prometheus registration, useful in
// tests). handler is invoked for every published event from a single
// background goroutine; it may be nil.
func New(capacity int, reg prometheus.Registerer, handler func(Event)) Sink {
	if capacity <= 0 {
		capacity = 1024
	}
	s := &bufferedSink{
		ch:      make(chan Event, capacity),
		metrics: newMetrics(reg),
		handler: handler,
		done:    make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *bufferedSink) Publish(e Event) {
	s.metrics.byKind.WithLabelValues(string(e.Kind)).Inc()
	select {
	case s.ch <- e:
	default:
		s.metrics.dropped.Inc()
	}
}

func (s *bufferedSink) drain() {
	defer close(s.done)
	for e := range s.ch {
		if s.handler != nil {
			s.handler(e)
		}
	}
}

func (s *bufferedSink) Close() {
	close(s.ch)
	<-s.done
}

// Nop returns a Sink that publishes to nobody and registers no metrics;
// useful in tests and for components wired without observability.
func Nop() Sink {
	return nopSink{}
}

type nopSink struct{}

func (nopSink) Publish(Event) {}
func (nopSink) Close()        {}
