// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Fields is the set of structured attributes attached to one log entry.
// Every admission-pipeline event carries at least a "correlation_id" field
// equal to the session-id it concerns.
type Fields map[string]any

func (f Fields) logrus() logrus.Fields {
	out := make(logrus.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Logger is the structured logging surface every component is constructed
// with. It is a thin, intentionally small facade over logrus: just the
// operations the admission pipeline actually calls.
type Logger interface {
	Debug(message string, fields Fields)
	Info(message string, fields Fields)
	Warn(message string, fields Fields)
	Error(message string, fields Fields)

	// SetLevel changes the minimal level emitted by this logger instance.
	SetLevel(lvl Level)
	// With returns a child Logger that prepends the given fields to every
	// entry, without mutating the receiver. Used to bind a correlation-id
	// for the lifetime of one session.
	With(fields Fields) Logger
}

type logger struct {
	entry *logrus.Entry
}

// New constructs a Logger writing to w at the given level, in logrus' text
// formatter (the admission pipeline has no syslog/file-hook requirement;
// operators pipe stdout into their own aggregator).
func New(w io.Writer, lvl Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl.logrus())
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logger{entry: logrus.NewEntry(l)}
}

func (l *logger) Debug(message string, fields Fields) { l.entry.WithFields(fields.logrus()).Debug(message) }
func (l *logger) Info(message string, fields Fields)  { l.entry.WithFields(fields.logrus()).Info(message) }
func (l *logger) Warn(message string, fields Fields)  { l.entry.WithFields(fields.logrus()).Warn(message) }
func (l *logger) Error(message string, fields Fields) { l.entry.WithFields(fields.logrus()).Error(message) }

func (l *logger) SetLevel(lvl Level) {
	l.entry.Logger.SetLevel(lvl.logrus())
}

func (l *logger) With(fields Fields) Logger {
	return &logger{entry: l.entry.WithFields(fields.logrus())}
}

// Nop returns a Logger that discards every entry; useful in tests.
func Nop() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &logger{entry: logrus.NewEntry(l)}
}
