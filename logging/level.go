// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package logging provides structured, leveled logging for every component
// of the admission pipeline, backed by logrus. Components receive a Logger
// at construction instead of reaching for a package-level global.
package logging

import "github.com/sirupsen/logrus"

// Level mirrors logrus' level vocabulary so callers never import logrus
// directly outside this package.
type Level uint8

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

func (l Level) logrus() logrus.Level {
	switch l {
	case PanicLevel:
		return logrus.PanicLevel
	case FatalLevel:
		return logrus.FatalLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case WarnLevel:
		return logrus.WarnLevel
	case InfoLevel:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

func (l Level) String() string {
	return l.logrus().String()
}
