// Copyright (c) 2026 Sentinel Gate Authors
// SPDX-License-Identifier: MIT

// Package errs implements the coded, traceable error taxonomy described by
// the admission pipeline's error-handling design: five CodeError kinds
// (policy violation, protocol violation, resource exhaustion, backend
// unavailable, internal error), each carrying an optional parent chain and
// the file/line where it was raised, compatible with errors.Is/errors.As.
package errs

import (
	"errors"
	"fmt"
	"runtime"
)

// CodeError classifies an error the way an HTTP status code classifies a
// response: a small, fixed vocabulary that callers can switch on without
// string matching.
type CodeError uint16

const (
	// UnknownError is the zero value: no classification was attached.
	UnknownError CodeError = iota
	// PolicyViolation is a detector verdict recovered locally into the
	// verification pipeline; never surfaces past a reason string.
	PolicyViolation
	// ProtocolViolation is an oversize/malformed frame; triggers a close
	// and an IP block.
	ProtocolViolation
	// ResourceExhaustion is a full queue or session-table; refuses new
	// admissions without affecting existing sessions.
	ResourceExhaustion
	// BackendUnavailable is a failed handoff to the chosen backend server.
	BackendUnavailable
	// InternalError is an unexpected panic isolated to a single detector.
	InternalError
)

func (c CodeError) String() string {
	switch c {
	case PolicyViolation:
		return "policy_violation"
	case ProtocolViolation:
		return "protocol_violation"
	case ResourceExhaustion:
		return "resource_exhaustion"
	case BackendUnavailable:
		return "backend_unavailable"
	case InternalError:
		return "internal_error"
	default:
		return "unknown"
	}
}

// Error is a coded error with an optional parent chain and a captured
// call site. It satisfies the standard error interface plus errors.Is/As.
type Error interface {
	error
	Code() CodeError
	Is(error) bool
	Unwrap() error
	// WithParent returns a copy of the error with the given parent attached.
	WithParent(parent error) Error
	// Site returns "file:line" of where the error was constructed.
	Site() string
}

type ers struct {
	code    CodeError
	message string
	parent  error
	site    string
}

// New constructs an Error of the given code with message, capturing the
// caller's file:line.
func New(code CodeError, message string) Error {
	return &ers{code: code, message: message, site: callerSite(2)}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(code CodeError, format string, args ...any) Error {
	return &ers{code: code, message: fmt.Sprintf(format, args...), site: callerSite(2)}
}

// Wrap attaches a CodeError classification to an existing error.
func Wrap(code CodeError, parent error) Error {
	if parent == nil {
		return nil
	}
	return &ers{code: code, message: parent.Error(), parent: parent, site: callerSite(2)}
}

func callerSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func (e *ers) Error() string {
	if e.message == "" {
		return e.code.String()
	}
	return e.message
}

func (e *ers) Code() CodeError { return e.code }
func (e *ers) Site() string    { return e.site }
func (e *ers) Unwrap() error   { return e.parent }

func (e *ers) Is(target error) bool {
	var t *ers
	if errors.As(target, &t) {
		return e.code == t.code
	}
	return false
}

func (e *ers) WithParent(parent error) Error {
	n := *e
	n.parent = parent
	return &n
}

// HasCode reports whether err, or any error reachable through its unwrap
// tree, carries the given CodeError.
func HasCode(err error, code CodeError) bool {
	// errors.Is walks every branch of the tree (including joined errors)
	// and matches any *ers node whose code equals the target's.
	return errors.Is(err, &ers{code: code})
}

// GetCode extracts the CodeError from err if present, or UnknownError.
func GetCode(err error) CodeError {
	var e *ers
	if errors.As(err, &e) {
		return e.code
	}
	return UnknownError
}
