// Package codraerr defines the error-kind vocabulary the engine and its
// components use to report failure, per spec.md §7. Kinds are mapped to
// wire envelope codes at the boundary (outside this module's scope); this
// package only carries the kind and a wrapped cause.
package codraerr

import (
	"errors"
	"fmt"
)

// Code enumerates the error kinds spec.md §7 distinguishes.
type Code string

const (
	Validation        Code = "validation"
	NotReady          Code = "not_ready"
	Conflict          Code = "conflict"
	TransientExternal Code = "transient_external"
	Corruption        Code = "corruption"
	FatalBuild        Code = "fatal_build"
	PurgeSafety       Code = "purge_safety"
	Internal          Code = "internal"
)

// Error wraps a cause with a Code so callers can branch on kind via
// errors.As without string matching.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error wrapping cause, or returns nil if cause is nil.
func Wrap(code Code, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error, else returns Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}
