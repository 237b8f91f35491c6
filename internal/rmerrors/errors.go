// Package rmerrors provides the structured error kinds surfaced to the
// shell, as specified by the core engine's error handling design.
package rmerrors

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds the core engine is allowed to surface.
type Kind string

const (
	// KindNotFound covers a missing ledger, entry, journal, or transaction.
	KindNotFound Kind = "not_found"
	// KindConflict covers an already-posted entry, duplicate GL id, or a
	// concurrent login lock.
	KindConflict Kind = "conflict"
	// KindInvalidInput covers an empty id, malformed date, or an
	// out-of-range posting index.
	KindInvalidInput Kind = "invalid_input"
	// KindParseError covers a malformed journal block or JSON op record.
	KindParseError Kind = "parse_error"
	// KindIOFault covers disk, rename, or keychain failures.
	KindIOFault Kind = "io_fault"
	// KindAmbiguous covers dedup with two or more fuzzy/transfer candidates.
	KindAmbiguous Kind = "ambiguous"
	// KindTimeout covers a waitFor* deadline exceeded.
	KindTimeout Kind = "timeout"
	// KindDriverFault covers a rejected sandbox promise or interpreter
	// exception.
	KindDriverFault Kind = "driver_fault"
	// KindUnsupported covers the debug socket on a non-Unix platform or an
	// unknown report command.
	KindUnsupported Kind = "unsupported"
)

// Error is the structured error type every core subsystem returns. It
// carries a Kind, a human-readable message, an
// optional wrapped cause, and a details map for the kind-specific context
// (a file+line range for ParseError, a pattern+URL for Timeout, and so on).
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches a detail key/value and returns the receiver for
// chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// NotFound builds a KindNotFound error naming the resource kind and id.
func NotFound(resource, id string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource)).WithDetail("resource", resource).WithDetail("id", id)
}

// Conflict builds a KindConflict error.
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// InvalidInput builds a KindInvalidInput error naming the offending field.
func InvalidInput(field, reason string) *Error {
	return New(KindInvalidInput, "invalid input").WithDetail("field", field).WithDetail("reason", reason)
}

// ParseError builds a KindParseError error carrying the source file and the
// 1-based [startLine, endLine] block range that failed to parse.
func ParseError(file string, startLine, endLine int, reason string) *Error {
	return New(KindParseError, reason).
		WithDetail("file", file).
		WithDetail("start_line", startLine).
		WithDetail("end_line", endLine)
}

// IOFault wraps a filesystem/keychain failure.
func IOFault(operation string, err error) *Error {
	return Wrap(KindIOFault, fmt.Sprintf("io fault during %s", operation), err).WithDetail("operation", operation)
}

// Ambiguous builds a KindAmbiguous error carrying the candidate indices.
func Ambiguous(message string, indices []int) *Error {
	return New(KindAmbiguous, message).WithDetail("candidates", indices)
}

// Timeout builds a KindTimeout error carrying the wait pattern and the
// current URL, the JS-visible TimeoutError shape.
func Timeout(pattern, currentURL string) *Error {
	return New(KindTimeout, fmt.Sprintf("timeout waiting for %q", pattern)).
		WithDetail("pattern", pattern).
		WithDetail("current_url", currentURL)
}

// DriverFault wraps a rejected sandbox promise or interpreter exception,
// carrying the JS stack trace when available.
func DriverFault(message, jsStack string, err error) *Error {
	return Wrap(KindDriverFault, message, err).WithDetail("js_stack", jsStack)
}

// Unsupported builds a KindUnsupported error.
func Unsupported(message string) *Error {
	return New(KindUnsupported, message)
}

// As extracts an *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err's chain contains an *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
