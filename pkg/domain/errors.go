package domain

import (
	"errors"
	"fmt"
)

// Kind classifies failures so that callers can branch without matching
// message text.
type Kind string

// Failure kinds surfaced by the core.
const (
	KindInvalidArgument Kind = "invalid_argument"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindServer          Kind = "server_error"
)

// Sentinels usable with errors.Is against any classified error.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrServer          = &Error{Kind: KindServer}
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, which makes the package sentinels
// work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// InvalidArgumentf builds an InvalidArgument error.
func InvalidArgumentf(format string, args ...any) error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a Conflict error.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NotFound error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// ServerError wraps an unexpected internal failure.
func ServerError(message string, err error) error {
	return &Error{Kind: KindServer, Message: message, Err: err}
}

// ValidationError reports a violated validation rule. It is an
// InvalidArgument failure.
type ValidationError struct {
	Rule    string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is reports the InvalidArgument kind.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// NewValidationError builds a validation failure for rule.
func NewValidationError(rule, format string, args ...any) error {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// MalformedInputError reports configuration input that could not be parsed.
// It is an InvalidArgument failure distinct from ValidationError.
type MalformedInputError struct {
	Format string
	Err    error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed %s factory configuration: %v", e.Format, e.Err)
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// Is reports the InvalidArgument kind.
func (e *MalformedInputError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// KindOf classifies err by the outermost classified error in its chain.
// Unclassified errors are reported as KindServer.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := e.(type) {
		case *Error:
			return v.Kind
		case *ValidationError, *MalformedInputError:
			return KindInvalidArgument
		}
	}
	return KindServer
}
