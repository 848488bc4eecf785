// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy of the network core. Every failure is an *Error whose Kind
// tells callers how to react; sentinels below match by kind via errors.Is.

package api

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies network core failures.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindResolution
	KindInvalidAddress
	KindPortOpen
	KindConnectFailed
	KindIO
	KindTimeout
	KindNoMoreItems
	KindInterrupted
	KindClosed
)

func (k ErrorKind) String() string {
	switch k {
	case KindResolution:
		return "resolution error"
	case KindInvalidAddress:
		return "invalid address"
	case KindPortOpen:
		return "port open error"
	case KindConnectFailed:
		return "connect failed"
	case KindIO:
		return "i/o error"
	case KindTimeout:
		return "timeout"
	case KindNoMoreItems:
		return "no more items"
	case KindInterrupted:
		return "interrupted"
	case KindClosed:
		return "resource closed"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is checks.
var (
	ErrResolution     = &Error{Kind: KindResolution}
	ErrInvalidAddress = &Error{Kind: KindInvalidAddress}
	ErrPortOpen       = &Error{Kind: KindPortOpen}
	ErrConnectFailed  = &Error{Kind: KindConnectFailed}
	ErrIO             = &Error{Kind: KindIO}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrNoMoreItems    = &Error{Kind: KindNoMoreItems}
	ErrInterrupted    = &Error{Kind: KindInterrupted}
	ErrClosed         = &Error{Kind: KindClosed}
)

// Error represents a structured error with kind, OS error code and context.
type Error struct {
	Kind    ErrorKind
	Op      string // short operation tag, e.g. "recv failed"
	Errno   int    // OS or resolver error code, 0 when not applicable
	Context map[string]any
	Err     error // underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	} else {
		b.WriteString(e.Kind.String())
	}
	if e.Errno != 0 {
		fmt.Fprintf(&b, " (code %d)", e.Errno)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError creates a new structured error.
func NewError(kind ErrorKind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithErrno records the OS error code.
func (e *Error) WithErrno(code int) *Error {
	e.Errno = code
	return e
}

// Wrap records the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// ContextValue returns a context entry or nil.
func (e *Error) ContextValue(key string) any {
	if e.Context == nil {
		return nil
	}
	return e.Context[key]
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsTimeout reports whether err is a Timeout-kind failure, including
// a ConnectFailed caused by an elapsed deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
