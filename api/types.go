// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

import (
	"strings"
	"time"
)

// EventMask is a set of readiness conditions on a descriptor.
type EventMask uint8

const (
	EventReadable EventMask = 1 << iota
	EventWritable
	EventExceptional
)

// EventNone is the empty mask. A wait that reports EventNone timed out.
const EventNone EventMask = 0

// Has reports whether all bits of other are set in m.
func (m EventMask) Has(other EventMask) bool {
	return m&other == other && other != 0
}

func (m EventMask) String() string {
	if m == EventNone {
		return "none"
	}
	var parts []string
	if m&EventReadable != 0 {
		parts = append(parts, "readable")
	}
	if m&EventWritable != 0 {
		parts = append(parts, "writable")
	}
	if m&EventExceptional != 0 {
		parts = append(parts, "exceptional")
	}
	return strings.Join(parts, "|")
}

const (
	// Infinite disables the deadline of a wait.
	Infinite time.Duration = -1

	// UseResourceTimeout selects the timeout configured on the resource itself.
	UseResourceTimeout time.Duration = -2

	// Unlimited is the item count of a source that never runs dry.
	Unlimited = -1
)

// Deadline converts a relative timeout into an absolute deadline.
// The zero time means "no deadline".
func Deadline(timeout time.Duration) time.Time {
	if timeout < 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// Remaining returns the time left until deadline, or Infinite for the zero deadline.
// Elapsed deadlines report zero.
func Remaining(deadline time.Time) time.Duration {
	if deadline.IsZero() {
		return Infinite
	}
	d := time.Until(deadline)
	if d < 0 {
		return 0
	}
	return d
}

// IPVersion restricts name resolution to an address family.
type IPVersion int

const (
	IPAny IPVersion = iota
	IPv4
	IPv6
)

func (v IPVersion) String() string {
	switch v {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "any"
	}
}
