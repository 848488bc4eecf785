// Package transport
// Author: momentics <momentics@gmail.com>
//
// Portable declarations shared by the per-OS socket adapters.

package transport

import (
	"errors"
	"syscall"
	"time"

	"github.com/momentics/hioload-net/api"
)

// Family is an address family understood by the adapter.
type Family int

const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "unspec"
	}
}

// SockType selects stream or datagram sockets.
type SockType int

const (
	SockAny SockType = iota
	SockStream
	SockDatagram
)

// ShutdownHow selects the direction closed by Shutdown.
type ShutdownHow int

const (
	ShutRead ShutdownHow = iota
	ShutWrite
	ShutBoth
)

// MaxRawAddrLen bounds every raw socket address handled by the library
// (sizeof(struct sockaddr_storage)).
const MaxRawAddrLen = 128

// PollFd describes one descriptor passed to Poll.
type PollFd struct {
	Fd      uintptr
	Events  api.EventMask
	Revents api.EventMask
}

var errBadTimeout = errors.New("transport: negative timeout other than infinite")

// Poll waits until one of fds is ready or timeout elapses; api.Infinite blocks.
// Revents of every entry is filled in. Interrupted calls return n == 0 and
// a nil error so that callers re-check their own deadline.
func Poll(fds []PollFd, timeout time.Duration) (int, error) {
	ms, err := TimeoutMillis(timeout)
	if err != nil {
		return 0, err
	}
	raw := make([]pollFd, len(fds))
	for i := range fds {
		raw[i] = makePollFd(fds[i].Fd, toPollEvents(fds[i].Events))
	}
	n, err := poll(raw, ms)
	if err != nil {
		if IsInterrupted(err) {
			return 0, nil
		}
		return 0, err
	}
	for i := range fds {
		fds[i].Revents = fromPollEvents(pollRevents(raw[i]), fds[i].Events)
	}
	return n, nil
}

// TimeoutMillis converts d to poll(2) milliseconds, rounding up so that a
// wait never returns before its deadline. api.Infinite maps to -1.
func TimeoutMillis(d time.Duration) (int, error) {
	switch {
	case d == api.Infinite:
		return -1, nil
	case d < 0:
		return 0, errBadTimeout
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	const maxMs = 1<<31 - 1
	if ms > maxMs {
		ms = maxMs
	}
	return int(ms), nil
}

func toPollEvents(m api.EventMask) int16 {
	var ev int16
	if m&api.EventReadable != 0 {
		ev |= pollIn
	}
	if m&api.EventWritable != 0 {
		ev |= pollOut
	}
	if m&api.EventExceptional != 0 {
		ev |= pollPri
	}
	return ev
}

// fromPollEvents maps raw revents back onto the requested mask. Error and
// hang-up conditions are reported as every requested event so that the
// following syscall surfaces the actual failure.
func fromPollEvents(rev int16, want api.EventMask) api.EventMask {
	var m api.EventMask
	if rev&pollIn != 0 {
		m |= api.EventReadable
	}
	if rev&pollOut != 0 {
		m |= api.EventWritable
	}
	if rev&pollPri != 0 {
		m |= api.EventExceptional
	}
	if rev&(pollErr|pollHup|pollNval) != 0 {
		m |= want
	}
	return m & want
}

// Errno extracts the OS error code carried by err, or 0.
func Errno(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}
