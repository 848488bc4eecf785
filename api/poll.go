// Package api
// Author: momentics
//
// Wait contract shared by every network resource and by the multiplexers
// that can stand in for a resource's own blocking wait.

package api

import "time"

// Resource is anything owning a single OS descriptor that can be waited on.
type Resource interface {
	// Fd returns the underlying descriptor (fd on Unix, SOCKET on Windows).
	Fd() uintptr

	// DefaultWaitMask is the event the resource naturally waits for.
	DefaultWaitMask() EventMask

	SetTimeout(d time.Duration)
	Timeout() time.Duration

	// Wait blocks until one of mask is observed or the timeout elapses.
	// UseResourceTimeout selects the configured timeout.
	Wait(mask EventMask, timeout time.Duration) (EventMask, error)

	// SetWaitHandler redirects Wait through h. A nil h restores the direct OS wait.
	SetWaitHandler(h WaitHandler)
}

// WaitHandler is a pluggable wait strategy. Implementations must return
// EventNone together with an ErrTimeout-kind error when deadline passes.
// A zero deadline means wait forever.
type WaitHandler interface {
	WaitFd(fd uintptr, mask EventMask, deadline time.Time) (EventMask, error)
}

// WaitHandlerFunc adapts a plain function to WaitHandler.
type WaitHandlerFunc func(fd uintptr, mask EventMask, deadline time.Time) (EventMask, error)

// WaitFd implements WaitHandler.
func (f WaitHandlerFunc) WaitFd(fd uintptr, mask EventMask, deadline time.Time) (EventMask, error) {
	return f(fd, mask, deadline)
}
