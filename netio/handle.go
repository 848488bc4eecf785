// File: netio/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-descriptor ownership and the default wait strategy.

package netio

import (
	"sync"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/transport"
	"go.uber.org/zap"
)

// SocketHandle owns exactly one OS socket. Close shuts the socket down and
// closes it exactly once; cleanup failures are logged, never escalated.
type SocketHandle struct {
	fd      uintptr
	mask    api.EventMask
	timeout time.Duration
	handler api.WaitHandler
	logger  *zap.Logger

	once   sync.Once
	closed bool
}

func newSocketHandle(fd uintptr, mask api.EventMask, timeout time.Duration, logger *zap.Logger) *SocketHandle {
	return &SocketHandle{fd: fd, mask: mask, timeout: timeout, logger: logger}
}

// Fd implements api.Resource.
func (h *SocketHandle) Fd() uintptr { return h.fd }

// DefaultWaitMask implements api.Resource.
func (h *SocketHandle) DefaultWaitMask() api.EventMask { return h.mask }

// SetTimeout sets the timeout used by waits that pass api.UseResourceTimeout.
func (h *SocketHandle) SetTimeout(d time.Duration) {
	if d < 0 {
		d = api.Infinite
	}
	h.timeout = d
}

func (h *SocketHandle) Timeout() time.Duration { return h.timeout }

// SetWaitHandler implements api.Resource.
func (h *SocketHandle) SetWaitHandler(wh api.WaitHandler) { h.handler = wh }

// Wait implements api.Resource.
func (h *SocketHandle) Wait(mask api.EventMask, timeout time.Duration) (api.EventMask, error) {
	if timeout == api.UseResourceTimeout {
		timeout = h.timeout
	}
	return h.waitUntil(mask, api.Deadline(timeout))
}

// deadline returns the absolute deadline of a wait started now.
func (h *SocketHandle) deadline() time.Time {
	return api.Deadline(h.timeout)
}

func (h *SocketHandle) waitUntil(mask api.EventMask, deadline time.Time) (api.EventMask, error) {
	if h.closed {
		return api.EventNone, api.NewError(api.KindClosed, "wait on closed socket")
	}
	if mask == api.EventNone {
		mask = h.mask
	}
	if h.handler != nil {
		return h.handler.WaitFd(h.fd, mask, deadline)
	}
	fds := []transport.PollFd{{Fd: h.fd, Events: mask}}
	for {
		_, err := transport.Poll(fds, api.Remaining(deadline))
		if err != nil {
			return api.EventNone, ioError("poll failed", err)
		}
		if fds[0].Revents != api.EventNone {
			return fds[0].Revents, nil
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return api.EventNone, timeoutError("wait timed out")
		}
	}
}

// Close shuts down both directions and closes the descriptor once.
func (h *SocketHandle) Close() error {
	var err error
	h.once.Do(func() {
		h.closed = true
		if serr := transport.Shutdown(h.fd, transport.ShutBoth); serr != nil {
			// unconnected sockets report ENOTCONN here
			h.logger.Debug("shutdown on close", zap.Uintptr("fd", h.fd), zap.Error(serr))
		}
		if err = transport.Close(h.fd); err != nil {
			h.logger.Debug("close failed", zap.Uintptr("fd", h.fd), zap.Error(err))
			err = ioError("close failed", err)
		}
	})
	return err
}

// detach gives up ownership without closing the descriptor.
func (h *SocketHandle) detach() uintptr {
	fd := h.fd
	h.once.Do(func() { h.closed = true })
	return fd
}

func ioError(op string, err error) error {
	return api.NewError(api.KindIO, op).WithErrno(transport.Errno(err)).Wrap(err)
}

func timeoutError(op string) error {
	return api.NewError(api.KindTimeout, op)
}

func closedError(op string) error {
	return api.NewError(api.KindClosed, op)
}
