//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation and factory.

package reactor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/transport"
	"golang.org/x/sys/unix"
)

// linuxReactor is an epoll-based event reactor. Every descriptor is added
// with EPOLLONESHOT so the kernel disables it after the first report.
type linuxReactor struct {
	epfd int

	mu     sync.Mutex
	armed  map[uintptr]api.EventMask
	raw    []unix.EpollEvent
	closed bool
}

// NewReactor constructs a new platform-specific Reactor for Linux.
func NewReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &linuxReactor{epfd: epfd, armed: make(map[uintptr]api.EventMask)}, nil
}

func epollEvents(mask api.EventMask) uint32 {
	ev := uint32(unix.EPOLLONESHOT)
	if mask&api.EventReadable != 0 {
		ev |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if mask&api.EventWritable != 0 {
		ev |= unix.EPOLLOUT
	}
	if mask&api.EventExceptional != 0 {
		ev |= unix.EPOLLPRI
	}
	return ev
}

// Arm adds fd to the interest list, or re-enables it with MOD when the
// kernel already knows it.
func (r *linuxReactor) Arm(fd uintptr, mask api.EventMask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: epollEvents(mask), Fd: int32(fd)}
	op := unix.EPOLL_CTL_MOD
	if _, known := r.armed[fd]; !known {
		op = unix.EPOLL_CTL_ADD
	}
	err := unix.EpollCtl(r.epfd, op, int(fd), &ev)
	switch {
	case errors.Is(err, unix.ENOENT):
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev)
	case errors.Is(err, unix.EEXIST):
		err = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &ev)
	}
	if err != nil {
		return fmt.Errorf("epoll ctl: %w", err)
	}
	r.armed[fd] = mask
	return nil
}

// Disarm removes fd from the interest list. Descriptors closed before
// Disarm have already left the epoll set, which is not an error.
func (r *linuxReactor) Disarm(fd uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, known := r.armed[fd]; !known {
		return nil
	}
	delete(r.armed, fd)
	err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	if err != nil && !errors.Is(err, unix.ENOENT) && !errors.Is(err, unix.EBADF) {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

func (r *linuxReactor) Wait(events []Event, timeout time.Duration) (int, error) {
	ms, err := transport.TimeoutMillis(timeout)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	if cap(r.raw) < len(events) {
		r.raw = make([]unix.EpollEvent, len(events))
	}
	raw := r.raw[:len(events)]
	r.mu.Unlock()

	if len(raw) == 0 {
		return 0, nil
	}
	n, err := unix.EpollWait(r.epfd, raw, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := 0
	for i := 0; i < n; i++ {
		fd := uintptr(raw[i].Fd)
		want, ok := r.armed[fd]
		if !ok {
			// disarmed while we were waiting
			continue
		}
		var m api.EventMask
		rev := raw[i].Events
		if rev&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
			m |= api.EventReadable
		}
		if rev&unix.EPOLLOUT != 0 {
			m |= api.EventWritable
		}
		if rev&unix.EPOLLPRI != 0 {
			m |= api.EventExceptional
		}
		if rev&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			m |= want
		}
		m &= want
		if m == api.EventNone {
			continue
		}
		events[out] = Event{Fd: fd, Mask: m}
		out++
	}
	sortEvents(events[:out])
	return out, nil
}

// Close closes the epoll instance.
func (r *linuxReactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.armed = nil
	return unix.Close(r.epfd)
}
