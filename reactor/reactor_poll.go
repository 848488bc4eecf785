//go:build !linux

// File: reactor/reactor_poll.go
// Author: momentics <momentics@gmail.com>
//
// poll(2) / WSAPoll based reactor for platforms without epoll.

package reactor

import (
	"sync"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/transport"
)

// pollReactor keeps the interest set in user space and hands it to
// transport.Poll on every Wait. Reported descriptors are dropped from the
// set, which gives the same one-shot behaviour as EPOLLONESHOT.
type pollReactor struct {
	mu     sync.Mutex
	armed  map[uintptr]api.EventMask
	closed bool
}

// NewReactor constructs the portable poll-based Reactor.
func NewReactor() (Reactor, error) {
	return &pollReactor{armed: make(map[uintptr]api.EventMask)}, nil
}

func (r *pollReactor) Arm(fd uintptr, mask api.EventMask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.armed[fd] = mask
	return nil
}

func (r *pollReactor) Disarm(fd uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	delete(r.armed, fd)
	return nil
}

func (r *pollReactor) Wait(events []Event, timeout time.Duration) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, ErrClosed
	}
	fds := make([]transport.PollFd, 0, len(r.armed))
	for fd, mask := range r.armed {
		fds = append(fds, transport.PollFd{Fd: fd, Events: mask})
	}
	r.mu.Unlock()

	n, err := transport.Poll(fds, timeout)
	if err != nil || n == 0 {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := 0
	for _, p := range fds {
		if p.Revents == api.EventNone || out == len(events) {
			continue
		}
		// re-armed with a different mask while polling: report nothing,
		// the new registration is picked up by the next Wait
		if cur, ok := r.armed[p.Fd]; !ok || cur != p.Events {
			continue
		}
		delete(r.armed, p.Fd)
		events[out] = Event{Fd: p.Fd, Mask: p.Revents}
		out++
	}
	sortEvents(events[:out])
	return out, nil
}

func (r *pollReactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.armed = nil
	return nil
}
