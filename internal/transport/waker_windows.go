//go:build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loopback UDP wake channel. WSAPoll only watches sockets, so the waker is a
// datagram socket bound to 127.0.0.1 that sends to itself.

package transport

import (
	"net/netip"
	"sync"
)

// Waker is a pollable descriptor that any goroutine can make readable.
type Waker struct {
	fd   uintptr
	self []byte
	mu   sync.Mutex
}

func NewWaker() (*Waker, error) {
	fd, err := Socket(FamilyIPv4, SockDatagram)
	if err != nil {
		return nil, err
	}
	if err := Bind(fd, EncodeAddrPort(netip.MustParseAddrPort("127.0.0.1:0"))); err != nil {
		Close(fd)
		return nil, err
	}
	self, err := LocalAddr(fd)
	if err != nil {
		Close(fd)
		return nil, err
	}
	return &Waker{fd: fd, self: self}, nil
}

// Fd returns the descriptor to poll for readability.
func (w *Waker) Fd() uintptr { return w.fd }

// Signal makes the waker readable. Safe for concurrent use.
func (w *Waker) Signal() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := SendTo(w.fd, []byte{1}, w.self)
	if err != nil && IsWouldBlock(err) {
		return nil
	}
	return err
}

// Drain resets the waker to the non-readable state.
func (w *Waker) Drain() error {
	var buf [16]byte
	for {
		if _, _, err := RecvFrom(w.fd, buf[:]); err != nil {
			if IsWouldBlock(err) {
				return nil
			}
			return err
		}
	}
}

func (w *Waker) Close() error {
	return Close(w.fd)
}
