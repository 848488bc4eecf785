//go:build linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// eventfd(2)-backed wake channel.

package transport

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Waker is a pollable descriptor that any goroutine can make readable.
type Waker struct {
	efd int
}

func NewWaker() (*Waker, error) {
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Waker{efd: efd}, nil
}

// Fd returns the descriptor to poll for readability.
func (w *Waker) Fd() uintptr { return uintptr(w.efd) }

// Signal makes the waker readable. Safe for concurrent use.
func (w *Waker) Signal() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(w.efd, buf[:])
	if err != nil && IsWouldBlock(err) {
		// counter saturated, the waker is readable anyway
		return nil
	}
	return err
}

// Drain resets the waker to the non-readable state.
func (w *Waker) Drain() error {
	var buf [8]byte
	_, err := unix.Read(w.efd, buf[:])
	if err != nil && !IsWouldBlock(err) {
		return err
	}
	return nil
}

func (w *Waker) Close() error {
	return unix.Close(w.efd)
}
