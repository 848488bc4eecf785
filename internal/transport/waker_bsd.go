//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Self-pipe wake channel for unix systems without eventfd.

package transport

import "golang.org/x/sys/unix"

// Waker is a pollable descriptor that any goroutine can make readable.
type Waker struct {
	r, w int
}

func NewWaker() (*Waker, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, err
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, err
		}
	}
	return &Waker{r: p[0], w: p[1]}, nil
}

// Fd returns the descriptor to poll for readability.
func (w *Waker) Fd() uintptr { return uintptr(w.r) }

// Signal makes the waker readable. Safe for concurrent use.
func (w *Waker) Signal() error {
	_, err := unix.Write(w.w, []byte{1})
	if err != nil && IsWouldBlock(err) {
		// pipe full, still readable
		return nil
	}
	return err
}

// Drain resets the waker to the non-readable state.
func (w *Waker) Drain() error {
	var buf [64]byte
	for {
		n, err := unix.Read(w.r, buf[:])
		if err != nil {
			if IsWouldBlock(err) {
				return nil
			}
			return err
		}
		if n < len(buf) {
			return nil
		}
	}
}

func (w *Waker) Close() error {
	err := unix.Close(w.r)
	if werr := unix.Close(w.w); err == nil {
		err = werr
	}
	return err
}
