// File: netio/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Full-duplex TCP byte stream.

package netio

import (
	"io"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/transport"
	"go.uber.org/zap"
)

// Stream is a connected TCP socket. Once the peer's end of stream has been
// observed every Read returns (0, io.EOF); once the output side is closed
// every Send fails. A timeout leaves the stream usable.
//
// A Stream must not be read or written from several goroutines at once.
type Stream struct {
	*SocketHandle
	svc *Services

	eof          bool
	outputClosed bool
	ready        int // bytes known to be readable
}

var (
	_ api.Resource       = (*Stream)(nil)
	_ io.ReadWriteCloser = (*Stream)(nil)
)

func newStream(svc *Services, fd uintptr) *Stream {
	cfg := svc.Config()
	return &Stream{
		SocketHandle: newSocketHandle(fd, api.EventReadable, cfg.DefaultTimeout, svc.Logger()),
		svc:          svc,
	}
}

// Read receives into p. It returns (0, io.EOF) once the peer has closed.
func (s *Stream) Read(p []byte) (int, error) {
	return s.recv(p, false)
}

// Peek is Read without consuming the bytes.
func (s *Stream) Peek(p []byte) (int, error) {
	return s.recv(p, true)
}

func (s *Stream) recv(p []byte, peek bool) (int, error) {
	if s.closed {
		return 0, closedError("recv on closed stream")
	}
	if s.eof {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	deadline := s.deadline()
	for {
		if s.ready == 0 {
			if _, err := s.waitUntil(api.EventReadable, deadline); err != nil {
				return 0, err
			}
		}
		n, err := transport.Recv(s.fd, p, peek)
		switch {
		case transport.IsWouldBlock(err) || transport.IsInterrupted(err):
			s.ready = 0
			continue
		case err != nil:
			return 0, ioError("recv failed", err)
		case n == 0:
			s.eof = true
			s.ready = 0
			return 0, io.EOF
		}
		if peek {
			s.ready = max(s.ready, n)
		} else {
			s.ready = max(s.ready-n, 0)
			s.svc.Metrics().Add(MetricBytesRead, int64(n))
		}
		return n, nil
	}
}

// Send issues one send of p after waiting for writability and returns
// the number of bytes the OS accepted.
func (s *Stream) Send(p []byte) (int, error) {
	switch {
	case s.closed:
		return 0, ioError("send on closed stream", nil)
	case s.outputClosed:
		return 0, ioError("send after output closed", nil)
	case s.eof:
		return 0, ioError("send after end of stream", nil)
	}
	if len(p) == 0 {
		return 0, nil
	}
	deadline := s.deadline()
	for {
		if _, err := s.waitUntil(api.EventWritable, deadline); err != nil {
			return 0, err
		}
		n, err := transport.Send(s.fd, p)
		switch {
		case transport.IsWouldBlock(err) || transport.IsInterrupted(err):
			continue
		case err != nil:
			return 0, ioError("send failed", err)
		}
		s.svc.Metrics().Add(MetricBytesWritten, int64(n))
		return n, nil
	}
}

// Write sends all of p, looping over Send.
func (s *Stream) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := s.Send(p[written:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// CanRead reports whether a Read would not block. It is false once the
// end of stream has been observed.
func (s *Stream) CanRead() (bool, error) {
	n, err := s.DataReady()
	return n > 0 && !s.eof, err
}

// DataReady returns a hint of how many bytes can be read without
// blocking. A pending end of stream counts as one readable byte so that
// the following Read discovers it.
func (s *Stream) DataReady() (int, error) {
	if s.closed {
		return 0, closedError("probe on closed stream")
	}
	if s.eof {
		return 1, nil
	}
	if s.ready > 0 {
		return s.ready, nil
	}
	fds := []transport.PollFd{{Fd: s.fd, Events: api.EventReadable}}
	if _, err := transport.Poll(fds, 0); err != nil {
		return 0, ioError("poll failed", err)
	}
	if fds[0].Revents == api.EventNone {
		return 0, nil
	}
	avail, err := transport.Available(s.fd)
	if err != nil {
		return 0, ioError("ioctl failed", err)
	}
	if avail == 0 {
		return 1, nil
	}
	s.ready = avail
	return avail, nil
}

// CloseOutput half-closes the stream. Reads stay valid until the peer
// closes its side.
func (s *Stream) CloseOutput() error {
	if s.closed {
		return closedError("shutdown on closed stream")
	}
	if s.outputClosed {
		return nil
	}
	s.outputClosed = true
	if err := transport.Shutdown(s.fd, transport.ShutWrite); err != nil {
		return ioError("shutdown failed", err)
	}
	return nil
}

// EOF reports whether the peer's end of stream has been observed.
func (s *Stream) EOF() bool { return s.eof }

// OutputClosed reports whether CloseOutput has been called.
func (s *Stream) OutputClosed() bool { return s.outputClosed }

// LocalAddr returns the address the stream is bound to.
func (s *Stream) LocalAddr() (*Address, error) {
	raw, err := transport.LocalAddr(s.fd)
	if err != nil {
		return nil, ioError("getsockname failed", err)
	}
	return AddressFromRaw(raw)
}

// PeerAddr returns the address of the remote end.
func (s *Stream) PeerAddr() (*Address, error) {
	raw, err := transport.PeerAddr(s.fd)
	if err != nil {
		return nil, ioError("getpeername failed", err)
	}
	return AddressFromRaw(raw)
}

// Close fully shuts the stream down and releases its descriptor.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.svc.Logger().Debug("stream closed", zap.Uintptr("fd", s.fd),
		zap.Bool("eof", s.eof), zap.Bool("output_closed", s.outputClosed))
	return s.SocketHandle.Close()
}
