// File: netio/source.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stream factory: accept loop for passive addresses, connect race for active ones.

package netio

import (
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/transport"
	"go.uber.org/zap"
)

// OpenMode selects how a StreamSource uses its Address.
type OpenMode int

const (
	// ModeActive dials out to the address.
	ModeActive OpenMode = iota
	// ModePassive binds and listens on the address.
	ModePassive
	// ModeUseAddressFlag listens when the address was resolved passive.
	ModeUseAddressFlag
)

func (m OpenMode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModePassive:
		return "passive"
	default:
		return "address-flag"
	}
}

// StreamSource produces up to count streams, either by accepting on a
// listening socket or by connecting to its address. It is an api.Resource
// so a listening source can be registered with a WaitingObject.
//
// A StreamSource is driven by one goroutine at a time.
type StreamSource struct {
	svc     *Services
	addr    *Address
	passive bool
	remain  int

	listener *SocketHandle
	timeout  time.Duration
	handler  api.WaitHandler

	race     *connectRace
	lastPeer *Address
	closed   bool
}

var _ api.Resource = (*StreamSource)(nil)

// NewStreamSource creates a source over addr. count is the number of
// streams to produce, or api.Unlimited. Passive sources bind and listen
// immediately; active sources connect lazily on Next.
func NewStreamSource(svc *Services, addr *Address, mode OpenMode, count int) (*StreamSource, error) {
	svc = orDefault(svc)
	if addr == nil || len(addr.records) == 0 {
		return nil, api.NewError(api.KindInvalidAddress, "stream source without address")
	}
	s := &StreamSource{
		svc:     svc,
		addr:    addr,
		passive: mode == ModePassive || (mode == ModeUseAddressFlag && addr.Passive()),
		remain:  count,
		timeout: svc.Config().DefaultTimeout,
	}
	if s.passive {
		if err := s.listen(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *StreamSource) listen() error {
	rec := s.addr.records[0]
	port := rec.AddrPort().Port()
	portErr := func(op string, err error) error {
		return api.NewError(api.KindPortOpen, op).
			WithErrno(transport.Errno(err)).
			WithContext("port", port).
			Wrap(err)
	}

	fd, err := transport.Socket(rec.transportFamily(), transport.SockStream)
	if err != nil {
		return portErr("socket failed", err)
	}
	if s.addr.Reusable() {
		if err := transport.SetReuseAddr(fd, true); err != nil {
			transport.Close(fd)
			return portErr("setsockopt failed", err)
		}
	}
	if rec.Family == api.IPv6 && rec.AddrPort().Addr().IsUnspecified() {
		if err := transport.SetV6Only(fd, false); err != nil {
			s.svc.Logger().Debug("dual-stack listen unavailable", zap.Error(err))
		}
	}
	if err := transport.Bind(fd, rec.raw); err != nil {
		transport.Close(fd)
		return portErr("bind failed", err)
	}
	backlog := s.svc.Config().ListenBacklog
	if backlog <= 0 {
		backlog = transport.MaxBacklog
	}
	if err := transport.Listen(fd, backlog); err != nil {
		transport.Close(fd)
		return portErr("listen failed", err)
	}
	s.listener = newSocketHandle(fd, api.EventReadable, s.timeout, s.svc.Logger())
	s.listener.SetWaitHandler(s.handler)
	s.svc.Logger().Debug("listening", zap.String("addr", s.addr.String(false)), zap.Uintptr("fd", fd))
	return nil
}

// Address returns the address the source was created with.
func (s *StreamSource) Address() *Address { return s.addr }

// Passive reports whether the source accepts rather than connects.
func (s *StreamSource) Passive() bool { return s.passive }

// HasItems reports whether Next can still produce a stream.
func (s *StreamSource) HasItems() bool {
	return !s.closed && s.remain != 0
}

// Next produces the next stream. It fails with ErrNoMoreItems once the
// count is exhausted.
func (s *StreamSource) Next() (*Stream, error) {
	if s.closed {
		return nil, closedError("next on closed source")
	}
	if s.remain == 0 {
		return nil, api.NewError(api.KindNoMoreItems, "stream source exhausted")
	}
	var (
		st  *Stream
		err error
	)
	if s.passive {
		st, err = s.accept()
	} else {
		st, err = s.connect()
	}
	if err != nil {
		return nil, err
	}
	if s.remain > 0 {
		s.remain--
	}
	st.SetWaitHandler(s.handler)
	return st, nil
}

func (s *StreamSource) accept() (*Stream, error) {
	deadline := s.listener.deadline()
	for {
		if _, err := s.listener.waitUntil(api.EventReadable, deadline); err != nil {
			return nil, err
		}
		fd, raw, err := transport.Accept(s.listener.fd)
		switch {
		case transport.IsWouldBlock(err) || transport.IsInterrupted(err):
			continue
		case err != nil:
			return nil, ioError("accept failed", err)
		}
		s.lastPeer = nil
		if peer, perr := AddressFromRaw(raw); perr == nil {
			s.lastPeer = peer
		}
		s.svc.Metrics().Add(MetricAccepted, 1)
		s.svc.Logger().Debug("accepted", zap.Uintptr("fd", fd), zap.String("peer", s.lastPeer.String(false)))
		return newStream(s.svc, fd), nil
	}
}

// PeerAddr returns the peer of the stream most recently produced by Next.
func (s *StreamSource) PeerAddr() *Address { return s.lastPeer }

// LocalAddr returns the bound address of a listening source.
func (s *StreamSource) LocalAddr() (*Address, error) {
	if s.listener == nil {
		return nil, api.NewError(api.KindInvalidAddress, "active source has no local address")
	}
	raw, err := transport.LocalAddr(s.listener.fd)
	if err != nil {
		return nil, ioError("getsockname failed", err)
	}
	a, err := AddressFromRaw(raw)
	if err != nil {
		return nil, err
	}
	a.passive = true
	return a, nil
}

// Fd returns the listening descriptor, or an invalid descriptor for
// active sources.
func (s *StreamSource) Fd() uintptr {
	if s.listener == nil {
		return ^uintptr(0)
	}
	return s.listener.fd
}

// DefaultWaitMask is Readable for listeners and Writable|Exceptional for
// connecting sources.
func (s *StreamSource) DefaultWaitMask() api.EventMask {
	if s.passive {
		return api.EventReadable
	}
	return api.EventWritable | api.EventExceptional
}

// SetTimeout bounds every accept or connect performed by Next.
func (s *StreamSource) SetTimeout(d time.Duration) {
	if d < 0 {
		d = api.Infinite
	}
	s.timeout = d
	if s.listener != nil {
		s.listener.SetTimeout(d)
	}
}

func (s *StreamSource) Timeout() time.Duration { return s.timeout }

// SetWaitHandler redirects the waits of the listener and of every stream
// produced afterwards. The connect race always multiplexes its
// candidates locally.
func (s *StreamSource) SetWaitHandler(h api.WaitHandler) {
	s.handler = h
	if s.listener != nil {
		s.listener.SetWaitHandler(h)
	}
}

// Wait waits on the listener, or on the in-flight connect candidates.
func (s *StreamSource) Wait(mask api.EventMask, timeout time.Duration) (api.EventMask, error) {
	if timeout == api.UseResourceTimeout {
		timeout = s.timeout
	}
	if s.listener != nil {
		return s.listener.Wait(mask, timeout)
	}
	if s.race == nil {
		if err := s.startRace(); err != nil {
			return api.EventNone, err
		}
	}
	return s.race.wait(mask, api.Deadline(timeout))
}

// Close releases the listener and any in-flight connect candidates.
func (s *StreamSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.abortRace()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
