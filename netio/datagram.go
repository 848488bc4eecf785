// File: netio/datagram.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pooled UDP messages and the bound socket producing them.

package netio

import (
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/transport"
	"github.com/momentics/hioload-net/pool"
	"go.uber.org/zap"
)

// Datagram is one UDP message: the received input, the output queued for
// sending and at most one bound peer. Sending always unbinds the peer, so
// a datagram is sent at most once unless a peer is bound again.
//
// Release returns the datagram to its source's pool. Unsent output is
// dropped, never sent implicitly.
type Datagram struct {
	src    *DatagramSource
	input  []byte
	output []byte

	peer    [transport.MaxRawAddrLen]byte
	peerLen int

	uid      uint64
	hasUID   bool
	released bool
}

// Input returns the received payload.
func (d *Datagram) Input() []byte { return d.input }

// Output returns the bytes queued for sending.
func (d *Datagram) Output() []byte { return d.output }

// SetOutput replaces the queued output with a copy of p.
func (d *Datagram) SetOutput(p []byte) {
	d.output = append(d.output[:0], p...)
}

// Write appends p to the queued output.
func (d *Datagram) Write(p []byte) (int, error) {
	d.output = append(d.output, p...)
	return len(p), nil
}

// Peer returns the bound peer, or nil when none is bound.
func (d *Datagram) Peer() *Address {
	if d.peerLen == 0 {
		return nil
	}
	a, err := AddressFromRaw(d.peer[:d.peerLen])
	if err != nil {
		return nil
	}
	return a
}

// BindPeer binds addr as the destination of the next Send.
func (d *Datagram) BindPeer(addr *Address) error {
	n, err := addr.CopyRaw(d.peer[:])
	if err != nil {
		return err
	}
	d.peerLen = n
	return nil
}

// UID returns the datagram's identifier, assigning the next value of the
// source's counter on first use.
func (d *Datagram) UID() uint64 {
	if !d.hasUID {
		d.uid = d.src.uids.Add(1)
		d.hasUID = true
	}
	return d.uid
}

// Send sends the output to the bound peer and unbinds it.
func (d *Datagram) Send() (int, error) {
	if d.peerLen == 0 {
		return 0, api.NewError(api.KindInvalidAddress, "datagram has no peer")
	}
	raw := append([]byte(nil), d.peer[:d.peerLen]...)
	d.peerLen = 0
	return d.src.sendTo(d.output, raw)
}

// SendTo sends the output to addr, bypassing and clearing the bound peer.
func (d *Datagram) SendTo(addr *Address) (int, error) {
	d.peerLen = 0
	raw := addr.Raw()
	if len(raw) == 0 {
		return 0, api.NewError(api.KindInvalidAddress, "datagram target is empty")
	}
	return d.src.sendTo(d.output, raw)
}

// Release returns the datagram to the pool. d must not be used afterwards;
// releasing it again is a no-op.
func (d *Datagram) Release() {
	if d.released || d.src == nil {
		return
	}
	d.released = true
	d.src.datagrams.Put(d)
}

// DatagramSource is a bound UDP socket. It prefers a dual-stack IPv6
// socket so that IPv4 peers are reachable too, and falls back to IPv4 on
// hosts without IPv6.
type DatagramSource struct {
	*SocketHandle
	svc       *Services
	family    transport.Family
	datagrams *pool.SyncPool[*Datagram]
	uids      atomic.Uint64
}

var _ api.Resource = (*DatagramSource)(nil)

// NewDatagramSource binds a UDP socket to port on every local address.
// Port 0 picks an ephemeral port. timeout bounds Receive and sends.
func NewDatagramSource(svc *Services, port uint16, timeout time.Duration) (*DatagramSource, error) {
	svc = orDefault(svc)
	logger := svc.Logger()
	portErr := func(op string, err error) error {
		return api.NewError(api.KindPortOpen, op).
			WithErrno(transport.Errno(err)).
			WithContext("port", port).
			Wrap(err)
	}

	family := transport.FamilyIPv6
	fd, err := transport.Socket(family, transport.SockDatagram)
	if err != nil && transport.IsAddressFamilyUnsupported(err) {
		family = transport.FamilyIPv4
		fd, err = transport.Socket(family, transport.SockDatagram)
	}
	if err != nil {
		return nil, portErr("socket failed", err)
	}

	bind := netip.AddrPortFrom(netip.IPv4Unspecified(), port)
	if family == transport.FamilyIPv6 {
		if err := transport.SetV6Only(fd, false); err != nil {
			logger.Debug("dual-stack datagram socket unavailable", zap.Error(err))
		}
		bind = netip.AddrPortFrom(netip.IPv6Unspecified(), port)
	}
	if err := transport.Bind(fd, transport.EncodeAddrPort(bind)); err != nil {
		transport.Close(fd)
		return nil, portErr("bind failed", err)
	}

	s := &DatagramSource{
		SocketHandle: newSocketHandle(fd, api.EventReadable, timeout, logger),
		svc:          svc,
		family:       family,
	}
	s.SetTimeout(timeout)
	s.datagrams = pool.NewSyncPool(func() *Datagram {
		return &Datagram{src: s}
	}, s.resetDatagram)
	s.datagrams.Prealloc(svc.Config().DatagramPoolPrealloc)
	logger.Debug("datagram source bound", zap.Stringer("family", family), zap.Uint16("port", port), zap.Uintptr("fd", fd))
	return s, nil
}

func (s *DatagramSource) resetDatagram(d *Datagram) {
	if d.input != nil {
		s.svc.buffers.Put(d.input)
	}
	d.input = nil
	d.output = d.output[:0]
	d.peerLen = 0
	d.uid = 0
	d.hasUID = false
}

// take hands out a pooled datagram and re-arms its Release.
func (s *DatagramSource) take() *Datagram {
	d := s.datagrams.Get()
	d.released = false
	return d
}

// Create returns an empty outbound datagram with no peer.
func (s *DatagramSource) Create() *Datagram {
	return s.take()
}

// CreateFor returns an empty outbound datagram bound to addr. It fails
// with an InvalidAddress error when addr does not fit the peer buffer.
func (s *DatagramSource) CreateFor(addr *Address) (*Datagram, error) {
	d := s.take()
	if err := d.BindPeer(addr); err != nil {
		d.Release()
		return nil, err
	}
	return d, nil
}

// Receive waits for the next datagram and returns it with its sender
// bound as peer.
func (s *DatagramSource) Receive() (*Datagram, error) {
	if s.closed {
		return nil, closedError("receive on closed source")
	}
	deadline := s.deadline()
	maxSize := s.svc.Config().MaxDatagramSize
	for {
		if _, err := s.waitUntil(api.EventReadable, deadline); err != nil {
			return nil, err
		}
		avail, err := transport.Available(s.fd)
		if err != nil {
			return nil, ioError("ioctl failed", err)
		}
		size := min(max(avail, 1), maxSize)
		buf := s.svc.buffers.Get(size)
		n, raw, err := transport.RecvFrom(s.fd, buf)
		switch {
		case transport.IsWouldBlock(err) || transport.IsInterrupted(err):
			s.svc.buffers.Put(buf)
			continue
		case err != nil:
			s.svc.buffers.Put(buf)
			return nil, ioError("recvfrom failed", err)
		}
		d := s.take()
		d.input = buf[:n]
		d.peerLen = copy(d.peer[:], normalizePeer(raw))
		s.svc.Metrics().Add(MetricDatagramsIn, 1)
		return d, nil
	}
}

// normalizePeer turns IPv4-mapped IPv6 senders into plain IPv4 addresses.
func normalizePeer(raw []byte) []byte {
	ap, err := transport.DecodeAddrPort(raw)
	if err != nil || !ap.Addr().Is4In6() {
		return raw
	}
	return transport.EncodeAddrPort(netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()))
}

// targetFor adapts a peer to the socket family: IPv4 peers are mapped
// into IPv6 on dual-stack sockets.
func (s *DatagramSource) targetFor(raw []byte) ([]byte, error) {
	ap, err := transport.DecodeAddrPort(raw)
	if err != nil {
		return nil, api.NewError(api.KindInvalidAddress, "datagram peer").Wrap(err)
	}
	switch {
	case s.family == transport.FamilyIPv6 && ap.Addr().Is4():
		return transport.EncodeAddrPort(netip.AddrPortFrom(netip.AddrFrom16(ap.Addr().As16()), ap.Port())), nil
	case s.family == transport.FamilyIPv4 && ap.Addr().Is4In6():
		return transport.EncodeAddrPort(netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())), nil
	case s.family == transport.FamilyIPv4 && ap.Addr().Is6():
		return nil, api.NewError(api.KindInvalidAddress, "IPv6 peer on IPv4 socket").
			WithContext("peer", ap.String())
	}
	return raw, nil
}

func (s *DatagramSource) sendTo(p []byte, raw []byte) (int, error) {
	if s.closed {
		return 0, closedError("send on closed source")
	}
	target, err := s.targetFor(raw)
	if err != nil {
		return 0, err
	}
	deadline := s.deadline()
	for {
		if _, err := s.waitUntil(api.EventWritable, deadline); err != nil {
			return 0, err
		}
		n, err := transport.SendTo(s.fd, p, target)
		switch {
		case transport.IsWouldBlock(err) || transport.IsInterrupted(err):
			continue
		case err != nil:
			return 0, ioError("sendto failed", err)
		}
		s.svc.Metrics().Add(MetricDatagramsOut, 1)
		return n, nil
	}
}

// LocalAddr returns the bound address, including the chosen port.
func (s *DatagramSource) LocalAddr() (*Address, error) {
	raw, err := transport.LocalAddr(s.fd)
	if err != nil {
		return nil, ioError("getsockname failed", err)
	}
	return AddressFromRaw(raw)
}
