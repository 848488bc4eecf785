//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

// internal/transport/transport_unix.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// POSIX socket adapter on golang.org/x/sys/unix.

package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

// MaxBacklog is the platform's maximum listen backlog.
const MaxBacklog = unix.SOMAXCONN

type pollFd = unix.PollFd

const (
	pollIn   = unix.POLLIN
	pollOut  = unix.POLLOUT
	pollPri  = unix.POLLPRI
	pollErr  = unix.POLLERR
	pollHup  = unix.POLLHUP
	pollNval = unix.POLLNVAL
)

func makePollFd(fd uintptr, events int16) pollFd {
	return unix.PollFd{Fd: int32(fd), Events: events}
}

func pollRevents(p pollFd) int16 { return p.Revents }

func poll(fds []pollFd, ms int) (int, error) {
	return unix.Poll(fds, ms)
}

// Socket creates a non-blocking, close-on-exec socket.
func Socket(family Family, typ SockType) (uintptr, error) {
	domain := unix.AF_INET
	if family == FamilyIPv6 {
		domain = unix.AF_INET6
	}
	sotype, proto := unix.SOCK_STREAM, unix.IPPROTO_TCP
	if typ == SockDatagram {
		sotype, proto = unix.SOCK_DGRAM, unix.IPPROTO_UDP
	}
	// SOCK_NONBLOCK is not available everywhere; fcntl works on every unix.
	fd, err := unix.Socket(domain, sotype, proto)
	if err != nil {
		return 0, err
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return 0, err
	}
	return uintptr(fd), nil
}

// Connect starts a connect; an in-progress connect is reported via IsInProgress.
func Connect(fd uintptr, raw []byte) error {
	sa, err := toSockaddr(raw)
	if err != nil {
		return err
	}
	return unix.Connect(int(fd), sa)
}

func Bind(fd uintptr, raw []byte) error {
	sa, err := toSockaddr(raw)
	if err != nil {
		return err
	}
	return unix.Bind(int(fd), sa)
}

func Listen(fd uintptr, backlog int) error {
	return unix.Listen(int(fd), backlog)
}

// Accept returns a new non-blocking descriptor and the raw peer address.
func Accept(fd uintptr) (uintptr, []byte, error) {
	nfd, sa, err := accept(int(fd))
	if err != nil {
		return 0, nil, err
	}
	return uintptr(nfd), fromSockaddr(sa), nil
}

// Recv reads once; peek leaves the bytes queued.
func Recv(fd uintptr, p []byte, peek bool) (int, error) {
	var (
		n   int
		err error
	)
	if peek {
		n, _, err = unix.Recvfrom(int(fd), p, unix.MSG_PEEK)
	} else {
		n, err = unix.Read(int(fd), p)
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func Send(fd uintptr, p []byte) (int, error) {
	n, err := unix.Write(int(fd), p)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecvFrom reads one datagram and returns the raw sender address.
func RecvFrom(fd uintptr, p []byte) (int, []byte, error) {
	n, sa, err := unix.Recvfrom(int(fd), p, 0)
	if err != nil {
		return 0, nil, err
	}
	return n, fromSockaddr(sa), nil
}

// SendTo sends one datagram to the raw address.
func SendTo(fd uintptr, p []byte, raw []byte) (int, error) {
	sa, err := toSockaddr(raw)
	if err != nil {
		return 0, err
	}
	if err := unix.Sendto(int(fd), p, 0, sa); err != nil {
		return 0, err
	}
	return len(p), nil
}

func Shutdown(fd uintptr, how ShutdownHow) error {
	h := unix.SHUT_RDWR
	switch how {
	case ShutRead:
		h = unix.SHUT_RD
	case ShutWrite:
		h = unix.SHUT_WR
	}
	return unix.Shutdown(int(fd), h)
}

func Close(fd uintptr) error {
	return unix.Close(int(fd))
}

// SocketError returns the pending SO_ERROR of fd, nil when the socket is clean.
func SocketError(fd uintptr) error {
	v, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}

// Available returns the number of bytes readable without blocking (FIONREAD).
func Available(fd uintptr) (int, error) {
	return unix.IoctlGetInt(int(fd), fionread)
}

func SetReuseAddr(fd uintptr, on bool) error {
	return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, boolInt(on))
}

func SetV6Only(fd uintptr, on bool) error {
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, boolInt(on))
}

// LocalAddr returns the raw address the socket is bound to.
func LocalAddr(fd uintptr) ([]byte, error) {
	sa, err := unix.Getsockname(int(fd))
	if err != nil {
		return nil, err
	}
	return fromSockaddr(sa), nil
}

// PeerAddr returns the raw address of the connected peer.
func PeerAddr(fd uintptr) ([]byte, error) {
	sa, err := unix.Getpeername(int(fd))
	if err != nil {
		return nil, err
	}
	return fromSockaddr(sa), nil
}

func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func IsInProgress(err error) bool {
	return errors.Is(err, unix.EINPROGRESS) || errors.Is(err, unix.EALREADY)
}

func IsInterrupted(err error) bool {
	return errors.Is(err, unix.EINTR)
}

// IsAddressFamilyUnsupported reports a missing IPv6 (or IPv4) stack.
func IsAddressFamilyUnsupported(err error) bool {
	return errors.Is(err, unix.EAFNOSUPPORT) || errors.Is(err, unix.EPROTONOSUPPORT)
}

func toSockaddr(raw []byte) (unix.Sockaddr, error) {
	ap, err := DecodeAddrPort(raw)
	if err != nil {
		return nil, err
	}
	if ap.Addr().Is4() {
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ap.Addr().As4()}, nil
	}
	return &unix.SockaddrInet6{
		Port:   int(ap.Port()),
		ZoneId: zoneIndex(ap.Addr().Zone()),
		Addr:   ap.Addr().As16(),
	}, nil
}

func fromSockaddr(sa unix.Sockaddr) []byte {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return EncodeAddrPort(addrPort4(v.Addr, v.Port))
	case *unix.SockaddrInet6:
		return EncodeAddrPort(addrPort6(v.Addr, v.ZoneId, v.Port))
	default:
		return nil
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
