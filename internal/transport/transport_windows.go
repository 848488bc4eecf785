//go:build windows
// +build windows

// Package transport
// Author: momentics <momentics@gmail.com>
//
// Winsock adapter on golang.org/x/sys/windows. Calls missing from x/sys
// (accept, WSAPoll) are bound lazily from ws2_32.dll.

package transport

import (
	"errors"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// MaxBacklog is the platform's maximum listen backlog (SOMAXCONN).
const MaxBacklog = 0x7fffffff

const (
	fionbio  = 0x8004667e
	fionread = 0x4004667f
	msgPeek  = 0x2
	soError  = 0x1007
)

// Winsock codes absent from some x/sys releases.
const (
	wsaeInterrupted  syscall.Errno = 10004
	wsaeWouldBlock   syscall.Errno = 10035
	wsaeInProgress   syscall.Errno = 10036
	wsaeAlready      syscall.Errno = 10037
	wsaeAFNoSupport  syscall.Errno = 10047
	wsaeProtoNoSuppt syscall.Errno = 10043
)

var (
	modws2_32     = windows.NewLazySystemDLL("ws2_32.dll")
	procAccept    = modws2_32.NewProc("accept")
	procWSAPoll   = modws2_32.NewProc("WSAPoll")
	wsaStartOnce  sync.Once
	wsaStartError error
)

// WSAPOLLFD layout.
type pollFd struct {
	Fd      windows.Handle
	Events  int16
	Revents int16
}

const (
	pollIn   = 0x0100 | 0x0200 // POLLRDNORM | POLLRDBAND
	pollOut  = 0x0010          // POLLWRNORM
	pollPri  = 0               // POLLPRI is rejected by the Microsoft provider
	pollErr  = 0x0001
	pollHup  = 0x0002
	pollNval = 0x0004
)

func makePollFd(fd uintptr, events int16) pollFd {
	return pollFd{Fd: windows.Handle(fd), Events: events}
}

func pollRevents(p pollFd) int16 { return p.Revents }

func poll(fds []pollFd, ms int) (int, error) {
	if err := startup(); err != nil {
		return 0, err
	}
	if len(fds) == 0 {
		// WSAPoll rejects an empty set
		wait := uint32(windows.INFINITE)
		if ms >= 0 {
			wait = uint32(ms)
		}
		windows.SleepEx(wait, true)
		return 0, nil
	}
	r, _, e := procWSAPoll.Call(
		uintptr(unsafe.Pointer(&fds[0])),
		uintptr(len(fds)),
		uintptr(int32(ms)),
	)
	if int32(r) == -1 {
		return 0, e
	}
	return int(r), nil
}

func startup() error {
	wsaStartOnce.Do(func() {
		var d windows.WSAData
		wsaStartError = windows.WSAStartup(uint32(0x202), &d)
	})
	return wsaStartError
}

// Socket creates a non-blocking socket.
func Socket(family Family, typ SockType) (uintptr, error) {
	if err := startup(); err != nil {
		return 0, err
	}
	domain := windows.AF_INET
	if family == FamilyIPv6 {
		domain = windows.AF_INET6
	}
	sotype, proto := windows.SOCK_STREAM, windows.IPPROTO_TCP
	if typ == SockDatagram {
		sotype, proto = windows.SOCK_DGRAM, windows.IPPROTO_UDP
	}
	h, err := windows.Socket(domain, sotype, proto)
	if err != nil {
		return 0, err
	}
	if err := setNonblock(h); err != nil {
		windows.Closesocket(h)
		return 0, err
	}
	return uintptr(h), nil
}

func setNonblock(h windows.Handle) error {
	var mode uint32 = 1
	var returned uint32
	return windows.WSAIoctl(h, fionbio,
		(*byte)(unsafe.Pointer(&mode)), uint32(unsafe.Sizeof(mode)),
		nil, 0, &returned, nil, 0)
}

func Connect(fd uintptr, raw []byte) error {
	sa, err := toSockaddr(raw)
	if err != nil {
		return err
	}
	return windows.Connect(windows.Handle(fd), sa)
}

func Bind(fd uintptr, raw []byte) error {
	sa, err := toSockaddr(raw)
	if err != nil {
		return err
	}
	return windows.Bind(windows.Handle(fd), sa)
}

func Listen(fd uintptr, backlog int) error {
	return windows.Listen(windows.Handle(fd), backlog)
}

// Accept returns a new non-blocking socket and the raw peer address.
func Accept(fd uintptr) (uintptr, []byte, error) {
	var rsa windows.RawSockaddrAny
	l := int32(unsafe.Sizeof(rsa))
	r, _, e := procAccept.Call(fd, uintptr(unsafe.Pointer(&rsa)), uintptr(unsafe.Pointer(&l)))
	h := windows.Handle(r)
	if h == windows.InvalidHandle {
		return 0, nil, e
	}
	if err := setNonblock(h); err != nil {
		windows.Closesocket(h)
		return 0, nil, err
	}
	return uintptr(h), rawCopy(&rsa, l), nil
}

func Recv(fd uintptr, p []byte, peek bool) (int, error) {
	var flags uint32
	if peek {
		flags = msgPeek
	}
	buf := windows.WSABuf{Len: uint32(len(p))}
	if len(p) > 0 {
		buf.Buf = &p[0]
	}
	var n uint32
	err := windows.WSARecv(windows.Handle(fd), &buf, 1, &n, &flags, nil, nil)
	return int(n), err
}

func Send(fd uintptr, p []byte) (int, error) {
	buf := windows.WSABuf{Len: uint32(len(p))}
	if len(p) > 0 {
		buf.Buf = &p[0]
	}
	var n uint32
	err := windows.WSASend(windows.Handle(fd), &buf, 1, &n, 0, nil, nil)
	return int(n), err
}

func RecvFrom(fd uintptr, p []byte) (int, []byte, error) {
	var rsa windows.RawSockaddrAny
	l := int32(unsafe.Sizeof(rsa))
	buf := windows.WSABuf{Len: uint32(len(p))}
	if len(p) > 0 {
		buf.Buf = &p[0]
	}
	var n, flags uint32
	if err := windows.WSARecvFrom(windows.Handle(fd), &buf, 1, &n, &flags, &rsa, &l, nil, nil); err != nil {
		return 0, nil, err
	}
	return int(n), rawCopy(&rsa, l), nil
}

func SendTo(fd uintptr, p []byte, raw []byte) (int, error) {
	if len(raw) > int(unsafe.Sizeof(windows.RawSockaddrAny{})) {
		return 0, ErrRawFamily
	}
	var rsa windows.RawSockaddrAny
	copy(rawView(unsafe.Pointer(&rsa), unsafe.Sizeof(rsa)), raw)
	buf := windows.WSABuf{Len: uint32(len(p))}
	if len(p) > 0 {
		buf.Buf = &p[0]
	}
	var n uint32
	err := windows.WSASendTo(windows.Handle(fd), &buf, 1, &n, 0, &rsa, int32(len(raw)), nil, nil)
	return int(n), err
}

func Shutdown(fd uintptr, how ShutdownHow) error {
	h := windows.SHUT_RDWR
	switch how {
	case ShutRead:
		h = windows.SHUT_RD
	case ShutWrite:
		h = windows.SHUT_WR
	}
	return windows.Shutdown(windows.Handle(fd), h)
}

func Close(fd uintptr) error {
	return windows.Closesocket(windows.Handle(fd))
}

func SocketError(fd uintptr) error {
	v, err := windows.GetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, soError)
	if err != nil {
		return err
	}
	if v != 0 {
		return syscall.Errno(v)
	}
	return nil
}

func Available(fd uintptr) (int, error) {
	var n, returned uint32
	err := windows.WSAIoctl(windows.Handle(fd), fionread, nil, 0,
		(*byte)(unsafe.Pointer(&n)), uint32(unsafe.Sizeof(n)), &returned, nil, 0)
	return int(n), err
}

func SetReuseAddr(fd uintptr, on bool) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, boolInt(on))
}

func SetV6Only(fd uintptr, on bool) error {
	return windows.SetsockoptInt(windows.Handle(fd), windows.IPPROTO_IPV6, windows.IPV6_V6ONLY, boolInt(on))
}

func LocalAddr(fd uintptr) ([]byte, error) {
	sa, err := windows.Getsockname(windows.Handle(fd))
	if err != nil {
		return nil, err
	}
	return fromSockaddr(sa), nil
}

func PeerAddr(fd uintptr) ([]byte, error) {
	sa, err := windows.Getpeername(windows.Handle(fd))
	if err != nil {
		return nil, err
	}
	return fromSockaddr(sa), nil
}

func IsWouldBlock(err error) bool {
	return errors.Is(err, wsaeWouldBlock)
}

// A non-blocking Winsock connect reports WSAEWOULDBLOCK rather than EINPROGRESS.
func IsInProgress(err error) bool {
	return errors.Is(err, wsaeWouldBlock) || errors.Is(err, wsaeInProgress) || errors.Is(err, wsaeAlready)
}

func IsInterrupted(err error) bool {
	return errors.Is(err, wsaeInterrupted)
}

func IsAddressFamilyUnsupported(err error) bool {
	return errors.Is(err, wsaeAFNoSupport) || errors.Is(err, wsaeProtoNoSuppt)
}

func rawCopy(rsa *windows.RawSockaddrAny, l int32) []byte {
	if l <= 0 || l > int32(unsafe.Sizeof(*rsa)) {
		return nil
	}
	return rawBytes(unsafe.Pointer(rsa), uintptr(l))
}

func toSockaddr(raw []byte) (windows.Sockaddr, error) {
	ap, err := DecodeAddrPort(raw)
	if err != nil {
		return nil, err
	}
	if ap.Addr().Is4() {
		return &windows.SockaddrInet4{Port: int(ap.Port()), Addr: ap.Addr().As4()}, nil
	}
	return &windows.SockaddrInet6{
		Port:   int(ap.Port()),
		ZoneId: zoneIndex(ap.Addr().Zone()),
		Addr:   ap.Addr().As16(),
	}, nil
}

func fromSockaddr(sa windows.Sockaddr) []byte {
	switch v := sa.(type) {
	case *windows.SockaddrInet4:
		return EncodeAddrPort(addrPort4(v.Addr, v.Port))
	case *windows.SockaddrInet6:
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
