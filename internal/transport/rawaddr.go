// Package transport
// Author: momentics <momentics@gmail.com>
//
// Byte-exact encoding of platform socket addresses. The layout is that of
// the host's sockaddr_in / sockaddr_in6, so a raw address can be handed to
// the OS unchanged and round-trips within one process.

package transport

import (
	"errors"
	"net"
	"net/netip"
	"strconv"
	"unsafe"
)

var (
	ErrRawTooShort = errors.New("transport: raw socket address too short")
	ErrRawFamily   = errors.New("transport: unsupported raw address family")
)

// EncodeAddrPort renders ap in the platform sockaddr layout.
func EncodeAddrPort(ap netip.AddrPort) []byte {
	addr := ap.Addr()
	if addr.Is4() {
		var r rawInet4
		setFamily4(&r)
		putPort(&r.Port, ap.Port())
		r.Addr = addr.As4()
		return rawBytes(unsafe.Pointer(&r), unsafe.Sizeof(r))
	}
	var r rawInet6
	setFamily6(&r)
	putPort(&r.Port, ap.Port())
	r.Addr = addr.As16()
	r.Scope_id = zoneIndex(addr.Zone())
	return rawBytes(unsafe.Pointer(&r), unsafe.Sizeof(r))
}

// DecodeAddrPort parses a raw platform sockaddr.
func DecodeAddrPort(raw []byte) (netip.AddrPort, error) {
	fam, err := RawFamily(raw)
	if err != nil {
		return netip.AddrPort{}, err
	}
	switch fam {
	case FamilyIPv4:
		var r rawInet4
		if len(raw) < int(unsafe.Sizeof(r)) {
			return netip.AddrPort{}, ErrRawTooShort
		}
		copy(rawView(unsafe.Pointer(&r), unsafe.Sizeof(r)), raw)
		return netip.AddrPortFrom(netip.AddrFrom4(r.Addr), getPort(&r.Port)), nil
	default:
		var r rawInet6
		if len(raw) < int(unsafe.Sizeof(r)) {
			return netip.AddrPort{}, ErrRawTooShort
		}
		copy(rawView(unsafe.Pointer(&r), unsafe.Sizeof(r)), raw)
		addr := netip.AddrFrom16(r.Addr)
		if r.Scope_id != 0 {
			addr = addr.WithZone(zoneName(r.Scope_id))
		}
		return netip.AddrPortFrom(addr, getPort(&r.Port)), nil
	}
}

// RawFamily reports the family stored in a raw sockaddr.
func RawFamily(raw []byte) (Family, error) {
	if len(raw) < 2 {
		return FamilyUnspec, ErrRawTooShort
	}
	switch rawFamilyValue(raw) {
	case afInet:
		return FamilyIPv4, nil
	case afInet6:
		return FamilyIPv6, nil
	default:
		return FamilyUnspec, ErrRawFamily
	}
}

// putPort stores a port in network byte order regardless of host endianness.
func putPort(field *uint16, port uint16) {
	p := (*[2]byte)(unsafe.Pointer(field))
	p[0] = byte(port >> 8)
	p[1] = byte(port)
}

func getPort(field *uint16) uint16 {
	p := (*[2]byte)(unsafe.Pointer(field))
	return uint16(p[0])<<8 | uint16(p[1])
}

func addrPort4(a [4]byte, port int) netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(a), uint16(port))
}

func addrPort6(a [16]byte, zone uint32, port int) netip.AddrPort {
	addr := netip.AddrFrom16(a)
	if zone != 0 {
		addr = addr.WithZone(zoneName(zone))
	}
	return netip.AddrPortFrom(addr, uint16(port))
}

func rawView(ptr unsafe.Pointer, n uintptr) []byte {
	return unsafe.Slice((*byte)(ptr), n)
}

func rawBytes(ptr unsafe.Pointer, n uintptr) []byte {
	out := make([]byte, n)
	copy(out, rawView(ptr, n))
	return out
}

func zoneIndex(zone string) uint32 {
	if zone == "" {
		return 0
	}
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n)
	}
	if ifc, err := net.InterfaceByName(zone); err == nil {
		return uint32(ifc.Index)
	}
	return 0
}

func zoneName(idx uint32) string {
	if ifc, err := net.InterfaceByIndex(int(idx)); err == nil {
		return ifc.Name
	}
	return strconv.FormatUint(uint64(idx), 10)
}
