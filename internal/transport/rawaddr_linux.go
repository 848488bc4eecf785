//go:build linux

package transport

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

type (
	rawInet4 = unix.RawSockaddrInet4
	rawInet6 = unix.RawSockaddrInet6
)

const (
	afInet  = unix.AF_INET
	afInet6 = unix.AF_INET6
)

func setFamily4(r *rawInet4) { r.Family = unix.AF_INET }
func setFamily6(r *rawInet6) { r.Family = unix.AF_INET6 }

// sa_family is a host-order uint16 at offset 0.
func rawFamilyValue(raw []byte) int {
	return int(*(*uint16)(unsafe.Pointer(&raw[0])))
}
