//go:build windows

package transport

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

type (
	rawInet4 = windows.RawSockaddrInet4
	rawInet6 = windows.RawSockaddrInet6
)

const (
	afInet  = windows.AF_INET
	afInet6 = windows.AF_INET6
)

func setFamily4(r *rawInet4) { r.Family = windows.AF_INET }
func setFamily6(r *rawInet6) { r.Family = windows.AF_INET6 }

func rawFamilyValue(raw []byte) int {
	return int(*(*uint16)(unsafe.Pointer(&raw[0])))
}
