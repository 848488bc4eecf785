//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package transport

import "golang.org/x/sys/unix"

type (
	rawInet4 = unix.RawSockaddrInet4
	rawInet6 = unix.RawSockaddrInet6
)

const (
	afInet  = unix.AF_INET
	afInet6 = unix.AF_INET6
)

func setFamily4(r *rawInet4) {
	r.Len = unix.SizeofSockaddrInet4
	r.Family = unix.AF_INET
}

func setFamily6(r *rawInet6) {
	r.Len = unix.SizeofSockaddrInet6
	r.Family = unix.AF_INET6
}

// BSD sockaddrs start with sa_len followed by a one-byte sa_family.
func rawFamilyValue(raw []byte) int {
	return int(raw[1])
}
