//go:build linux

package transport

import "golang.org/x/sys/unix"

// fionread is the ioctl request for the number of readable bytes.
const fionread = unix.SIOCINQ
