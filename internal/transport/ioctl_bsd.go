//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package transport

// fionread is FIONREAD, _IOR('f', 127, int); x/sys/unix does not export it here.
const fionread = 0x4004667f
