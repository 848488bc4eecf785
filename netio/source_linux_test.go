//go:build linux

package netio_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/netio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// saturatedListener returns a loopback port whose accept queue is full, so
// further SYNs are dropped and connects to it hang.
func saturatedListener(t *testing.T) netip.AddrPort {
	t.Helper()
	lfd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(lfd) })
	require.NoError(t, unix.Bind(lfd, &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))
	require.NoError(t, unix.Listen(lfd, 0))
	sa, err := unix.Getsockname(lfd)
	require.NoError(t, err)
	sa4 := sa.(*unix.SockaddrInet4)
	target := &unix.SockaddrInet4{Addr: sa4.Addr, Port: sa4.Port}

	for i := 0; i < 4; i++ {
		fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
		require.NoError(t, err)
		t.Cleanup(func() { unix.Close(fd) })
		_ = unix.Connect(fd, target)
		pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		_, _ = unix.Poll(pfd, 100)
	}
	return netip.AddrPortFrom(netip.AddrFrom4(sa4.Addr), uint16(sa4.Port))
}

func TestConnectRaceTimeout(t *testing.T) {
	svc := newServices(t)
	target, err := netio.AddressFromAddrPorts(false, saturatedListener(t))
	require.NoError(t, err)

	before := openFds(t)
	src, err := netio.NewStreamSource(svc, target, netio.ModeActive, 1)
	require.NoError(t, err)
	src.SetTimeout(300 * time.Millisecond)

	start := time.Now()
	_, err = src.Next()
	elapsed := time.Since(start)

	require.ErrorIs(t, err, api.ErrConnectFailed)
	assert.True(t, api.IsTimeout(err))
	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	var e *api.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, target.String(false), e.ContextValue("address"))

	// the timed-out candidate is already closed, before Close runs
	assert.Equal(t, before, openFds(t))
	require.NoError(t, src.Close())
	assert.Equal(t, before, openFds(t))
}
