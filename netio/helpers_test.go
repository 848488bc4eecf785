package netio_test

import (
	"context"
	"net/netip"
	"os"
	"runtime"
	"strconv"
	"testing"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/netio"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newServices(t *testing.T) *netio.Services {
	t.Helper()
	return netio.NewServices(netio.WithLogger(zaptest.NewLogger(t)))
}

// listenLoopback returns a passive source on 127.0.0.1 with an ephemeral
// port, plus the concrete address it is bound to.
func listenLoopback(t *testing.T, svc *netio.Services, count int) (*netio.StreamSource, *netio.Address) {
	t.Helper()
	addr, err := svc.Resolver().Resolve(context.Background(), "127.0.0.1", "0", api.IPv4)
	require.NoError(t, err)
	src, err := netio.NewStreamSource(svc, addr, netio.ModePassive, count)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	local, err := src.LocalAddr()
	require.NoError(t, err)
	require.NotZero(t, local.Port())
	return src, local
}

func dial(t *testing.T, svc *netio.Services, addr *netio.Address) *netio.Stream {
	t.Helper()
	src, err := netio.NewStreamSource(svc, addr, netio.ModeActive, 1)
	require.NoError(t, err)
	defer src.Close()
	st, err := src.Next()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// pair returns a connected client/server stream pair over loopback.
func pair(t *testing.T, svc *netio.Services) (client, server *netio.Stream) {
	t.Helper()
	src, local := listenLoopback(t, svc, 1)
	target, err := svc.Resolver().ResolveHostPort(context.Background(), "127.0.0.1:"+strconv.Itoa(int(local.Port())), api.IPv4)
	require.NoError(t, err)
	client = dial(t, svc, target)
	server, err = src.Next()
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	return client, server
}

// closedPort returns a loopback endpoint nobody listens on.
func closedPort(t *testing.T, svc *netio.Services) netip.AddrPort {
	t.Helper()
	addr, err := netio.AddressFromAddrPorts(true, netip.MustParseAddrPort("127.0.0.1:0"))
	require.NoError(t, err)
	src, err := netio.NewStreamSource(svc, addr, netio.ModePassive, 1)
	require.NoError(t, err)
	local, err := src.LocalAddr()
	require.NoError(t, err)
	require.NoError(t, src.Close())
	return local.AddrPort()
}

func openFds(t *testing.T) int {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("descriptor accounting needs /proc")
	}
	entries, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	return len(entries)
}
