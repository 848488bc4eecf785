package netio_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/netio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptCountExhaustion(t *testing.T) {
	svc := newServices(t)
	src, local := listenLoopback(t, svc, 3)

	for i := 0; i < 3; i++ {
		require.True(t, src.HasItems())
		c := dial(t, svc, local)
		s, err := src.Next()
		require.NoError(t, err)
		require.NoError(t, s.Close())
		require.NoError(t, c.Close())
	}

	assert.False(t, src.HasItems())
	done := make(chan error, 1)
	go func() {
		_, err := src.Next()
		done <- err
	}()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, api.ErrNoMoreItems)
	case <-time.After(time.Second):
		t.Fatal("Next blocked on an exhausted source")
	}
}

func TestUnlimitedSourceKeepsProducing(t *testing.T) {
	svc := newServices(t)
	src, local := listenLoopback(t, svc, api.Unlimited)

	for i := 0; i < 5; i++ {
		dial(t, svc, local)
		s, err := src.Next()
		require.NoError(t, err)
		s.Close()
	}
	assert.True(t, src.HasItems())
}

func TestConnectRacePicksReachableCandidate(t *testing.T) {
	svc := newServices(t)
	_, local := listenLoopback(t, svc, api.Unlimited)

	refused1 := closedPort(t, svc)
	refused2 := closedPort(t, svc)
	target, err := netio.AddressFromAddrPorts(false, refused1, local.AddrPort(), refused2)
	require.NoError(t, err)

	before := openFds(t)

	src, err := netio.NewStreamSource(svc, target, netio.ModeActive, 2)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		st, err := src.Next()
		require.NoError(t, err)
		peer, err := st.PeerAddr()
		require.NoError(t, err)
		assert.True(t, peer.Equal(local))
		assert.True(t, src.PeerAddr().Equal(local))
		require.NoError(t, st.Close())
	}
	assert.False(t, src.HasItems())
	require.NoError(t, src.Close())

	// let the listener's backlog settle; accepted sockets are never taken
	assert.Eventually(t, func() bool { return openFds(t) == before }, time.Second, 10*time.Millisecond)
}

func TestConnectRaceAllRefused(t *testing.T) {
	svc := newServices(t)
	target, err := netio.AddressFromAddrPorts(false, closedPort(t, svc), closedPort(t, svc))
	require.NoError(t, err)

	before := openFds(t)
	src, err := netio.NewStreamSource(svc, target, netio.ModeActive, 1)
	require.NoError(t, err)
	src.SetTimeout(2 * time.Second)

	_, err = src.Next()
	require.ErrorIs(t, err, api.ErrConnectFailed)
	assert.False(t, api.IsTimeout(err))
	var e *api.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, target.String(false), e.ContextValue("address"))
	assert.Equal(t, int64(1), svc.Metrics().Get(netio.MetricConnectFailures))

	require.NoError(t, src.Close())
	assert.Equal(t, before, openFds(t))
}

func TestConnectCandidateCap(t *testing.T) {
	cfg := control.DefaultConfig()
	cfg.ConnectCandidates = 1
	svc := netio.NewServices(netio.WithConfig(cfg))
	_, local := listenLoopback(t, svc, api.Unlimited)

	// only the refused first record is raced
	target, err := netio.AddressFromAddrPorts(false, closedPort(t, svc), local.AddrPort())
	require.NoError(t, err)
	src, err := netio.NewStreamSource(svc, target, netio.ModeActive, 1)
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Next()
	assert.ErrorIs(t, err, api.ErrConnectFailed)
}

func TestListenPortInUse(t *testing.T) {
	svc := newServices(t)
	_, local := listenLoopback(t, svc, 1)

	again, err := netio.AddressFromAddrPorts(true, local.AddrPort())
	require.NoError(t, err)
	_, err = netio.NewStreamSource(svc, again, netio.ModePassive, 1)
	require.ErrorIs(t, err, api.ErrPortOpen)
	var e *api.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, local.Port(), e.ContextValue("port"))
	assert.NotZero(t, e.Errno)
}

func TestUseAddressFlagMode(t *testing.T) {
	svc := newServices(t)
	passive, err := netio.AddressFromAddrPorts(true, netip.MustParseAddrPort("127.0.0.1:0"))
	require.NoError(t, err)

	src, err := netio.NewStreamSource(svc, passive, netio.ModeUseAddressFlag, 1)
	require.NoError(t, err)
	defer src.Close()
	assert.True(t, src.Passive())
	assert.Equal(t, api.EventReadable, src.DefaultWaitMask())

	active, err := netio.AddressFromAddrPorts(false, netip.MustParseAddrPort("127.0.0.1:9"))
	require.NoError(t, err)
	dialer, err := netio.NewStreamSource(svc, active, netio.ModeUseAddressFlag, 1)
	require.NoError(t, err)
	defer dialer.Close()
	assert.False(t, dialer.Passive())
	assert.Equal(t, api.EventWritable|api.EventExceptional, dialer.DefaultWaitMask())
	_, err = dialer.LocalAddr()
	assert.ErrorIs(t, err, api.ErrInvalidAddress)
}

func TestAcceptTimeout(t *testing.T) {
	svc := newServices(t)
	src, _ := listenLoopback(t, svc, 1)
	src.SetTimeout(20 * time.Millisecond)

	_, err := src.Next()
	assert.True(t, api.IsTimeout(err))
	assert.True(t, src.HasItems())
}

func TestNilAddress(t *testing.T) {
	_, err := netio.NewStreamSource(nil, nil, netio.ModeActive, 1)
	assert.ErrorIs(t, err, api.ErrInvalidAddress)
}
