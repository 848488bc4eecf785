package main

import (
	"bytes"
	"context"
	"io"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/netio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newServices(t *testing.T) *netio.Services {
	t.Helper()
	return netio.NewServices(netio.WithLogger(zaptest.NewLogger(t)))
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestNewApp(t *testing.T) {
	app := newApp()
	require.NotNil(t, app)
	assert.Equal(t, "netio", app.Name)

	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
		assert.NotNil(t, c.Action, c.Name)
	}
	assert.Equal(t, []string{"listen", "connect", "udp", "resolve"}, names)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags []string
	}{
		{"listen", []string{"verbose", "timeout", "ipv4", "ipv6", "stats", "count", "reuse"}},
		{"connect", []string{"verbose", "timeout", "ipv4", "ipv6", "stats"}},
		{"udp", []string{"verbose", "timeout", "port", "count", "echo", "to", "message"}},
		{"resolve", []string{"verbose", "ipv4", "ipv6", "reverse"}},
	}
	app := newApp()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := app.Command(tc.name)
			require.NotNil(t, cmd)
			have := map[string]bool{}
			for _, f := range cmd.Flags {
				if names := f.Names(); len(names) > 0 {
					have[names[0]] = true
				}
			}
			for _, want := range tc.flags {
				assert.True(t, have[want], "flag %q missing", want)
			}
		})
	}
}

func TestSplitTarget(t *testing.T) {
	tests := []struct {
		in         string
		host, port string
		wantErr    bool
	}{
		{in: "8080", port: "8080"},
		{in: "localhost:80", host: "localhost", port: "80"},
		{in: "[::1]:53", host: "::1", port: "53"},
		{in: ":http", port: "http"},
		{in: "no-port", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			host, port, err := splitTarget(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.host, host)
			assert.Equal(t, tc.port, port)
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	assert.Empty(t, options{Timeout: api.Infinite}.Validate())
	assert.Empty(t, options{Timeout: time.Second}.Validate())
	assert.Len(t, options{Timeout: -5 * time.Millisecond}.Validate(), 1)
}

func TestOptionsServicesTimeout(t *testing.T) {
	svc, err := options{Timeout: 250 * time.Millisecond}.services()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, svc.Config().DefaultTimeout)
}

func streamPair(t *testing.T, svc *netio.Services) (client, server *netio.Stream) {
	t.Helper()
	ctx := context.Background()
	addr, err := svc.Resolver().Resolve(ctx, "127.0.0.1", "0", api.IPv4)
	require.NoError(t, err)
	listener, err := netio.NewStreamSource(svc, addr, netio.ModePassive, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })
	local, err := listener.LocalAddr()
	require.NoError(t, err)

	target, err := svc.Resolver().ResolveHostPort(ctx, "127.0.0.1:"+strconv.Itoa(int(local.Port())), api.IPv4)
	require.NoError(t, err)
	dialer, err := netio.NewStreamSource(svc, target, netio.ModeActive, 1)
	require.NoError(t, err)
	defer dialer.Close()
	client, err = dialer.Next()
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	server, err = listener.Next()
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	return client, server
}

func TestRelay(t *testing.T) {
	svc := newServices(t)
	client, server := streamPair(t, svc)

	// The server answers before draining: a stream refuses sends once it
	// has seen EOF.
	got := make(chan []byte, 1)
	rest := make(chan []byte, 1)
	go func() {
		buf := make([]byte, len("hello"))
		_, _ = io.ReadFull(server, buf)
		got <- buf
		_, _ = server.Write([]byte("world"))
		tail, _ := io.ReadAll(server)
		rest <- tail
		_ = server.Close()
	}()

	var out bytes.Buffer
	err := relay(context.Background(), svc, client, bytes.NewReader([]byte("hello")), &out)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(<-got))
	assert.Empty(t, <-rest, "half-close must reach the peer as EOF")
	assert.Equal(t, "world", out.String())
	assert.True(t, client.OutputClosed())
}

func TestRelayCancel(t *testing.T) {
	svc := newServices(t)
	client, _ := streamPair(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	// A pipe that never produces data keeps the relay idle until cancel.
	pr, pw := io.Pipe()
	defer pw.Close()
	err := relay(ctx, svc, client, pr, io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveCommand(t *testing.T) {
	out := captureStdout(t)
	err := newApp().Run(context.Background(), []string{"netio", "resolve", "127.0.0.1", "80"})
	require.NoError(t, err)
	assert.Equal(t, "ipv4\t127.0.0.1:80\n", out.String())
}

func TestResolveCommandArgs(t *testing.T) {
	captureStdout(t)
	err := newApp().Run(context.Background(), []string{"netio", "resolve", "127.0.0.1"})
	assert.Error(t, err)
}

func TestUDPEcho(t *testing.T) {
	out := captureStdout(t)
	svc := newServices(t)

	server, err := netio.NewDatagramSource(svc, 0, 2*time.Second)
	require.NoError(t, err)
	defer server.Close()
	local, err := server.LocalAddr()
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- serveDatagrams(server, 1, true) }()

	client, err := netio.NewDatagramSource(svc, 0, 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	to := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), local.Port()).String()
	reply, err := sendAndWait(context.Background(), svc, client, to, "ping", api.IPv4)
	require.NoError(t, err)
	assert.Equal(t, "ping", reply)

	require.NoError(t, <-served)
	assert.Equal(t, "ping", out.String())
}
