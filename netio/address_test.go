package netio_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/netio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLiterals(t *testing.T) {
	t.Parallel()
	r := netio.NewResolver(0, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		host    string
		service string
		version api.IPVersion
		want    string
	}{
		{"ipv4", "127.0.0.1", "8080", api.IPAny, "127.0.0.1:8080"},
		{"ipv6", "::1", "443", api.IPAny, "[::1]:443"},
		{"bracketed ipv6", "[::1]", "443", api.IPv6, "[::1]:443"},
		{"mapped ipv4", "::ffff:10.0.0.1", "1", api.IPv4, "10.0.0.1:1"},
		{"named service", "127.0.0.1", "http", api.IPAny, "127.0.0.1:80"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := r.Resolve(ctx, tt.host, tt.service, tt.version)
			require.NoError(t, err)
			assert.False(t, a.Passive())
			assert.Equal(t, tt.want, a.String(false))
		})
	}
}

func TestResolvePassiveWildcard(t *testing.T) {
	r := netio.NewResolver(0, nil, nil)

	a, err := r.Resolve(context.Background(), "", "9000", api.IPAny)
	require.NoError(t, err)
	assert.True(t, a.Passive())
	recs := a.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, api.IPv4, recs[0].Family)
	assert.Equal(t, api.IPv6, recs[1].Family)
	assert.Equal(t, api.IPAny, a.Family())
	assert.Equal(t, "0.0.0.0:9000", a.String(false))

	a, err = r.Resolve(context.Background(), "", "9000", api.IPv6)
	require.NoError(t, err)
	assert.Equal(t, "[::]:9000", a.String(false))
	assert.Equal(t, api.IPv6, a.Family())
}

func TestResolveHostPort(t *testing.T) {
	r := netio.NewResolver(0, nil, nil)
	ctx := context.Background()

	a, err := r.ResolveHostPort(ctx, "[2001:db8::1]:53", api.IPAny)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("[2001:db8::1]:53"), a.AddrPort())

	_, err = r.ResolveHostPort(ctx, "no-port-here", api.IPAny)
	assert.ErrorIs(t, err, api.ErrInvalidAddress)
}

func TestResolveErrors(t *testing.T) {
	r := netio.NewResolver(0, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		host    string
		service string
		version api.IPVersion
		code    int
	}{
		{"unknown service", "127.0.0.1", "no-such-service-hioload", api.IPAny, netio.EAIService},
		{"family mismatch", "127.0.0.1", "80", api.IPv6, netio.EAIFamily},
		{"family mismatch v6", "::1", "80", api.IPv4, netio.EAIFamily},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.host, tt.service, tt.version)
			require.ErrorIs(t, err, api.ErrResolution)
			var e *api.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.code, e.Errno)
			assert.NotEmpty(t, e.ContextValue("query"))
		})
	}
}

func TestResolverCache(t *testing.T) {
	svc := newServices(t)
	r := svc.Resolver()
	ctx := context.Background()

	first, err := r.Resolve(ctx, "localhost", "80", api.IPAny)
	if err != nil {
		t.Skipf("localhost does not resolve here: %v", err)
	}
	second, err := r.Resolve(ctx, "LOCALHOST", "80", api.IPAny)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), svc.Metrics().Get(netio.MetricResolverMisses))
	assert.Equal(t, int64(1), svc.Metrics().Get(netio.MetricResolverHits))
}

func TestAddressEqualityIsContentBased(t *testing.T) {
	r := netio.NewResolver(0, nil, nil)
	ctx := context.Background()

	a, err := r.Resolve(ctx, "127.0.0.1", "7", api.IPAny)
	require.NoError(t, err)
	b, err := r.Resolve(ctx, "::ffff:127.0.0.1", "7", api.IPAny)
	require.NoError(t, err)
	c, err := netio.AddressFromRaw(a.Raw())
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(c))
	assert.Zero(t, a.Compare(c))

	other, err := r.Resolve(ctx, "127.0.0.1", "8", api.IPAny)
	require.NoError(t, err)
	assert.False(t, a.Equal(other))
	assert.Equal(t, -1, a.Compare(other))
	assert.Equal(t, 1, other.Compare(a))

	v6, err := r.Resolve(ctx, "::1", "7", api.IPAny)
	require.NoError(t, err)
	assert.Equal(t, -1, a.Compare(v6))
}

func TestAddressRawRoundTrip(t *testing.T) {
	a, err := netio.AddressFromAddrPorts(false,
		netip.MustParseAddrPort("[fe80::1]:5000"),
		netip.MustParseAddrPort("192.0.2.1:5000"))
	require.NoError(t, err)

	buf := make([]byte, 128)
	n, err := a.CopyRaw(buf)
	require.NoError(t, err)
	back, err := netio.AddressFromRaw(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, a.AddrPort(), back.AddrPort())

	_, err = a.CopyRaw(make([]byte, 4))
	assert.ErrorIs(t, err, api.ErrInvalidAddress)

	_, err = netio.AddressFromRaw(nil)
	assert.ErrorIs(t, err, api.ErrInvalidAddress)
	_, err = netio.AddressFromAddrPorts(false)
	assert.ErrorIs(t, err, api.ErrInvalidAddress)
}

func TestAddressWithReuse(t *testing.T) {
	a, err := netio.AddressFromAddrPorts(true, netip.MustParseAddrPort("0.0.0.0:0"))
	require.NoError(t, err)
	b := a.WithReuse()
	assert.False(t, a.Reusable())
	assert.True(t, b.Reusable())
	assert.True(t, a.Equal(b))
}
