// File: netio/resolver.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Host/service resolution into Address values with an LRU of positive answers.

package netio

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"go.uber.org/zap"
)

// getaddrinfo-compatible codes carried in the Errno field of resolution errors.
const (
	EAINoName  = -2
	EAIAgain   = -3
	EAIFail    = -4
	EAIFamily  = -6
	EAIService = -8
)

type resolveKey struct {
	host    string
	port    uint16
	version api.IPVersion
}

// Resolver turns host and service strings into Address values. IP
// literals and numeric services never leave the process.
type Resolver struct {
	lookup  *net.Resolver
	logger  *zap.Logger
	metrics *control.MetricsRegistry

	mu    sync.Mutex
	cache *lru.Cache[resolveKey, *Address]
}

// NewResolver creates a resolver caching up to cacheSize answers; 0
// disables the cache. logger and metrics may be nil.
func NewResolver(cacheSize int, logger *zap.Logger, metrics *control.MetricsRegistry) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{lookup: net.DefaultResolver, logger: logger, metrics: metrics}
	r.resize(cacheSize)
	return r
}

func (r *Resolver) resize(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case n <= 0:
		r.cache = nil
	case r.cache == nil:
		r.cache, _ = lru.New[resolveKey, *Address](n)
	default:
		r.cache.Resize(n)
	}
}

func resolutionError(code int, host, service string, cause error) error {
	e := api.NewError(api.KindResolution, "resolve failed").
		WithErrno(code).
		WithContext("query", net.JoinHostPort(host, service))
	if cause != nil {
		e.Wrap(cause)
	}
	return e
}

// Resolve looks up host and service. An empty host yields the wildcard
// addresses with the passive flag set, IPv4 first. service is a port
// number or a service name.
func (r *Resolver) Resolve(ctx context.Context, host, service string, version api.IPVersion) (*Address, error) {
	port, err := r.port(ctx, service)
	if err != nil {
		return nil, resolutionError(EAIService, host, service, err)
	}

	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		a := &Address{passive: true, resolver: r}
		if version != api.IPv6 {
			a.records = append(a.records, newRecord(netip.AddrPortFrom(netip.IPv4Unspecified(), port), SockAny))
		}
		if version != api.IPv4 {
			a.records = append(a.records, newRecord(netip.AddrPortFrom(netip.IPv6Unspecified(), port), SockAny))
		}
		return a, nil
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		ip = ip.Unmap()
		if (version == api.IPv4 && !ip.Is4()) || (version == api.IPv6 && !ip.Is6()) {
			return nil, resolutionError(EAIFamily, host, service, nil)
		}
		return &Address{records: []Record{newRecord(netip.AddrPortFrom(ip, port), SockAny)}, resolver: r}, nil
	}

	key := resolveKey{host: strings.ToLower(host), port: port, version: version}
	if a, ok := r.cached(key); ok {
		r.metrics.Add(MetricResolverHits, 1)
		return a, nil
	}
	r.metrics.Add(MetricResolverMisses, 1)

	network := "ip"
	switch version {
	case api.IPv4:
		network = "ip4"
	case api.IPv6:
		network = "ip6"
	}
	ips, err := r.lookup.LookupNetIP(ctx, network, host)
	if err != nil {
		r.logger.Debug("name lookup failed", zap.String("host", host), zap.Error(err))
		return nil, resolutionError(dnsErrorCode(err), host, service, err)
	}
	a := &Address{resolver: r}
	for _, ip := range ips {
		a.records = append(a.records, newRecord(netip.AddrPortFrom(ip, port), SockAny))
	}
	if len(a.records) == 0 {
		return nil, resolutionError(EAINoName, host, service, nil)
	}
	r.store(key, a)
	r.logger.Debug("resolved", zap.String("host", host), zap.Int("records", len(a.records)))
	return a, nil
}

// ResolveHostPort splits "host:port" or "[v6host]:port" and resolves it.
func (r *Resolver) ResolveHostPort(ctx context.Context, hostport string, version api.IPVersion) (*Address, error) {
	host, service, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, api.NewError(api.KindInvalidAddress, "malformed host:port").
			WithContext("input", hostport).Wrap(err)
	}
	return r.Resolve(ctx, host, service, version)
}

func (r *Resolver) port(ctx context.Context, service string) (uint16, error) {
	if service == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(service, 10, 16); err == nil {
		return uint16(n), nil
	}
	n, err := r.lookup.LookupPort(ctx, "tcp", service)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

func (r *Resolver) reverse(ctx context.Context, ip netip.Addr) (string, bool) {
	names, err := r.lookup.LookupAddr(ctx, ip.String())
	if err != nil || len(names) == 0 {
		return "", false
	}
	return strings.TrimSuffix(names[0], "."), true
}

func (r *Resolver) cached(key resolveKey) (*Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		return nil, false
	}
	return r.cache.Get(key)
}

func (r *Resolver) store(key resolveKey, a *Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache != nil {
		r.cache.Add(key, a)
	}
}

func dnsErrorCode(err error) int {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTemporary || dnsErr.IsTimeout {
			return EAIAgain
		}
		if dnsErr.IsNotFound {
			return EAINoName
		}
		return EAIFail
	}
	return EAINoName
}
